package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE journeys (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				start_node_id VARCHAR(255) NOT NULL,
				nodes JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_journeys_created_at ON journeys(created_at);

			CREATE TABLE journey_runs (
				id VARCHAR(255) PRIMARY KEY,
				journey_id VARCHAR(255) NOT NULL,
				context JSONB NOT NULL DEFAULT '{}',
				status VARCHAR(50) NOT NULL CHECK (status IN ('in_progress', 'completed', 'failed')),
				current_node_id VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_journey_runs_journey_id ON journey_runs(journey_id);
			CREATE INDEX idx_journey_runs_status ON journey_runs(status);
		`,
	}
}
