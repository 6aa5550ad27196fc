// Package models defines the journey graph and run records shared by the engine, persistence and API layers.
package models

import "time"

// Journey is an immutable, named graph of nodes with one designated start node.
type Journey struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	StartNodeID string    `json:"start_node_id"`
	Nodes       NodeList  `json:"nodes"`
	CreatedAt   time.Time `json:"created_at"`
}

// Node looks up a node by id.
func (j *Journey) Node(id string) (Node, bool) {
	for _, node := range j.Nodes {
		if node.NodeID() == id {
			return node, true
		}
	}

	return nil, false
}

// HasNode reports whether id identifies a node of the journey.
func (j *Journey) HasNode(id string) bool {
	_, ok := j.Node(id)

	return ok
}
