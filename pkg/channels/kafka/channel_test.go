package kafka_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/journey/pkg/channels/kafka"
	"github.com/stretchr/testify/assert"
)

func TestBrokers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a:9092", "b:9092"}, kafka.Brokers(" a:9092, ,b:9092 "))
	assert.Empty(t, kafka.Brokers(""))
}

func TestCreateChannel_RequiresBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")

	_, _, err := kafka.CreateChannel(watermill.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), "journey")
	assert.ErrorIs(t, err, kafka.ErrNoBrokers)
}
