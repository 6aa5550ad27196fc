// Package gochannel provides the in-process watermill transport used by the
// single-binary deployment, the runner and tests.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const outputBuffer = 1000

// NewPubSub creates a GoChannel that acts as both publisher and subscriber.
// Publishing never blocks on subscribers, so a slow consumer cannot stall a run.
func NewPubSub(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            outputBuffer,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)
}
