package control

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/sylvia-iot/broker-core/internal/logger"
)

// Handler reacts to one decoded control envelope received on a channel.
type Handler func(ctx context.Context, env Envelope) error

// bus fans a decoded envelope out to every handler registered for its
// channel, in process. It wraps a Watermill gochannel pub/sub plus direct
// handler invocation, generalized from an open event taxonomy to the six
// fixed control channels and with no priority-queue batching: a control
// message must be acted on immediately, in order, per channel.
type bus struct {
	pubsub *gochannel.GoChannel

	mu       sync.RWMutex
	handlers map[string][]Handler
}

func newBus() *bus {
	return &bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, watermill.NopLogger{}),
		handlers: make(map[string][]Handler),
	}
}

// subscribe registers h to run, in registration order, for every envelope
// dispatched on channel.
func (b *bus) subscribe(channel string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channel] = append(b.handlers[channel], h)
}

// dispatch publishes env onto the in-process pub/sub topic for channel (for
// any external observer, e.g. a test harness) and then synchronously runs
// every registered handler, so a caller processing channel's wire queue one
// message at a time preserves that ordering through to cache/lifecycle
// reconciliation.
func (b *bus) dispatch(ctx context.Context, channel string, env Envelope) {
	if payload, err := json.Marshal(env); err == nil {
		msg := message.NewMessage(watermill.NewUUID(), payload)
		if err := b.pubsub.Publish(channel, msg); err != nil {
			logger.WarnCtx(ctx, "control bus publish failed")
		}
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[channel]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, env); err != nil {
			logger.WarnCtx(ctx, "control handler failed")
		}
	}
}

func (b *bus) close() error {
	return b.pubsub.Close()
}
