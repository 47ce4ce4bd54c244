package relay

import (
	"context"
	"sync"

	"github.com/go-i2p/go-relaychat/lib/metrics"
	"github.com/go-i2p/go-relaychat/lib/protocol"
	"github.com/go-i2p/logger"
)

// DefaultQueueCapacity is the number of relay messages that may wait for the
// fan-out before producers block.
const DefaultQueueCapacity = 100

// Fanout drains relay messages and delivers them to registered members.
type Fanout struct {
	registry *Registry
	metrics  *metrics.Metrics
	queue    chan Message

	done      chan struct{}
	closeOnce sync.Once
}

// NewFanout creates a fan-out over registry with a queue of the given
// capacity. A capacity below one means DefaultQueueCapacity.
func NewFanout(registry *Registry, capacity int, m *metrics.Metrics) *Fanout {
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}
	return &Fanout{
		registry: registry,
		metrics:  m,
		queue:    make(chan Message, capacity),
		done:     make(chan struct{}),
	}
}

// Publish enqueues msg, blocking while the queue is full.
func (f *Fanout) Publish(ctx context.Context, msg Message) error {
	select {
	case <-f.done:
		return ErrQueueClosed
	default:
	}

	select {
	case f.queue <- msg:
		return nil
	case <-f.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued messages.
func (f *Fanout) Pending() int {
	return len(f.queue)
}

// Close stops Run and makes further Publish calls fail.
func (f *Fanout) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

// Run delivers queued messages one at a time until ctx is cancelled or Close
// is called. Messages still buffered at that point are delivered before Run
// returns.
func (f *Fanout) Run(ctx context.Context) error {
	log.WithField("at", "relay.Fanout.Run").Debug("fanout_started")
	defer log.WithField("at", "relay.Fanout.Run").Debug("fanout_stopped")

	for {
		select {
		case msg := <-f.queue:
			f.Deliver(msg)
		case <-ctx.Done():
			f.drain()
			return nil
		case <-f.done:
			f.drain()
			return nil
		}
	}
}

func (f *Fanout) drain() {
	for {
		select {
		case msg := <-f.queue:
			f.Deliver(msg)
		default:
			return
		}
	}
}

// Deliver writes msg to every member it is addressed to and returns how many
// writes succeeded. A failed write is logged and counted; it never stops
// delivery to the remaining members.
func (f *Fanout) Deliver(msg Message) int {
	delivered := 0
	for _, m := range f.registry.Snapshot() {
		if !msg.deliversTo(m.ID) {
			continue
		}
		if err := m.Send(protocol.TypeData, msg.Content); err != nil {
			f.metrics.DeliveryFailed()
			log.WithFields(logger.Fields{
				"at":        "relay.Fanout.Deliver",
				"sender":    msg.Sender,
				"recipient": m.ID,
				"error":     err.Error(),
			}).Warn("fanout_delivery_failed")
			continue
		}
		f.metrics.Delivered()
		delivered++
	}

	log.WithFields(logger.Fields{
		"at":        "relay.Fanout.Deliver",
		"sender":    msg.Sender,
		"direct":    msg.Recipient != "",
		"delivered": delivered,
	}).Debug("relay_message_delivered")
	return delivered
}
