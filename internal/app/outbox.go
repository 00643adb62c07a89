/**
 * @description
 * Outbox dispatcher decoupling notification delivery from state mutation.
 * The core emits domain events into a buffered channel; a single dispatcher
 * goroutine forwards them to the message broker. Delivery is fire-and-forget:
 * a full buffer drops the event with a warning, and publish failures are
 * logged and not retried.
 */
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/adverto/listing-service/internal/domain"
)

// Publisher is the broker-facing side of the outbox.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// EventMetrics counts outbox deliveries. Nil-safe via the no-op default.
type EventMetrics interface {
	RecordEventPublished()
	RecordEventDropped()
}

type noopEventMetrics struct{}

func (noopEventMetrics) RecordEventPublished() {}
func (noopEventMetrics) RecordEventDropped()   {}

const publishTimeout = 5 * time.Second

// Outbox buffers domain events and dispatches them asynchronously.
type Outbox struct {
	ch       chan domain.Event
	pub      Publisher
	exchange string
	logger   *slog.Logger
	metrics  EventMetrics

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewOutbox creates an outbox publishing to the given exchange. Buffer
// defaults to 256 when non-positive.
func NewOutbox(pub Publisher, exchange string, buffer int, metrics EventMetrics, logger *slog.Logger) *Outbox {
	if buffer <= 0 {
		buffer = 256
	}
	if metrics == nil {
		metrics = noopEventMetrics{}
	}
	return &Outbox{
		ch:       make(chan domain.Event, buffer),
		pub:      pub,
		exchange: exchange,
		logger:   logger,
		metrics:  metrics,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the dispatcher goroutine.
func (o *Outbox) Start() {
	go o.dispatch()
}

// Stop shuts the dispatcher down after draining buffered events.
func (o *Outbox) Stop() {
	o.stopOnce.Do(func() { close(o.stop) })
	<-o.done
}

// Emit queues an event for delivery. Never blocks the mutation path: when
// the buffer is full the event is dropped and logged.
func (o *Outbox) Emit(e domain.Event) {
	select {
	case o.ch <- e:
	default:
		o.metrics.RecordEventDropped()
		o.logger.Warn("outbox full, dropping event", "event_type", e.Type, "listing_id", e.ListingID)
	}
}

func (o *Outbox) dispatch() {
	defer close(o.done)

	for {
		select {
		case e := <-o.ch:
			o.publish(e)
		case <-o.stop:
			// Drain whatever is already buffered, then exit.
			for {
				select {
				case e := <-o.ch:
					o.publish(e)
				default:
					return
				}
			}
		}
	}
}

func (o *Outbox) publish(e domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := o.pub.Publish(ctx, o.exchange, e.Type, e); err != nil {
		o.logger.Error("failed to publish event", "event_type", e.Type, "listing_id", e.ListingID, "error", err)
		return
	}
	o.metrics.RecordEventPublished()
}
