package broker

import (
	"context"
	"errors"
	"time"

	orders "dip-trader/internal/domain/entity/orders"
	interfaces "dip-trader/internal/domain/interfaces"
	"dip-trader/internal/observability"

	"github.com/sirupsen/logrus"
)

const DefaultQueueSize = 1024

var ErrQueueFull = errors.New("event queue full")

// AsyncPublisher decouples callers from the event bus. Publish only enqueues;
// a single worker started by Run forwards events in order.
type AsyncPublisher struct {
	next    interfaces.EventPublisher
	queue   chan orders.Event
	timeout time.Duration
	metrics *observability.Metrics
	logger  *logrus.Entry
	done    chan struct{}
}

var _ interfaces.EventPublisher = (*AsyncPublisher)(nil)

func NewAsyncPublisher(next interfaces.EventPublisher, size int, timeout time.Duration, metrics *observability.Metrics, logger *logrus.Logger) *AsyncPublisher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &AsyncPublisher{
		next:    next,
		queue:   make(chan orders.Event, size),
		timeout: timeout,
		metrics: metrics,
		logger:  logger.WithField("component", "async_publisher"),
		done:    make(chan struct{}),
	}
}

// Publish enqueues event without blocking. A full queue drops the event.
func (p *AsyncPublisher) Publish(_ context.Context, event orders.Event) error {
	select {
	case p.queue <- event:
		return nil
	default:
		p.dropped("queue_full")
		return ErrQueueFull
	}
}

// Run forwards queued events until ctx ends, then drains what is left.
func (p *AsyncPublisher) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case event := <-p.queue:
			p.send(ctx, event)
		}
	}
}

// Done is closed once Run has returned.
func (p *AsyncPublisher) Done() <-chan struct{} {
	return p.done
}

func (p *AsyncPublisher) drain() {
	for {
		select {
		case event := <-p.queue:
			p.send(context.Background(), event)
		default:
			return
		}
	}
}

func (p *AsyncPublisher) send(ctx context.Context, event orders.Event) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.next.Publish(ctx, event); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"type":   event.Type,
			"symbol": event.Symbol,
		}).Warn("publish event")
		p.dropped("publish_error")
	}
}

func (p *AsyncPublisher) dropped(reason string) {
	if p.metrics != nil {
		p.metrics.EventsDropped.WithLabelValues(reason).Inc()
	}
}
