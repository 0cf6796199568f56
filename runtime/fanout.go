package runtime

import (
	"context"
	"log/slog"
	"time"

	"chat-hub/contract"
	"chat-hub/metrics"
)

// FanoutWorker drains the dispatcher queue and delivers each event to
// the sinks currently resolved by the registry. Delivery is best-effort,
// at-most-once per connection per publish: a slow or full sink loses the
// event for itself only, and there is no redelivery.
type FanoutWorker struct {
	log             *slog.Logger
	dispatcher      *Dispatcher
	registry        contract.IRegistry
	deliveryTimeout time.Duration
}

func NewFanoutWorker(log *slog.Logger, dispatcher *Dispatcher,
	registry contract.IRegistry, deliveryTimeout time.Duration) *FanoutWorker {
	return &FanoutWorker{
		log:             log,
		dispatcher:      dispatcher,
		registry:        registry,
		deliveryTimeout: deliveryTimeout,
	}
}

func (w *FanoutWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("stopping fan-out worker")
			return nil
		case del := <-w.dispatcher.Deliveries():
			w.fanout(ctx, del)
		}
	}
}

func (w *FanoutWorker) fanout(ctx context.Context, del delivery) {
	var sinks []contract.EventSink
	switch {
	case del.room != nil:
		sinks = w.registry.SinksForRoom(*del.room, del.exclude)
	case del.user != nil:
		sinks = w.registry.SinksForUser(*del.user)
	}

	for _, sink := range sinks {
		deliveryCtx, cancel := context.WithTimeout(ctx, w.deliveryTimeout)
		if err := sink.Consume(deliveryCtx, del.event); err != nil {
			metrics.EventsDropped.Inc()
			w.log.Debug("sink refused event", "event", del.event.Name(), "error", err)
		} else {
			metrics.EventsDelivered.Inc()
		}
		cancel()
	}
}
