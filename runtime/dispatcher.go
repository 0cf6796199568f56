package runtime

import (
	"log/slog"

	"chat-hub/domain"
	"chat-hub/domain/event"

	"github.com/google/uuid"
)

// delivery is one fan-out unit: a room-scoped or user-scoped event,
// optionally excluding the originating connection.
type delivery struct {
	room    *domain.RoomID
	user    *uuid.UUID
	exclude domain.ConnectionID
	event   event.DomainEvent
}

// Dispatcher queues deliveries for the fan-out worker. It is constructed
// once per process and injected into the operations layer; there is no
// global broadcaster. Publishing never blocks the caller: when the queue
// is full the delivery is dropped and logged, and offline clients catch
// up through a REST pull.
type Dispatcher struct {
	log        *slog.Logger
	deliveries chan delivery
}

func NewDispatcher(log *slog.Logger, bufferSize int) *Dispatcher {
	return &Dispatcher{
		log:        log,
		deliveries: make(chan delivery, bufferSize),
	}
}

func (d *Dispatcher) Publish(room domain.RoomID, e event.DomainEvent) {
	d.enqueue(delivery{room: &room, event: e})
}

func (d *Dispatcher) PublishExcept(room domain.RoomID, exclude domain.ConnectionID, e event.DomainEvent) {
	d.enqueue(delivery{room: &room, exclude: exclude, event: e})
}

func (d *Dispatcher) PublishToUser(userID uuid.UUID, e event.DomainEvent) {
	d.enqueue(delivery{user: &userID, event: e})
}

func (d *Dispatcher) enqueue(del delivery) {
	select {
	case d.deliveries <- del:
	default:
		d.log.Warn("delivery queue full, dropping event", "event", del.event.Name())
	}
}

// Deliveries exposes the queue to the fan-out worker.
func (d *Dispatcher) Deliveries() <-chan delivery {
	return d.deliveries
}
