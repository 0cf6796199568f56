//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-hub/domain"
	"chat-hub/domain/event"

	"github.com/google/uuid"
)

// Worker is a long-running task supervised by the runtime. A worker does
// not protect itself; the supervisor recovers panics and restarts it.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerName derives a log-friendly name from the worker's type, so
// workers never have to name themselves.
func WorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Stop()
}

// EventSink is one live connection's inbox. Consume must respect the
// context deadline set by the fan-out worker; a slow sink loses the
// event for itself only.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry tracks live connections, the rooms each has joined, and the
// per-user live-connection count backing the presence flag.
type IRegistry interface {
	Register(conn domain.ConnectionID, userID uuid.UUID, sink EventSink) (firstConnection bool)
	Unregister(conn domain.ConnectionID) (userID uuid.UUID, lastConnection bool, rooms []domain.RoomID)
	Join(conn domain.ConnectionID, room domain.RoomID)
	Leave(conn domain.ConnectionID, room domain.RoomID)
	SinksForRoom(room domain.RoomID, exclude domain.ConnectionID) []EventSink
	SinksForUser(userID uuid.UUID) []EventSink
	Rooms(conn domain.ConnectionID) []domain.RoomID
}

// IDispatcher fans events out. Delivery is best-effort, at-most-once per
// connection per publish; offline clients reconcile via a REST pull.
type IDispatcher interface {
	Publish(room domain.RoomID, e event.DomainEvent)
	PublishExcept(room domain.RoomID, exclude domain.ConnectionID, e event.DomainEvent)
	PublishToUser(userID uuid.UUID, e event.DomainEvent)
}

// BlobStore persists opaque file bytes and returns a serving URL.
type BlobStore interface {
	Store(ctx context.Context, name string, data []byte) (domain.FileDescriptor, error)
}

// Verifier checks a bearer credential and resolves the caller identity.
type Verifier interface {
	Verify(token string) (Identity, error)
}

type Identity struct {
	UserID      uuid.UUID
	DisplayName string
}
