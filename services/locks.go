package services

import (
	"sync"

	"github.com/google/uuid"
)

// stripedLocks serializes conflicting writes per conversation. Two
// operations on the same conversation take the same stripe; operations
// on different conversations almost never contend.
type stripedLocks struct {
	stripes [64]sync.Mutex
}

func (s *stripedLocks) forConversation(id uuid.UUID) *sync.Mutex {
	return &s.stripes[int(id[0])&(len(s.stripes)-1)]
}
