package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func Test_Mark_Read_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewReadRepository(testDB(t), testLogger(), testTimeout)

	conversationID := uuid.New()
	messageID := uuid.New()
	userID := uuid.New()
	at := time.Now().UTC()

	marks, err := repository.Mark(ctx, conversationID, userID, []uuid.UUID{messageID}, at)
	req.NoError(err)
	req.Len(marks, 1)

	// Re-marking overwrites the single existing row.
	_, err = repository.Mark(ctx, conversationID, userID, []uuid.UUID{messageID}, at.Add(time.Minute))
	req.NoError(err)

	stored, err := repository.ListForMessage(ctx, conversationID, messageID)
	req.NoError(err)
	req.Len(stored, 1)
	req.Equal(userID, stored[0].UserID)
}

func Test_Marks_From_Several_Users_Accumulate(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewReadRepository(testDB(t), testLogger(), testTimeout)

	conversationID := uuid.New()
	messageID := uuid.New()
	at := time.Now().UTC()

	for i := 0; i < 3; i++ {
		_, err := repository.Mark(ctx, conversationID, uuid.New(), []uuid.UUID{messageID}, at)
		req.NoError(err)
	}

	stored, err := repository.ListForMessage(ctx, conversationID, messageID)
	req.NoError(err)
	req.Len(stored, 3)
}
