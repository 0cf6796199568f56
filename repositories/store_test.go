package repositories

import (
	"log/slog"
	"testing"
	"time"

	"chat-hub/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testTimeout = 3 * time.Second

func testDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testMessage(conversationID, senderID uuid.UUID, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      at,
	}
}

func testReaction(messageID, userID uuid.UUID, emoji string) domain.Reaction {
	return domain.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji}
}

func testLogger() *slog.Logger {
	return slog.Default()
}
