package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testSearchIndex(t *testing.T) *SearchIndex {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	return NewSearchIndex(writer, testLogger())
}

func Test_Search_Is_Scoped_To_Conversation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := testSearchIndex(t)

	mine := uuid.New()
	other := uuid.New()
	at := time.Now().UTC()

	inScope := testMessage(mine, uuid.New(), "deploy the release tonight", at)
	outOfScope := testMessage(other, uuid.New(), "deploy the release tomorrow", at)
	req.NoError(index.Index(inScope))
	req.NoError(index.Index(outOfScope))

	ids, err := index.Search(ctx, mine, "deploy", 10)
	req.NoError(err)
	req.Equal([]uuid.UUID{inScope.ID}, ids)
}

func Test_Removed_Message_Stops_Matching(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := testSearchIndex(t)

	conversationID := uuid.New()
	msg := testMessage(conversationID, uuid.New(), "ephemeral announcement", time.Now().UTC())
	req.NoError(index.Index(msg))

	ids, err := index.Search(ctx, conversationID, "announcement", 10)
	req.NoError(err)
	req.Len(ids, 1)

	req.NoError(index.Remove(msg.ID))
	ids, err = index.Search(ctx, conversationID, "announcement", 10)
	req.NoError(err)
	req.Empty(ids)
}

func Test_Search_Resolves_Stored_Messages(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := testDB(t)
	index := testSearchIndex(t)
	messages := NewMessageRepository(db, index, testLogger(), testTimeout, nil)

	conversationID := uuid.New()
	msg := testMessage(conversationID, uuid.New(), "the quarterly report is ready", time.Now().UTC())
	req.NoError(messages.Store(ctx, msg))

	found, err := messages.Search(ctx, conversationID, "quarterly", 10)
	req.NoError(err)
	req.Len(found, 1)
	req.Equal(msg.ID, found[0].ID)
}
