//go:generate go run go.uber.org/mock/mockgen -source=messages.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"chat-hub/domain"
	"chat-hub/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IMessageRepository interface {
	Store(ctx context.Context, msg domain.Message) error
	Get(ctx context.Context, id uuid.UUID) (domain.Message, error)
	Update(ctx context.Context, msg domain.Message) error
	Delete(ctx context.Context, msg domain.Message) error
	List(ctx context.Context, conversationID uuid.UUID, cursor *string) ([]domain.Message, *string, error)
	UnreadCount(ctx context.Context, conversationID, userID uuid.UUID) (int, error)
	Search(ctx context.Context, conversationID uuid.UUID, query string, limit int) ([]domain.Message, error)
}

type MessageRepository struct {
	store
	index *SearchIndex
	limit *int
}

// NewMessageRepository builds the message store. limit caps the page
// size of List; nil means unbounded.
func NewMessageRepository(db *badger.DB, index *SearchIndex, log *slog.Logger,
	timeout time.Duration, limit *int) *MessageRepository {
	return &MessageRepository{store: newStore(db, log, timeout), index: index, limit: limit}
}

// Store persists a message and a pointer from its id to the full key, so
// id-based lookups don't need the creation timestamp. The content is
// indexed for search after the transaction commits; index failures are
// logged, not surfaced, since search is a secondary read path.
func (m *MessageRepository) Store(ctx context.Context, msg domain.Message) error {
	key := messageKey(msg.ConversationID, msg.CreatedAt, msg.ID)
	err := m.update(ctx, func(txn *badger.Txn) error {
		if err := setJSON(txn, key, msg); err != nil {
			return err
		}
		return txn.Set(messagePtrKey(msg.ID), key)
	})
	if err != nil {
		return err
	}
	if m.index != nil && msg.Content != "" {
		if err := m.index.Index(msg); err != nil {
			m.log.Warn("failed to index message", "message_id", msg.ID, "error", err)
		}
	}
	return nil
}

func (m *MessageRepository) Get(ctx context.Context, id uuid.UUID) (domain.Message, error) {
	var msg domain.Message
	err := m.view(ctx, func(txn *badger.Txn) error {
		key, err := resolveMessageKey(txn, id)
		if err != nil {
			return err
		}
		return getJSON(txn, key, &msg)
	})
	return msg, err
}

// Update rewrites the message in place. The creation timestamp never
// changes, so the key is stable.
func (m *MessageRepository) Update(ctx context.Context, msg domain.Message) error {
	key := messageKey(msg.ConversationID, msg.CreatedAt, msg.ID)
	err := m.update(ctx, func(txn *badger.Txn) error {
		if ok, err := exists(txn, key); err != nil {
			return err
		} else if !ok {
			return errors.ErrNotFound
		}
		return setJSON(txn, key, msg)
	})
	if err != nil {
		return err
	}
	if m.index != nil {
		if err := m.index.Index(msg); err != nil {
			m.log.Warn("failed to reindex message", "message_id", msg.ID, "error", err)
		}
	}
	return nil
}

// Delete hard-deletes the message together with its reactions and read
// marks, in one transaction.
func (m *MessageRepository) Delete(ctx context.Context, msg domain.Message) error {
	err := m.update(ctx, func(txn *badger.Txn) error {
		key, err := resolveMessageKey(txn, msg.ID)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		if err := txn.Delete(messagePtrKey(msg.ID)); err != nil {
			return err
		}
		for _, k := range keysWithPrefix(txn, reactionPrefix(msg.ID)) {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for _, k := range keysWithPrefix(txn, readMsgPrefix(msg.ConversationID, msg.ID)) {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if m.index != nil {
		if err := m.index.Remove(msg.ID); err != nil {
			m.log.Warn("failed to deindex message", "message_id", msg.ID, "error", err)
		}
	}
	return nil
}

// List pages through a conversation newest-first. The opaque cursor is
// the key suffix of the last returned message; passing it back resumes
// just past that message, so pages never overlap.
func (m *MessageRepository) List(ctx context.Context, conversationID uuid.UUID, cursor *string) ([]domain.Message, *string, error) {
	var raw [][]byte
	var lastSuffix string

	err := m.view(ctx, func(txn *badger.Txn) error {
		prefix := messagePrefix(conversationID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		if cursor == nil {
			// Past any 19-digit timestamp, so the reverse scan starts
			// at the newest message.
			seekKey = append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		} else {
			seekKey = append(append([]byte{}, prefix...), []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limit != nil && len(raw) == *m.limit {
				break
			}
			item := it.Item()
			lastSuffix = string(item.Key()[len(prefix):])
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			raw = append(raw, val)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages, err := decodeMessages(raw)
	if err != nil {
		return nil, nil, err
	}
	// A short or empty page means the scan is exhausted; only a full
	// page hands back a cursor.
	if m.limit == nil || len(messages) < *m.limit {
		return messages, nil, nil
	}
	return messages, &lastSuffix, nil
}

// UnreadCount counts messages in the conversation carrying no read mark
// for the user. Key-only scans on both prefixes.
func (m *MessageRepository) UnreadCount(ctx context.Context, conversationID, userID uuid.UUID) (int, error) {
	count := 0
	err := m.view(ctx, func(txn *badger.Txn) error {
		prefix := messagePrefix(conversationID)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			suffix := string(it.Item().Key()[len(prefix):])
			// suffix is "{padded timestamp}:{message id}"
			parts := strings.SplitN(suffix, ":", 2)
			if len(parts) != 2 {
				continue
			}
			msgID, err := uuid.Parse(parts[1])
			if err != nil {
				continue
			}
			read, err := exists(txn, readKey(conversationID, msgID, userID))
			if err != nil {
				return err
			}
			if !read {
				count++
			}
		}
		return nil
	})
	return count, err
}

// Search resolves full-text matches from the bluge index back into
// stored messages. Matches whose message has since been deleted are
// skipped.
func (m *MessageRepository) Search(ctx context.Context, conversationID uuid.UUID, query string, limit int) ([]domain.Message, error) {
	if m.index == nil {
		return nil, nil
	}
	ids, err := m.index.Search(ctx, conversationID, query, limit)
	if err != nil {
		return nil, err
	}

	var messages []domain.Message
	err = m.view(ctx, func(txn *badger.Txn) error {
		for _, id := range ids {
			key, err := resolveMessageKey(txn, id)
			if err != nil {
				continue
			}
			var msg domain.Message
			if err := getJSON(txn, key, &msg); err != nil {
				continue
			}
			messages = append(messages, msg)
		}
		return nil
	})
	return messages, err
}

func resolveMessageKey(txn *badger.Txn, id uuid.UUID) ([]byte, error) {
	item, err := txn.Get(messagePtrKey(id))
	if err != nil {
		return nil, errors.ErrNotFound
	}
	return item.ValueCopy(nil)
}

func decodeMessages(raw [][]byte) ([]domain.Message, error) {
	var messages []domain.Message
	for _, b := range raw {
		var msg domain.Message
		if err := unmarshalJSON(b, &msg); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
