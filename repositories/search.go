package repositories

import (
	"context"
	"log/slog"

	"chat-hub/domain"

	"github.com/abadojack/whatlanggo"
	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

// SearchIndex wraps the bluge writer used for message full-text search.
// The conversation id is a keyword field so search stays scoped to one
// conversation; the detected language is stored for diagnostics.
type SearchIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchIndex(writer *bluge.Writer, log *slog.Logger) *SearchIndex {
	return &SearchIndex{writer: writer, log: log}
}

func (s *SearchIndex) Index(msg domain.Message) error {
	lang := whatlanggo.LangToString(whatlanggo.Detect(msg.Content).Lang)
	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewKeywordField("conversation", msg.ConversationID.String())).
		AddField(bluge.NewTextField("content", msg.Content).StoreValue()).
		AddField(bluge.NewKeywordField("lang", lang))
	return s.writer.Update(doc.ID(), doc)
}

func (s *SearchIndex) Remove(id uuid.UUID) error {
	return s.writer.Delete(bluge.Identifier(id.String()))
}

// Search returns the ids of the best matches within one conversation.
func (s *SearchIndex) Search(ctx context.Context, conversationID uuid.UUID, query string, limit int) ([]uuid.UUID, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(conversationID.String()).SetField("conversation")).
		AddMust(bluge.NewMatchQuery(query).SetField("content"))

	iter, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	match, err := iter.Next()
	for err == nil && match != nil {
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				if id, parseErr := uuid.Parse(string(value)); parseErr == nil {
					ids = append(ids, id)
				}
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		match, err = iter.Next()
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}
