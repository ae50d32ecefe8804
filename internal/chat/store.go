package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/websters/query-api/internal/answer"
	"github.com/websters/query-api/internal/sqlc"
)

// Querier defines the database operations the store needs. Interfaces
// are defined by the consumer, not the provider; satisfied by
// *sqlc.Queries.
type Querier interface {
	CreateChatMessage(ctx context.Context, arg sqlc.CreateChatMessageParams) (sqlc.ChatMessage, error)
	GetChatMessage(ctx context.Context, id pgtype.UUID) (sqlc.ChatMessage, error)
	ListChatMessages(ctx context.Context, arg sqlc.ListChatMessagesParams) ([]sqlc.ChatMessage, error)
	SetChatMessageWebResponse(ctx context.Context, arg sqlc.SetChatMessageWebResponseParams) (int64, error)
	DeleteChatMessage(ctx context.Context, arg sqlc.DeleteChatMessageParams) (int64, error)
}

// Store persists chat messages with PostgreSQL backend. Every read and
// mutation is scoped to a user; cross-user access surfaces
// ErrForbidden, never another user's data.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	querier Querier
	logger  *slog.Logger
}

// New creates a Store. A nil logger selects slog.Default().
func New(querier Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{querier: querier, logger: logger}
}

// Save records a new query exchange and returns it with its generated
// ID and timestamps.
func (s *Store) Save(ctx context.Context, userID, query, localAnswer string, citations []answer.Citation, metadata map[string]any) (*Message, error) {
	if userID == "" {
		return nil, errors.New("user ID is required")
	}
	if query == "" {
		return nil, errors.New("query is required")
	}

	citationsJSON, err := marshalCitations(citations)
	if err != nil {
		return nil, fmt.Errorf("marshaling citations: %w", err)
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	row, err := s.querier.CreateChatMessage(ctx, sqlc.CreateChatMessageParams{
		UserID:         userID,
		Message:        query,
		LocalResponse:  localAnswer,
		LocalCitations: citationsJSON,
		Metadata:       metadataJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("saving chat message: %w", err)
	}

	msg := rowToMessage(row, s.logger)
	s.logger.Debug("saved chat message", "id", msg.ID, "user_id", userID)
	return msg, nil
}

// Get retrieves a message by ID, enforcing ownership.
func (s *Store) Get(ctx context.Context, userID string, id uuid.UUID) (*Message, error) {
	row, err := s.querier.GetChatMessage(ctx, uuidToPgUUID(id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting chat message %s: %w", id, err)
	}
	if row.UserID != userID {
		return nil, ErrForbidden
	}
	return rowToMessage(row, s.logger), nil
}

// List returns the user's messages, newest first. A non-positive limit
// selects the default page size.
func (s *Store) List(ctx context.Context, userID string, limit, offset int32) ([]*Message, error) {
	if offset < 0 {
		offset = 0
	}
	rows, err := s.querier.ListChatMessages(ctx, sqlc.ListChatMessagesParams{
		UserID:       userID,
		ResultLimit:  normalizeListLimit(limit),
		ResultOffset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("listing chat messages: %w", err)
	}

	messages := make([]*Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, rowToMessage(row, s.logger))
	}
	return messages, nil
}

// AttachWebAnswer records the one-time web enrichment on a message.
// Returns ErrNotFound for a missing message, ErrForbidden for another
// user's message, and ErrAlreadyEnriched when enrichment already ran.
func (s *Store) AttachWebAnswer(ctx context.Context, userID string, id uuid.UUID, webAnswer string, citations []answer.Citation) (*Message, error) {
	existing, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if existing.WebEnriched {
		return nil, ErrAlreadyEnriched
	}

	citationsJSON, err := marshalCitations(citations)
	if err != nil {
		return nil, fmt.Errorf("marshaling citations: %w", err)
	}

	affected, err := s.querier.SetChatMessageWebResponse(ctx, sqlc.SetChatMessageWebResponseParams{
		WebResponse:  pgtype.Text{String: webAnswer, Valid: true},
		WebCitations: citationsJSON,
		ID:           uuidToPgUUID(id),
		UserID:       userID,
	})
	if err != nil {
		return nil, fmt.Errorf("updating chat message %s: %w", id, err)
	}
	if affected == 0 {
		// The update is guarded on is_web_enriched = false, so a zero
		// row count after the check above means the row was deleted or
		// enriched concurrently. Re-read to tell the two apart.
		if current, getErr := s.Get(ctx, userID, id); getErr == nil && current.WebEnriched {
			return nil, ErrAlreadyEnriched
		}
		return nil, ErrNotFound
	}

	s.logger.Debug("attached web answer", "id", id, "user_id", userID)
	return s.Get(ctx, userID, id)
}

// Delete removes a message, enforcing ownership. The delete itself is
// user-scoped; a zero row count is disambiguated with a follow-up read.
func (s *Store) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	affected, err := s.querier.DeleteChatMessage(ctx, sqlc.DeleteChatMessageParams{
		ID:     uuidToPgUUID(id),
		UserID: userID,
	})
	if err != nil {
		return fmt.Errorf("deleting chat message %s: %w", id, err)
	}
	if affected == 0 {
		if _, err := s.querier.GetChatMessage(ctx, uuidToPgUUID(id)); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("checking chat message %s: %w", id, err)
		}
		return ErrForbidden
	}

	s.logger.Debug("deleted chat message", "id", id, "user_id", userID)
	return nil
}

func marshalCitations(citations []answer.Citation) ([]byte, error) {
	if citations == nil {
		citations = []answer.Citation{}
	}
	return json.Marshal(citations)
}

func rowToMessage(row sqlc.ChatMessage, logger *slog.Logger) *Message {
	msg := &Message{
		ID:          pgUUIDToUUID(row.ID),
		UserID:      row.UserID,
		Query:       row.Message,
		LocalAnswer: row.LocalResponse,
		WebEnriched: row.IsWebEnriched,
		CreatedAt:   row.CreatedAt.Time,
		UpdatedAt:   row.UpdatedAt.Time,
	}
	if row.WebResponse.Valid {
		msg.WebAnswer = row.WebResponse.String
	}
	msg.LocalCitations = unmarshalCitations(row.LocalCitations, logger, "local_citations")
	if row.IsWebEnriched {
		msg.WebCitations = unmarshalCitations(row.WebCitations, logger, "web_citations")
	}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &msg.Metadata); err != nil {
			logger.Warn("ignoring malformed message metadata", "error", err)
		}
	}
	return msg
}

// unmarshalCitations tolerates malformed stored JSON: the message is
// still readable, just without that citation list.
func unmarshalCitations(data []byte, logger *slog.Logger, field string) []answer.Citation {
	if len(data) == 0 {
		return []answer.Citation{}
	}
	var citations []answer.Citation
	if err := json.Unmarshal(data, &citations); err != nil {
		logger.Warn("ignoring malformed stored citations", "field", field, "error", err)
		return []answer.Citation{}
	}
	return citations
}

func uuidToPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgUUIDToUUID(id pgtype.UUID) uuid.UUID {
	return uuid.UUID(id.Bytes)
}
