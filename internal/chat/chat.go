// Package chat persists query history: each message records the user's
// question, the local answer, and optionally a web-enriched answer
// attached after the fact (at most once per message).
package chat

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/websters/query-api/internal/answer"
)

const (
	// DefaultListLimit is the page size when the caller does not set one.
	DefaultListLimit int32 = 50

	// MaxListLimit is the largest page size a caller can request.
	MaxListLimit int32 = 200
)

// Sentinel errors for chat operations. Check with errors.Is().
var (
	// ErrNotFound indicates the message does not exist.
	ErrNotFound = errors.New("chat message not found")

	// ErrForbidden indicates the message belongs to another user.
	ErrForbidden = errors.New("chat message belongs to another user")

	// ErrAlreadyEnriched indicates the message already carries a web
	// answer; enrichment is one-time.
	ErrAlreadyEnriched = errors.New("chat message already web-enriched")
)

// Message is one stored query exchange. WebAnswer and WebCitations are
// empty until (and unless) enrichment runs.
type Message struct {
	ID             uuid.UUID         `json:"id"`
	UserID         string            `json:"user_id"`
	Query          string            `json:"message"`
	LocalAnswer    string            `json:"local_response"`
	LocalCitations []answer.Citation `json:"local_citations"`
	WebAnswer      string            `json:"web_response,omitempty"`
	WebCitations   []answer.Citation `json:"web_citations,omitempty"`
	WebEnriched    bool              `json:"is_web_enriched"`
	Metadata       map[string]any    `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// normalizeListLimit clamps a requested page size into range.
func normalizeListLimit(limit int32) int32 {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
