package knowledge

import "time"

// VectorDimension is the embedding dimensionality used for all stored
// vectors. gemini-embedding-001 natively produces 3072 dimensions; we
// request truncation to 768 (Matryoshka Representation Learning), which
// must match the vector(768) column in the documents table.
const VectorDimension int32 = 768

// DefaultTopK is the number of passages returned when no explicit limit
// is requested.
const DefaultTopK = 5

// MaxTopK caps the number of passages a single search may return,
// regardless of what the caller asks for.
const MaxTopK = 50

// defaultSearchTimeout bounds a single embed-and-search round trip so a
// slow vector scan cannot block the request indefinitely.
const defaultSearchTimeout = 10 * time.Second

// Document is a unit of indexable content with its source metadata.
// Metadata values are free-form JSON; the conventional keys are
// "category", "platform", "source_type" (strings) and "tags" (array of
// strings).
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]any
	CreatedAt time.Time
}

// Passage is the normalized retrieval result handed to the answer
// pipeline: the passage text, its parsed metadata, and a cosine
// similarity score in [0, 1] where higher is more similar.
type Passage struct {
	Text     string
	Metadata map[string]any
	Score    float64
}

// Filters restricts a search to documents whose metadata matches every
// populated field. Empty fields are ignored; Tags requires the document
// to carry every listed tag.
type Filters struct {
	Category   string   `json:"category,omitempty"`
	Platform   string   `json:"platform,omitempty"`
	SourceType string   `json:"source_type,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// IsZero reports whether no filter field is populated.
func (f Filters) IsZero() bool {
	return f.Category == "" && f.Platform == "" && f.SourceType == "" && len(f.Tags) == 0
}

// Map returns the populated fields as a plain map, the form recorded in
// chat-message metadata.
func (f Filters) Map() map[string]any {
	return f.containment()
}

// containment builds the JSONB containment document for the @> operator.
// Scalar fields become equality checks; Tags becomes an array-contains
// check, since @> on arrays matches supersets.
func (f Filters) containment() map[string]any {
	m := make(map[string]any)
	if f.Category != "" {
		m["category"] = f.Category
	}
	if f.Platform != "" {
		m["platform"] = f.Platform
	}
	if f.SourceType != "" {
		m["source_type"] = f.SourceType
	}
	if len(f.Tags) > 0 {
		m["tags"] = f.Tags
	}
	return m
}

// SearchOption configures search behavior using the functional options
// pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK    int
	filters Filters
	timeout time.Duration
}

// WithTopK sets the maximum number of passages to return. Values below 1
// are ignored; values above MaxTopK are clamped.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k < 1 {
			return
		}
		if k > MaxTopK {
			k = MaxTopK
		}
		c.topK = k
	}
}

// WithFilters restricts the search to documents matching the given
// filters. All populated fields must match (AND logic).
func WithFilters(f Filters) SearchOption {
	return func(c *searchConfig) {
		c.filters = f
	}
}

// WithTimeout overrides the per-search timeout.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    DefaultTopK,
		timeout: defaultSearchTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
