// Package rag implements the local retrieval pipeline: filtered vector
// retrieval followed by answer synthesis over the retrieved passages.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/websters/query-api/internal/knowledge"
)

// ErrIndexUnavailable indicates the vector index is not loaded. It is
// fatal for the request: no partial retrieval is attempted.
var ErrIndexUnavailable = errors.New("vector index unavailable")

// ErrEmptyQuery indicates the caller submitted a blank query string.
var ErrEmptyQuery = errors.New("query is required")

// answerPromptTemplate is the three-part synthesis prompt: context
// block, question, citation instruction. Passage texts are inlined in
// retrieval order separated by blank lines.
const answerPromptTemplate = `Below are multiple sources containing data schemas, event types, and data samples.
---------------------
%s
---------------------
Using the information above, please answer the following question: %s
Focus on providing specific details from the sources and mention which data sources you're using.`

// Searcher is the retrieval capability the pipeline needs; satisfied by
// *knowledge.Store.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Passage, error)
}

// Request describes one retrieval-and-synthesis run. Instruction, when
// set, is the resolved source-preference guidance appended to the
// synthesis prompt; it never affects retrieval.
type Request struct {
	Query       string
	TopK        int // non-positive means the store default
	Filters     knowledge.Filters
	Instruction string
}

// Result is the pipeline output: the synthesized answer, the scored
// passages in retrieval order, and the concatenated context block the
// answer was synthesized from (reused by the web-search decision
// stage).
type Result struct {
	Answer       string
	Passages     []knowledge.Passage
	ContextBlock string
}

// Pipeline runs local retrieval and answer synthesis. It is safe for
// concurrent use: the index and model are read-only after construction.
type Pipeline struct {
	g         *genkit.Genkit
	store     Searcher
	modelName string
	logger    *slog.Logger
}

// New creates a Pipeline. A nil store models "index not loaded": every
// run fails fast with ErrIndexUnavailable.
func New(g *genkit.Genkit, store Searcher, modelName string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		g:         g,
		store:     store,
		modelName: modelName,
		logger:    logger,
	}
}

// Retrieve runs the filtered vector search and returns passages in
// descending relevance order, at most TopK of them.
func (p *Pipeline) Retrieve(ctx context.Context, req Request) ([]knowledge.Passage, error) {
	if p.store == nil {
		return nil, ErrIndexUnavailable
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}

	opts := []knowledge.SearchOption{knowledge.WithTopK(req.TopK)}
	if !req.Filters.IsZero() {
		opts = append(opts, knowledge.WithFilters(req.Filters))
	}

	passages, err := p.store.Search(ctx, req.Query, opts...)
	if err != nil {
		return nil, fmt.Errorf("retrieving passages: %w", err)
	}
	return passages, nil
}

// Run retrieves passages and synthesizes an answer over them. An empty
// retrieval is not an error: the synthesizer is still asked, with an
// empty context block, and will say the database has nothing relevant.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	passages, err := p.Retrieve(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return p.Synthesize(ctx, req, passages)
}

// Synthesize produces the answer over already-retrieved passages. Split
// from Run so callers that need the passages first (for preference
// resolution) do not retrieve twice.
func (p *Pipeline) Synthesize(ctx context.Context, req Request, passages []knowledge.Passage) (Result, error) {
	contextBlock := ContextBlock(passages)
	prompt := fmt.Sprintf(answerPromptTemplate, contextBlock, req.Query)
	if req.Instruction != "" {
		prompt += "\n" + req.Instruction
	}

	resp, err := genkit.Generate(ctx, p.g,
		ai.WithModelName(p.modelName),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		return Result{}, fmt.Errorf("synthesizing answer: %w", err)
	}

	answer := strings.TrimSpace(resp.Text())
	p.logger.Debug("local pipeline complete",
		"passages", len(passages),
		"answer_length", len(answer))

	return Result{
		Answer:       answer,
		Passages:     passages,
		ContextBlock: contextBlock,
	}, nil
}

// ContextBlock concatenates passage texts in retrieval order, separated
// by blank lines.
func ContextBlock(passages []knowledge.Passage) string {
	texts := make([]string, 0, len(passages))
	for _, passage := range passages {
		texts = append(texts, passage.Text)
	}
	return strings.Join(texts, "\n\n")
}
