package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/genkit"

	"github.com/websters/query-api/internal/knowledge"
	"github.com/websters/query-api/internal/log"
	"github.com/websters/query-api/internal/testutil"
)

type mockSearcher struct {
	passages  []knowledge.Passage
	err       error
	calls     int
	lastQuery string
}

func (m *mockSearcher) Search(_ context.Context, query string, _ ...knowledge.SearchOption) ([]knowledge.Passage, error) {
	m.calls++
	m.lastQuery = query
	if m.err != nil {
		return nil, m.err
	}
	return m.passages, nil
}

func newTestPipeline(t *testing.T, store Searcher) (*Pipeline, *testutil.MockLLM) {
	t.Helper()
	g := genkit.Init(context.Background())
	mock := testutil.NewMockLLM("mock answer")
	mock.Register(g)
	return New(g, store, testutil.MockModelName, log.NewNop()), mock
}

func TestPipeline_Run(t *testing.T) {
	store := &mockSearcher{
		passages: []knowledge.Passage{
			{Text: "events.app_open: fired on app launch", Metadata: map[string]any{"category": "apps"}, Score: 0.9},
			{Text: "events.session_end: fired on backgrounding", Metadata: map[string]any{"category": "apps"}, Score: 0.8},
		},
	}
	pipeline, mock := newTestPipeline(t, store)

	result, err := pipeline.Run(context.Background(), Request{Query: "what app events do we track?"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Answer != "mock answer" {
		t.Errorf("answer = %q", result.Answer)
	}
	if len(result.Passages) != 2 {
		t.Fatalf("got %d passages, want 2", len(result.Passages))
	}
	if store.lastQuery != "what app events do we track?" {
		t.Errorf("search query = %q", store.lastQuery)
	}

	// Prompt structure: context block (passages in retrieval order,
	// blank-line separated), then the question, then the citation
	// instruction.
	prompt := mock.LastCall().UserMessage
	firstIdx := strings.Index(prompt, "events.app_open")
	secondIdx := strings.Index(prompt, "events.session_end")
	questionIdx := strings.Index(prompt, "what app events do we track?")
	citeIdx := strings.Index(prompt, "mention which data sources")
	if firstIdx < 0 || secondIdx < 0 || questionIdx < 0 || citeIdx < 0 {
		t.Fatalf("prompt missing required parts:\n%s", prompt)
	}
	if !(firstIdx < secondIdx && secondIdx < questionIdx && questionIdx < citeIdx) {
		t.Errorf("prompt parts out of order:\n%s", prompt)
	}
	if !strings.Contains(result.ContextBlock, "events.app_open: fired on app launch\n\nevents.session_end") {
		t.Errorf("context block wrong: %q", result.ContextBlock)
	}
}

func TestPipeline_Run_InstructionAppended(t *testing.T) {
	pipeline, mock := newTestPipeline(t, &mockSearcher{
		passages: []knowledge.Passage{{Text: "events.purchase schema", Score: 0.7}},
	})

	_, err := pipeline.Run(context.Background(), Request{
		Query:       "what purchase data do we collect?",
		Instruction: "Focus on e-commerce event payloads. Preferred sources: shopify.dev",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	prompt := mock.LastCall().UserMessage
	citeIdx := strings.Index(prompt, "mention which data sources")
	instrIdx := strings.Index(prompt, "Focus on e-commerce event payloads.")
	if instrIdx < 0 {
		t.Fatalf("prompt missing instruction:\n%s", prompt)
	}
	if instrIdx < citeIdx {
		t.Errorf("instruction should follow the base prompt:\n%s", prompt)
	}
}

func TestPipeline_Run_EmptyRetrieval(t *testing.T) {
	pipeline, mock := newTestPipeline(t, &mockSearcher{})

	result, err := pipeline.Run(context.Background(), Request{Query: "anything"})
	if err != nil {
		t.Fatalf("empty retrieval should not fail: %v", err)
	}
	if result.Answer != "mock answer" {
		t.Errorf("answer = %q", result.Answer)
	}
	if result.ContextBlock != "" {
		t.Errorf("context block = %q, want empty", result.ContextBlock)
	}
	if len(mock.Calls()) != 1 {
		t.Error("synthesis should still run with empty context")
	}
}

func TestPipeline_Run_IndexUnavailable(t *testing.T) {
	pipeline, mock := newTestPipeline(t, nil)

	_, err := pipeline.Run(context.Background(), Request{Query: "anything"})
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("error = %v, want ErrIndexUnavailable", err)
	}
	if len(mock.Calls()) != 0 {
		t.Error("no synthesis should be attempted without an index")
	}
}

func TestPipeline_Run_EmptyQuery(t *testing.T) {
	store := &mockSearcher{}
	pipeline, _ := newTestPipeline(t, store)

	_, err := pipeline.Run(context.Background(), Request{Query: "   "})
	if !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("error = %v, want ErrEmptyQuery", err)
	}
	if store.calls != 0 {
		t.Error("no retrieval should be attempted for a blank query")
	}
}

func TestPipeline_Run_SearchError(t *testing.T) {
	searchErr := errors.New("connection refused")
	pipeline, _ := newTestPipeline(t, &mockSearcher{err: searchErr})

	_, err := pipeline.Run(context.Background(), Request{Query: "anything"})
	if !errors.Is(err, searchErr) {
		t.Fatalf("error = %v, want wrapped search error", err)
	}
}

func TestPipeline_Run_SynthesisError(t *testing.T) {
	pipeline, mock := newTestPipeline(t, &mockSearcher{
		passages: []knowledge.Passage{{Text: "passage", Score: 0.5}},
	})
	mock.FailWith(errors.New("model overloaded"))

	if _, err := pipeline.Run(context.Background(), Request{Query: "anything"}); err == nil {
		t.Fatal("synthesis failure should propagate")
	}
}

func TestContextBlock(t *testing.T) {
	if got := ContextBlock(nil); got != "" {
		t.Errorf("ContextBlock(nil) = %q", got)
	}
	got := ContextBlock([]knowledge.Passage{{Text: "a"}, {Text: "b"}})
	if got != "a\n\nb" {
		t.Errorf("ContextBlock = %q, want %q", got, "a\n\nb")
	}
}
