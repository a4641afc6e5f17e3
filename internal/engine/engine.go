// Package engine implements the question answering flow: retrieve the most
// relevant document chunks for a question, assemble a grounded prompt, and
// generate an answer with the configured LLM backend. When the index is
// empty or retrieval finds nothing, the engine falls back to the model's own
// knowledge and marks the answer as ungrounded so callers can tell the two
// apart.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/d8vjr/docqa-go/internal/budget"
	"github.com/d8vjr/docqa-go/internal/logging"
	"github.com/d8vjr/docqa-go/internal/rag"
)

// groundedPrompt is the prompt template for answers backed by retrieved
// chunks. The context block and the question are substituted in.
const groundedPrompt = `Answer ONLY from the provided context.
If the context is insufficient, at first you say "I don't know".
Then say "This is the answer from my knowledge base" and answer the question
from your own knowledge.

Context:
%s

Question: %s`

// invalidQuestionReply is returned verbatim for blank questions.
const invalidQuestionReply = "Please provide a valid question."

// sourceSnippetLen caps how much of each chunk is echoed back as a source.
const sourceSnippetLen = 200

// ErrQueryFailed marks errors from the answer flow's backend calls: the
// index, the embedder, and the model. errors.Is(err, ErrQueryFailed) holds
// for all of them; the underlying cause stays inspectable through the same
// chain.
var ErrQueryFailed = errors.New("query failed")

// Status classifies how an answer was produced.
type Status string

const (
	// StatusGrounded means the answer was generated from retrieved chunks.
	StatusGrounded Status = "grounded"
	// StatusUngrounded means no chunks were available and the answer comes
	// from the model's own knowledge.
	StatusUngrounded Status = "ungrounded"
	// StatusInvalid means the question was rejected before any model call.
	StatusInvalid Status = "invalid"
)

// Answer is the engine's response to one question.
type Answer struct {
	// Text is the generated answer, or the fixed reply for invalid questions.
	Text string

	// Sources holds a snippet of every chunk the answer was grounded on, in
	// retrieval-score order. Empty for ungrounded and invalid answers.
	Sources []string

	// Status classifies how the answer was produced.
	Status Status
}

// Generator produces a text completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds the dependencies required to construct an Engine.
type Config struct {
	// Retriever finds the chunks most relevant to a question.
	Retriever rag.Retriever

	// Index is consulted for chunk counts so an empty index can skip
	// retrieval entirely.
	Index rag.VectorIndex

	// Generator is the LLM backend used to produce answers.
	Generator Generator

	// TopK is how many chunks are retrieved per question. Defaults to 3.
	TopK int

	// MaxContextTokens is the estimated token budget for the grounded
	// prompt. Retrieved chunks are dropped lowest-score-first to fit.
	// Defaults to budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// Engine answers questions against the indexed document corpus.
type Engine struct {
	retriever        rag.Retriever
	index            rag.VectorIndex
	generator        Generator
	topK             int
	maxContextTokens int
}

// New constructs an Engine from the provided Config.
func New(cfg *Config) (*Engine, error) {
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("engine: Retriever must not be nil")
	}
	if cfg.Index == nil {
		return nil, fmt.Errorf("engine: Index must not be nil")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("engine: Generator must not be nil")
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = 3
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}

	return &Engine{
		retriever:        cfg.Retriever,
		index:            cfg.Index,
		generator:        cfg.Generator,
		topK:             topK,
		maxContextTokens: maxCtx,
	}, nil
}

// Answer responds to one question. When docIDs is non-empty, retrieval is
// restricted to chunks of those documents.
//
// A blank question short-circuits to a fixed reply without touching the
// embedder, the index, or the model. An empty index or an empty retrieval
// result falls back to the model's own knowledge with StatusUngrounded.
// Failures of the embedder, the index, or the model propagate as errors;
// the engine never fabricates an answer to cover an outage.
func (e *Engine) Answer(ctx context.Context, question string, docIDs []string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return &Answer{Text: invalidQuestionReply, Status: StatusInvalid}, nil
	}

	total, err := e.index.Count(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("engine: index count: %w: %w", ErrQueryFailed, err)
	}
	if total == 0 {
		logging.FromContext(ctx).Warn("engine: index is empty, answering without grounding")
		return e.ungrounded(ctx, question)
	}

	hits, err := e.retriever.Retrieve(ctx, question, e.topK, docIDs)
	if err != nil {
		return nil, fmt.Errorf("engine: retrieval: %w: %w", ErrQueryFailed, err)
	}
	if len(hits) == 0 {
		return e.ungrounded(ctx, question)
	}

	chunks := make([]string, len(hits))
	for i, h := range hits {
		chunks[i] = h.Text
	}

	reserved := budget.Estimate(groundedPrompt) + budget.Estimate(question)
	kept := budget.TrimChunks(chunks, reserved, e.maxContextTokens)
	if dropped := len(chunks) - len(kept); dropped > 0 {
		logging.FromContext(ctx).Warn("engine: dropped retrieved chunks to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(kept)),
			slog.Int("max_tokens", e.maxContextTokens),
		)
	}

	prompt := fmt.Sprintf(groundedPrompt, strings.Join(kept, "\n\n"), question)
	text, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("engine: generation: %w: %w", ErrQueryFailed, err)
	}

	sources := make([]string, len(kept))
	for i, chunk := range kept {
		sources[i] = sourceSnippet(chunk)
	}

	return &Answer{Text: text, Sources: sources, Status: StatusGrounded}, nil
}

// ungrounded generates an answer from the model's own knowledge, with no
// retrieved context and no sources.
func (e *Engine) ungrounded(ctx context.Context, question string) (*Answer, error) {
	text, err := e.generator.Generate(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("engine: generation: %w: %w", ErrQueryFailed, err)
	}
	return &Answer{Text: text, Status: StatusUngrounded}, nil
}

// sourceSnippet truncates a chunk for display in the answer's source list.
// The cut never splits a multi-byte rune.
func sourceSnippet(text string) string {
	if len(text) <= sourceSnippetLen {
		return text
	}
	cut := sourceSnippetLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
