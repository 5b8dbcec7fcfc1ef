// Package contracts defines the external collaborator interfaces named in
// spec.md §6: the triplestore driver, the language-model client, and the
// cache backend. These are deliberately thin — the core pipeline treats
// each as an injected capability (spec.md §9 "Global clients → injected
// dependencies"), never a process-global accessor, so tests substitute
// fakes trivially.
package contracts

import (
	"context"

	"github.com/chainlens/nlquery/pkg/types"
)

// TriplestoreClient executes SPARQL against the backing triplestore.
type TriplestoreClient interface {
	Execute(ctx context.Context, sparql string) (types.TriplestoreResponse, error)
	CheckGraphExists(ctx context.Context, graphURI string) (bool, error)
	CreateGraph(ctx context.Context, graphURI, turtleData string) error
}

// AnswerStream is a lazy, finite, non-restartable sequence of answer
// chunks from the language model's contextualize call, with an explicit
// Close so the multiplexer can release upstream resources on cancellation
// without depending on a source-language iterator protocol.
type AnswerStream interface {
	// Next blocks until the next chunk is available, ctx is done, or the
	// stream ends. ok is false once the stream is exhausted; err is set on
	// upstream failure.
	Next(ctx context.Context) (chunk string, ok bool, err error)
	Close() error
}

// LanguageModelClient is the NL-to-SPARQL / contextualize collaborator.
type LanguageModelClient interface {
	// GenerateComplete drives one-shot NL-to-SPARQL generation in
	// deterministic mode (temperature 0 per spec.md §4.7 GENERATE).
	GenerateComplete(ctx context.Context, prompt, systemPrompt string, temperature float64) (string, error)
	// ContextualizeAnswer opens a streamed explanation over sparqlResults.
	ContextualizeAnswer(ctx context.Context, userQuery, sparqlQuery, sparqlResults, systemPrompt string) (AnswerStream, error)
	// DetectAndParseSparql classifies a raw model response into a
	// SparqlPayload (delegates to the Plan Parser, component C2).
	DetectAndParseSparql(raw string) types.SparqlPayload
	HealthCheck(ctx context.Context) (bool, error)
	Model() string
	NLToSparqlPrompt() string
}

// CacheBackend is the storage collaborator behind the Cache Gate (C6).
type CacheBackend interface {
	Get(ctx context.Context, key types.NormalizedKey) (types.CacheEntry, bool, error)
	Store(ctx context.Context, key types.NormalizedKey, sparql, originalQuery string) error
	IncrementCount(ctx context.Context, key types.NormalizedKey) error
	Popular(ctx context.Context, limit int) ([]types.PopularQuery, error)
}
