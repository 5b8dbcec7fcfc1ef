// Package cache implements the Cache Gate (component C6): a
// lookup/store/popular surface in front of a contracts.CacheBackend,
// responsible for canonical serialization and fall-through parsing of
// whatever the backend happens to hold (spec.md §4.6).
package cache

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/chainlens/nlquery/pkg/contracts"
	"github.com/chainlens/nlquery/pkg/planner"
	"github.com/chainlens/nlquery/pkg/shared/logging"
	"github.com/chainlens/nlquery/pkg/types"
)

// DefaultPopularLimit backs the cache/stats endpoint (spec.md §6 "top-10
// popular queries").
const DefaultPopularLimit = 10

// Gate is the Cache Gate. It is transparent to execution correctness: a
// miss, or a corrupt entry that fails even the legacy parser, never
// causes failure — the caller falls through to the language-model path.
type Gate struct {
	backend contracts.CacheBackend
	log     *logrus.Logger
}

func New(backend contracts.CacheBackend, log *logrus.Logger) *Gate {
	return &Gate{backend: backend, log: log}
}

// Lookup normalizes query, reads the backend, and — on a hit — increments
// the entry's popularity count before parsing its stored SPARQL. The
// returned ok is false both on a genuine miss and on a hit whose stored
// value parses to an empty payload (spec.md: "a stale or corrupt entry
// falls through ... to the language-model path").
func (g *Gate) Lookup(ctx context.Context, query string) (types.SparqlPayload, bool) {
	key := types.Normalize(query)
	fields := logging.NewFields().Component("cache_gate").Operation("lookup")

	entry, found, err := g.backend.Get(ctx, key)
	if err != nil {
		g.log.WithFields(fields.Error(err).ToLogrus()).Warn("cache backend read failed, treating as miss")
		return types.SparqlPayload{}, false
	}
	if !found {
		return types.SparqlPayload{}, false
	}

	if err := g.backend.IncrementCount(ctx, key); err != nil {
		g.log.WithFields(fields.Error(err).ToLogrus()).Warn("cache hit count increment failed")
	}

	payload := planner.ParseCached(entry.SPARQLRaw)
	if payload.IsEmpty() {
		g.log.WithFields(fields.ToLogrus()).Warn("cached entry did not parse, falling through to language model")
		return types.SparqlPayload{}, false
	}
	return payload, true
}

// Store writes payload's canonical serialization under query's
// normalized key. Sequential payloads are always serialized as a
// structured JSON list, never the legacy delimited form.
func (g *Gate) Store(ctx context.Context, query string, payload types.SparqlPayload) error {
	key := types.Normalize(query)
	canonical, err := planner.MarshalCanonical(payload)
	if err != nil {
		return err
	}
	return g.backend.Store(ctx, key, canonical, query)
}

// Popular returns the top limit queries by hit count, descending, ties
// broken by insertion order (delegated to the backend, which owns
// insertion-order bookkeeping).
func (g *Gate) Popular(ctx context.Context, limit int) ([]types.PopularQuery, error) {
	if limit <= 0 {
		limit = DefaultPopularLimit
	}
	return g.backend.Popular(ctx, limit)
}
