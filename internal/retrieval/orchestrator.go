// Package retrieval combines the embedding index and the reranker
// into a single "top-k relevant passages for a query" operation, and
// owns corpus freshness: callers never see a stale index.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/complianced/internal/chunker"
	"github.com/fyrsmithlabs/complianced/internal/corpus"
	"github.com/fyrsmithlabs/complianced/internal/index"
	"github.com/fyrsmithlabs/complianced/internal/reranker"
)

var retrievalTracer = otel.Tracer("complianced.retrieval")

// Config holds retrieval parameters.
type Config struct {
	// TopK is the number of passages returned per retrieval.
	TopK int `koanf:"top_k"`

	// CandidateMultiplier widens the initial similarity search: the
	// index is queried for TopK * CandidateMultiplier candidates and
	// the reranker narrows them back down.
	CandidateMultiplier int `koanf:"candidate_multiplier"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.TopK == 0 {
		c.TopK = 6
	}
	if c.CandidateMultiplier == 0 {
		c.CandidateMultiplier = 3
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be >= 1, got %d", c.TopK)
	}
	if c.CandidateMultiplier < 1 {
		return fmt.Errorf("candidate_multiplier must be >= 1, got %d", c.CandidateMultiplier)
	}
	return nil
}

// Orchestrator retrieves rule passages for natural-language queries.
//
// Freshness: every retrieval re-derives the corpus fingerprint and
// swaps in a freshly built index when the corpus changed. The swap is
// atomic; in-flight queries keep searching the snapshot they started
// with.
type Orchestrator struct {
	source   corpus.Source
	chunker  *chunker.Chunker
	store    *index.Store
	reranker reranker.Reranker
	logger   *zap.Logger
	config   Config

	mu      sync.RWMutex
	current *index.Index
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(source corpus.Source, ch *chunker.Chunker, store *index.Store, rr reranker.Reranker, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		source:   source,
		chunker:  ch,
		store:    store,
		reranker: rr,
		logger:   logger,
		config:   cfg,
	}, nil
}

// Retrieve returns the k most relevant passages for the query, sorted
// by rerank score descending, ties broken by similarity descending,
// then by original document order. Reranker failure degrades to
// similarity ordering instead of failing the query.
func (o *Orchestrator) Retrieve(ctx context.Context, query string, k int) ([]corpus.RankedPassage, error) {
	ctx, span := retrievalTracer.Start(ctx, "Orchestrator.Retrieve")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 {
		k = o.config.TopK
	}

	idx, err := o.freshIndex(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ranked, err := o.searchRanked(ctx, idx, query, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("results_count", len(ranked)))
	span.SetStatus(codes.Ok, "success")
	return ranked, nil
}

// searchRanked runs one query against a pinned index snapshot: widen,
// rerank (or degrade), sort, truncate to k.
func (o *Orchestrator) searchRanked(ctx context.Context, idx *index.Index, query string, k int) ([]corpus.RankedPassage, error) {
	candidates, err := idx.Search(ctx, query, k*o.config.CandidateMultiplier)
	if err != nil {
		return nil, err
	}

	ranked := o.rerankOrDegrade(ctx, query, candidates)
	sortRanked(ranked)

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}

// RetrieveAll runs one retrieval per query concurrently against the
// immutable index snapshot and merges the results, deduplicated by
// passage and capped at k.
func (o *Orchestrator) RetrieveAll(ctx context.Context, queries []string, k int) ([]corpus.RankedPassage, error) {
	ctx, span := retrievalTracer.Start(ctx, "Orchestrator.RetrieveAll")
	defer span.End()
	span.SetAttributes(attribute.Int("queries", len(queries)), attribute.Int("k", k))

	if k <= 0 {
		k = o.config.TopK
	}
	if len(queries) == 0 {
		return []corpus.RankedPassage{}, nil
	}

	// Resolve freshness once and pin the snapshot: every query
	// searches the same index even if the corpus changes mid-flight.
	idx, err := o.freshIndex(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	results := make([][]corpus.RankedPassage, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, query := range queries {
		i, query := i, query
		g.Go(func() error {
			ranked, err := o.searchRanked(gctx, idx, query, k)
			if err != nil {
				return fmt.Errorf("query %q: %w", query, err)
			}
			results[i] = ranked
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Merge, keeping the best score for passages found by multiple
	// queries.
	best := make(map[string]corpus.RankedPassage)
	for _, ranked := range results {
		for _, p := range ranked {
			prev, ok := best[p.PassageID]
			if !ok || p.RerankScore > prev.RerankScore ||
				(p.RerankScore == prev.RerankScore && p.Similarity > prev.Similarity) {
				best[p.PassageID] = p
			}
		}
	}

	merged := make([]corpus.RankedPassage, 0, len(best))
	for _, p := range best {
		merged = append(merged, p)
	}
	sortRanked(merged)
	if len(merged) > k {
		merged = merged[:k]
	}

	span.SetAttributes(attribute.Int("results_count", len(merged)))
	span.SetStatus(codes.Ok, "success")
	return merged, nil
}

// rerankOrDegrade applies the reranker, falling back to similarity
// ordering on any failure. Availability of the compliance check is
// prioritized over ranking precision.
func (o *Orchestrator) rerankOrDegrade(ctx context.Context, query string, candidates []corpus.RankedPassage) []corpus.RankedPassage {
	ranked, err := o.reranker.Rerank(ctx, query, candidates)
	if err != nil || !sameMembership(candidates, ranked) {
		if err != nil {
			o.logger.Warn("reranker unavailable, degrading to similarity ranking",
				zap.Error(err),
				zap.Int("candidates", len(candidates)),
			)
		} else {
			o.logger.Warn("reranker changed candidate membership, degrading to similarity ranking",
				zap.Int("in", len(candidates)),
				zap.Int("out", len(ranked)),
			)
		}
		degraded := make([]corpus.RankedPassage, len(candidates))
		copy(degraded, candidates)
		for i := range degraded {
			degraded[i].RerankScore = degraded[i].Similarity
		}
		return degraded
	}
	return ranked
}

// sameMembership reports whether ranked holds exactly the candidate
// passages, in any order. Rerankers reorder and rescore; they never
// add, drop, or substitute.
func sameMembership(candidates, ranked []corpus.RankedPassage) bool {
	if len(ranked) != len(candidates) {
		return false
	}
	ids := make(map[string]int, len(candidates))
	for _, p := range candidates {
		ids[p.PassageID]++
	}
	for _, p := range ranked {
		ids[p.PassageID]--
		if ids[p.PassageID] < 0 {
			return false
		}
	}
	return true
}

// freshIndex re-derives the corpus fingerprint and returns an index
// matching it, rebuilding when stale.
func (o *Orchestrator) freshIndex(ctx context.Context) (*index.Index, error) {
	docs, err := o.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading corpus: %w", err)
	}
	fingerprint := corpus.Fingerprint(docs, o.chunker.Config().String())

	o.mu.RLock()
	current := o.current
	o.mu.RUnlock()
	if current != nil && current.Fingerprint() == fingerprint {
		return current, nil
	}

	passages := o.chunker.Split(docs)
	idx, err := o.store.LoadOrBuild(ctx, fingerprint, passages)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	// Another goroutine may have swapped while we built; the store's
	// singleflight makes both results equivalent.
	o.current = idx
	o.mu.Unlock()

	o.logger.Info("index snapshot refreshed",
		zap.String("fingerprint", fingerprint),
		zap.Int("passages", idx.Size()),
	)
	return idx, nil
}

// sortRanked orders passages by rerank score descending, ties by
// similarity descending, then by source document order. Fully
// deterministic: no arbitrary ordering survives.
func sortRanked(passages []corpus.RankedPassage) {
	sort.SliceStable(passages, func(i, j int) bool {
		a, b := passages[i], passages[j]
		if a.RerankScore != b.RerankScore {
			return a.RerankScore > b.RerankScore
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.Ordinal < b.Ordinal
	})
}
