// Package reranker rescores retrieval candidates with a second, more
// precise relevance pass. Reranking failures must never fail a
// compliance query: callers fall back to similarity-only ordering.
package reranker

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/complianced/internal/corpus"
)

var (
	// ErrRerankFailed indicates the reranking call failed. Callers
	// should degrade to the input ordering rather than propagate.
	ErrRerankFailed = errors.New("reranking failed")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Reranker reorders candidates by pairwise query-passage relevance.
//
// Implementations must return the same candidates as the input (same
// cardinality and membership), sorted by RerankScore descending with
// ties kept in the input order, which is the original similarity rank.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []corpus.RankedPassage) ([]corpus.RankedPassage, error)

	// Close releases any resources held by the reranker.
	Close() error
}

// Config selects and configures a reranker implementation.
type Config struct {
	// Provider is the reranker type: "tei", "lexical" or "none".
	Provider string `koanf:"provider"`

	// TEI configures the cross-encoder endpoint (provider "tei").
	TEI TEIConfig `koanf:"tei"`
}

// New creates a Reranker based on the configuration.
func New(cfg Config) (Reranker, error) {
	switch cfg.Provider {
	case "tei", "":
		return NewTEIReranker(cfg.TEI)
	case "lexical":
		return NewLexicalReranker(), nil
	case "none":
		return noopReranker{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// noopReranker passes candidates through unchanged, preserving pure
// similarity ordering.
type noopReranker struct{}

func (noopReranker) Rerank(_ context.Context, _ string, candidates []corpus.RankedPassage) ([]corpus.RankedPassage, error) {
	out := make([]corpus.RankedPassage, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].RerankScore = out[i].Similarity
	}
	return out, nil
}

func (noopReranker) Close() error { return nil }
