// Package index builds and queries the embedding index over the rule
// corpus. The index is content-addressed: each corpus fingerprint gets
// its own persisted chromem-go database, so an unchanged corpus is
// never re-embedded and a changed corpus always gets a fresh build.
package index

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complianced/internal/corpus"
	"github.com/fyrsmithlabs/complianced/internal/embeddings"
)

var indexTracer = otel.Tracer("complianced.index")

var (
	// ErrIndexBuild indicates the corpus could not be embedded or
	// persisted. Fatal to the compliance subsystem: no queries can run
	// without an index.
	ErrIndexBuild = errors.New("index build failed")

	// ErrQuery indicates a single query could not be embedded. Fails
	// that query only.
	ErrQuery = errors.New("index query failed")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// metadata keys stored per passage in the collection.
const (
	metaDocumentID = "document_id"
	metaOrdinal    = "ordinal"
)

// Index is a read-only snapshot of one built corpus. Safe for
// concurrent searches; a corpus change produces a new Index rather
// than mutating this one.
type Index struct {
	fingerprint string
	collection  *chromem.Collection
	embedder    embeddings.Embedder
	logger      *zap.Logger
}

// Fingerprint returns the corpus fingerprint this index was built for.
func (ix *Index) Fingerprint() string {
	return ix.fingerprint
}

// Size returns the number of passages in the index.
func (ix *Index) Size() int {
	return ix.collection.Count()
}

// Search embeds the query and returns the k most similar passages by
// cosine similarity, highest first. k is clamped to the index size;
// an empty index yields an empty result, not an error.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]corpus.RankedPassage, error) {
	ctx, span := indexTracer.Start(ctx, "Index.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("fingerprint", ix.fingerprint),
		attribute.Int("k", k),
	)

	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrQuery)
	}
	if k <= 0 {
		return []corpus.RankedPassage{}, nil
	}

	// chromem requires nResults <= document count.
	size := ix.collection.Count()
	if size == 0 {
		return []corpus.RankedPassage{}, nil
	}
	if k > size {
		k = size
	}

	embedding, err := ix.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: embedding query: %v", ErrQuery, err)
	}

	results, err := ix.collection.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: querying collection: %v", ErrQuery, err)
	}

	passages := make([]corpus.RankedPassage, len(results))
	for i, r := range results {
		ordinal, _ := strconv.Atoi(r.Metadata[metaOrdinal])
		passages[i] = corpus.RankedPassage{
			PassageID:  r.ID,
			DocumentID: r.Metadata[metaDocumentID],
			Ordinal:    ordinal,
			Text:       r.Content,
			Similarity: r.Similarity,
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(passages)))
	span.SetStatus(codes.Ok, "success")

	ix.logger.Debug("searched index",
		zap.String("fingerprint", ix.fingerprint),
		zap.Int("k", k),
		zap.Int("results", len(passages)),
	)

	return passages, nil
}
