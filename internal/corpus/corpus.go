// Package corpus defines the shared data model for the statutory rule
// corpus: source documents, the passages chunked out of them, and the
// content fingerprint that keys the embedding index.
package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Document is one source legal document as delivered by the
// document-loading collaborator. Text is the full extracted text;
// pagination and extraction are upstream concerns.
type Document struct {
	// ID uniquely identifies the source document (e.g. file name).
	ID string

	// Text is the full document text.
	Text string
}

// Passage is a bounded excerpt of a source document, the unit of
// retrieval. Passages are immutable once indexed; a corpus change
// triggers a wholesale rebuild, never an in-place patch.
type Passage struct {
	// ID is deterministic for a given document and chunking config,
	// which keeps index builds reproducible.
	ID string

	// DocumentID is the source document this passage was cut from.
	DocumentID string

	// Ordinal is the zero-based position of the passage within its
	// source document.
	Ordinal int

	// Text is the passage content.
	Text string
}

// PassageID builds the deterministic passage identifier.
func PassageID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s#%04d", documentID, ordinal)
}

// RankedPassage is a passage scored against one retrieval query.
// Transient: it exists only within a single retrieval call.
type RankedPassage struct {
	PassageID  string
	DocumentID string
	Ordinal    int
	Text       string

	// Similarity is the cosine similarity from the embedding index.
	Similarity float32

	// RerankScore is the cross-encoder relevance score. Zero until
	// the reranker has run.
	RerankScore float32
}

// Fingerprint computes the content hash over the source documents and
// the chunking configuration. Identical corpus + config always yields
// the same fingerprint, which is the caching invariant the index
// relies on: same fingerprint, no re-embedding.
//
// Documents are hashed in ID order so the fingerprint is independent
// of loader iteration order.
func Fingerprint(docs []Document, chunkConfig string) string {
	sorted := make([]Document, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	h := sha256.New()
	fmt.Fprintf(h, "chunker:%s\n", chunkConfig)
	for _, d := range sorted {
		fmt.Fprintf(h, "doc:%s:%d\n", d.ID, len(d.Text))
		h.Write([]byte(d.Text))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
