package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoDocuments indicates the source yielded an empty corpus.
var ErrNoDocuments = errors.New("corpus source contains no documents")

// Source delivers the rule corpus. Implementations are the
// document-loading collaborators; the compliance core only consumes
// (id, text) pairs.
type Source interface {
	// Load returns all source documents. Called on every freshness
	// check, so implementations should be cheap for a small corpus.
	Load(ctx context.Context) ([]Document, error)
}

// DirSource loads every *.txt file from a directory as one document,
// using the file name as the document ID. Files are returned in name
// order so downstream fingerprinting and chunking are stable.
type DirSource struct {
	Dir string
}

// NewDirSource creates a DirSource rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir}
}

// Load implements Source.
func (s *DirSource) Load(ctx context.Context) ([]Document, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("reading corpus dir %s: %w", s.Dir, err)
	}

	var docs []Document
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.Dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading corpus file %s: %w", entry.Name(), err)
		}
		docs = append(docs, Document{ID: entry.Name(), Text: string(data)})
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDocuments, s.Dir)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// StaticSource serves a fixed in-memory corpus. Useful for tests and
// for callers that already hold the documents.
type StaticSource struct {
	Docs []Document
}

// Load implements Source.
func (s *StaticSource) Load(ctx context.Context) ([]Document, error) {
	if len(s.Docs) == 0 {
		return nil, ErrNoDocuments
	}
	out := make([]Document, len(s.Docs))
	copy(out, s.Docs)
	return out, nil
}
