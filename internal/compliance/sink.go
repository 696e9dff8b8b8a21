package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/complianced/internal/verdict"
)

// Sink receives the final verdict. Durable storage is the
// collaborator's concern; the core only hands the record over.
type Sink interface {
	Store(ctx context.Context, v verdict.Verdict) error
}

// FileSink writes each verdict as a JSON file named by verdict ID.
type FileSink struct {
	Dir string
}

// NewFileSink creates a FileSink rooted at dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir}
}

// Store implements Sink.
func (s *FileSink) Store(_ context.Context, v verdict.Verdict) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("creating sink dir %s: %w", s.Dir, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding verdict %s: %w", v.ID, err)
	}
	path := filepath.Join(s.Dir, v.ID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing verdict %s: %w", path, err)
	}
	return nil
}
