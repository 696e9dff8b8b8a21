package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fyrsmithlabs/complianced/internal/corpus"
	"github.com/fyrsmithlabs/complianced/internal/embeddings"
)

// Config holds configuration for the index store.
type Config struct {
	// Path is the root directory for persisted indexes. Each corpus
	// fingerprint gets its own subdirectory.
	// Default: "~/.config/complianced/index"
	Path string `koanf:"path"`

	// Collection is the chromem collection name holding the passages.
	Collection string `koanf:"collection"`

	// VectorSize is the expected embedding dimension. Must match the
	// embedder's output; a mismatch during build is an ErrIndexBuild.
	// Default: 384 (bge-small-en-v1.5)
	VectorSize int `koanf:"vector_size"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/complianced/index"
	}
	if c.Collection == "" {
		c.Collection = "rules"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// Store manages persisted indexes keyed by corpus fingerprint.
//
// Builds are mutually exclusive per fingerprint: concurrent callers
// for the same fingerprint share one in-flight build instead of
// duplicating writes to persisted storage.
type Store struct {
	config   Config
	embedder embeddings.Embedder
	logger   *zap.Logger
	group    singleflight.Group
}

// NewStore creates a Store with the given configuration.
func NewStore(config Config, embedder embeddings.Embedder, logger *zap.Logger) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &Store{
		config:   config,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// LoadOrBuild returns the index for the given corpus fingerprint,
// loading the persisted build when one exists and building (and
// persisting) otherwise. The passages are only embedded on a build;
// an unchanged fingerprint never re-embeds.
func (s *Store) LoadOrBuild(ctx context.Context, fingerprint string, passages []corpus.Passage) (*Index, error) {
	v, err, _ := s.group.Do(fingerprint, func() (interface{}, error) {
		return s.loadOrBuild(ctx, fingerprint, passages)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Index), nil
}

func (s *Store) loadOrBuild(ctx context.Context, fingerprint string, passages []corpus.Passage) (*Index, error) {
	ctx, span := indexTracer.Start(ctx, "Store.LoadOrBuild")
	defer span.End()
	span.SetAttributes(attribute.String("fingerprint", fingerprint))

	dir, err := s.fingerprintDir(fingerprint)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating directory %s: %v", ErrIndexBuild, dir, err)
	}

	db, err := chromem.NewPersistentDB(dir, s.config.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: opening persistent DB: %v", ErrIndexBuild, err)
	}

	// Cache hit when the persisted collection holds exactly the corpus
	// passage count. Identical fingerprints imply identical passages,
	// so a mismatch means a partial prior build; rebuild wholesale.
	if collection := db.GetCollection(s.config.Collection, s.embeddingFunc()); collection != nil && collection.Count() == len(passages) {
		span.SetAttributes(attribute.Bool("cache_hit", true), attribute.Int("passages", collection.Count()))
		s.logger.Info("index loaded from cache",
			zap.String("fingerprint", fingerprint),
			zap.Int("passages", collection.Count()),
		)
		return &Index{
			fingerprint: fingerprint,
			collection:  collection,
			embedder:    s.embedder,
			logger:      s.logger,
		}, nil
	}

	span.SetAttributes(attribute.Bool("cache_hit", false))
	return s.build(ctx, db, fingerprint, passages)
}

// build embeds all passages and persists them. Rebuilds are wholesale:
// the collection is recreated from scratch, never patched.
func (s *Store) build(ctx context.Context, db *chromem.DB, fingerprint string, passages []corpus.Passage) (*Index, error) {
	ctx, span := indexTracer.Start(ctx, "Store.build")
	defer span.End()
	span.SetAttributes(
		attribute.String("fingerprint", fingerprint),
		attribute.Int("passages", len(passages)),
	)

	start := time.Now()

	// Drop any partial prior state before writing.
	if err := db.DeleteCollection(s.config.Collection); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: resetting collection: %v", ErrIndexBuild, err)
	}
	collection, err := db.GetOrCreateCollection(s.config.Collection, nil, s.embeddingFunc())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: creating collection: %v", ErrIndexBuild, err)
	}

	if len(passages) > 0 {
		texts := make([]string, len(passages))
		for i, p := range passages {
			texts[i] = p.Text
		}

		vectors, err := s.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("%w: embedding passages: %v", ErrIndexBuild, err)
		}
		if len(vectors) != len(passages) {
			return nil, fmt.Errorf("%w: got %d vectors for %d passages", ErrIndexBuild, len(vectors), len(passages))
		}
		for i, vec := range vectors {
			if len(vec) != s.config.VectorSize {
				return nil, fmt.Errorf("%w: vector %d has dimension %d, expected %d",
					ErrIndexBuild, i, len(vec), s.config.VectorSize)
			}
		}

		docs := make([]chromem.Document, len(passages))
		for i, p := range passages {
			docs[i] = chromem.Document{
				ID:      p.ID,
				Content: p.Text,
				Metadata: map[string]string{
					metaDocumentID: p.DocumentID,
					metaOrdinal:    strconv.Itoa(p.Ordinal),
				},
				Embedding: vectors[i],
			}
		}
		if err := collection.AddDocuments(ctx, docs, 1); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("%w: persisting passages: %v", ErrIndexBuild, err)
		}
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Info("index built",
		zap.String("fingerprint", fingerprint),
		zap.Int("passages", len(passages)),
		zap.Duration("duration", time.Since(start)),
	)

	return &Index{
		fingerprint: fingerprint,
		collection:  collection,
		embedder:    s.embedder,
		logger:      s.logger,
	}, nil
}

// Prune removes persisted indexes for every fingerprint except keep.
// Old builds are only a disk-space concern; they are never served for
// a newer corpus because lookups are fingerprint-keyed.
func (s *Store) Prune(keep string) error {
	root, err := expandPath(s.config.Path)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading index root %s: %w", root, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			return fmt.Errorf("pruning index %s: %w", entry.Name(), err)
		}
		s.logger.Info("pruned stale index", zap.String("fingerprint", entry.Name()))
	}
	return nil
}

func (s *Store) fingerprintDir(fingerprint string) (string, error) {
	if fingerprint == "" {
		return "", fmt.Errorf("%w: empty fingerprint", ErrIndexBuild)
	}
	root, err := expandPath(s.config.Path)
	if err != nil {
		return "", fmt.Errorf("%w: expanding path: %v", ErrIndexBuild, err)
	}
	return filepath.Join(root, fingerprint), nil
}

// embeddingFunc adapts the Embedder to chromem's query-time interface.
// Unused for document writes, which supply precomputed embeddings.
func (s *Store) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// expandPath expands ~ to home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
