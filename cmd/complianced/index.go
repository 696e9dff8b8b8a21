package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complianced/internal/chunker"
	"github.com/fyrsmithlabs/complianced/internal/corpus"
	"github.com/fyrsmithlabs/complianced/internal/embeddings"
	"github.com/fyrsmithlabs/complianced/internal/index"
)

var pruneStale bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or refresh the rule corpus index",
	Long: `Build the embedding index for the configured rule corpus.

The index is content-addressed by a fingerprint over the corpus and the
chunking configuration: an unchanged corpus loads from cache without
re-embedding, a changed corpus triggers a full rebuild.

Examples:
  # Build (or load) the index for the configured corpus
  complianced index

  # Also remove cached indexes for older corpus versions
  complianced index --prune`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&pruneStale, "prune", false, "remove cached indexes for other corpus fingerprints")
}

func runIndex(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx := cmd.Context()

	source := corpus.NewDirSource(cfg.Corpus.Dir)
	docs, err := source.Load(ctx)
	if err != nil {
		return err
	}

	ch, err := chunker.New(cfg.Chunker)
	if err != nil {
		return err
	}
	passages := ch.Split(docs)
	fingerprint := corpus.Fingerprint(docs, ch.Config().String())

	embedder, err := embeddings.NewProvider(cfg.Embeddings, logger.Underlying())
	if err != nil {
		return err
	}

	store, err := index.NewStore(cfg.Index, embedder, logger.Underlying())
	if err != nil {
		return err
	}

	idx, err := store.LoadOrBuild(ctx, fingerprint, passages)
	if err != nil {
		return err
	}

	if pruneStale {
		if err := store.Prune(fingerprint); err != nil {
			return err
		}
	}

	logger.Info(ctx, "index ready",
		zap.String("fingerprint", fingerprint),
		zap.Int("documents", len(docs)),
		zap.Int("passages", idx.Size()),
	)
	fmt.Printf("Index ready: %d passages from %d documents (fingerprint %.12s)\n",
		idx.Size(), len(docs), fingerprint)
	return nil
}
