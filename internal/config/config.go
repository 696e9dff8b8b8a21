// Package config provides configuration loading for complianced.
package config

import (
	"fmt"

	"github.com/fyrsmithlabs/complianced/internal/chunker"
	"github.com/fyrsmithlabs/complianced/internal/embeddings"
	"github.com/fyrsmithlabs/complianced/internal/index"
	"github.com/fyrsmithlabs/complianced/internal/logging"
	"github.com/fyrsmithlabs/complianced/internal/reranker"
	"github.com/fyrsmithlabs/complianced/internal/retrieval"
	"github.com/fyrsmithlabs/complianced/internal/verdict"
)

// Config is the root configuration for complianced.
type Config struct {
	Corpus      CorpusConfig              `koanf:"corpus"`
	Chunker     chunker.Config            `koanf:"chunker"`
	Embeddings  embeddings.ProviderConfig `koanf:"embeddings"`
	Reranker    reranker.Config           `koanf:"reranker"`
	Index       index.Config              `koanf:"index"`
	Retrieval   retrieval.Config          `koanf:"retrieval"`
	Generation  GenerationConfig          `koanf:"generation"`
	Synthesizer verdict.SynthesizerConfig `koanf:"synthesizer"`
	Verdict     verdict.NormalizerConfig  `koanf:"verdict"`
	Sink        SinkConfig                `koanf:"sink"`
	Logging     logging.Config            `koanf:"logging"`
}

// CorpusConfig locates the source rule documents.
type CorpusConfig struct {
	// Dir holds the corpus as *.txt files, one document per file.
	Dir string `koanf:"dir"`
}

// GenerationConfig configures the generation service backing the
// verdict synthesizer. Any OpenAI-compatible chat completion endpoint
// works.
type GenerationConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  string `koanf:"api_key"`
}

// SinkConfig configures where verdicts are handed off.
type SinkConfig struct {
	// Dir enables the JSON file sink when non-empty.
	Dir string `koanf:"dir"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Corpus.Dir == "" {
		cfg.Corpus.Dir = "./corpus"
	}
	if cfg.Chunker == (chunker.Config{}) {
		cfg.Chunker = chunker.DefaultConfig()
	}
	cfg.Embeddings.TEI.ApplyDefaults()
	cfg.Embeddings.OpenAI.ApplyDefaults()
	cfg.Reranker.TEI.ApplyDefaults()
	cfg.Index.ApplyDefaults()
	cfg.Retrieval.ApplyDefaults()
	cfg.Synthesizer.ApplyDefaults()
	cfg.Verdict.ApplyDefaults()

	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gpt-4o-mini"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Fields == nil {
		cfg.Logging.Fields = map[string]string{"service": "complianced"}
	}
}

// Validate validates the full configuration.
func (c *Config) Validate() error {
	if err := c.Chunker.Validate(); err != nil {
		return fmt.Errorf("chunker: %w", err)
	}
	if err := c.Index.Validate(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if err := c.Retrieval.Validate(); err != nil {
		return fmt.Errorf("retrieval: %w", err)
	}
	if err := c.Synthesizer.Validate(); err != nil {
		return fmt.Errorf("synthesizer: %w", err)
	}
	if err := c.Verdict.Validate(); err != nil {
		return fmt.Errorf("verdict: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
