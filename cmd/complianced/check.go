package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complianced/internal/chunker"
	"github.com/fyrsmithlabs/complianced/internal/compliance"
	"github.com/fyrsmithlabs/complianced/internal/config"
	"github.com/fyrsmithlabs/complianced/internal/corpus"
	"github.com/fyrsmithlabs/complianced/internal/embeddings"
	"github.com/fyrsmithlabs/complianced/internal/index"
	"github.com/fyrsmithlabs/complianced/internal/reranker"
	"github.com/fyrsmithlabs/complianced/internal/retrieval"
	"github.com/fyrsmithlabs/complianced/internal/verdict"
)

var factsPath string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check product label facts against the rule corpus",
	Long: `Run a compliance check on one product's extracted label facts.

The facts file is a JSON object mapping field names to extracted
values. Omit a key entirely when the field is absent from the label;
an empty string means the field was present but unreadable.

Examples:
  complianced check --facts product.json`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&factsPath, "facts", "", "path to the product facts JSON file (required)")
	checkCmd.MarkFlagRequired("facts") //nolint:errcheck
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx := cmd.Context()

	facts, err := readFacts(factsPath)
	if err != nil {
		return err
	}

	service, err := buildService(cfg, logger.Underlying())
	if err != nil {
		return err
	}

	result, err := service.Check(ctx, facts)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding verdict: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// buildService assembles the full retrieval and synthesis pipeline
// from configuration.
func buildService(cfg *config.Config, logger *zap.Logger) (*compliance.Service, error) {
	source := corpus.NewDirSource(cfg.Corpus.Dir)

	ch, err := chunker.New(cfg.Chunker)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewProvider(cfg.Embeddings, logger)
	if err != nil {
		return nil, err
	}

	store, err := index.NewStore(cfg.Index, embedder, logger)
	if err != nil {
		return nil, err
	}

	rr, err := reranker.New(cfg.Reranker)
	if err != nil {
		return nil, err
	}

	orch, err := retrieval.NewOrchestrator(source, ch, store, rr, cfg.Retrieval, logger)
	if err != nil {
		return nil, err
	}

	model, err := generationModel(cfg.Generation)
	if err != nil {
		return nil, fmt.Errorf("creating generation client: %w", err)
	}

	synth, err := verdict.NewSynthesizer(model, cfg.Synthesizer, logger)
	if err != nil {
		return nil, err
	}

	norm, err := verdict.NewNormalizer(cfg.Verdict, logger)
	if err != nil {
		return nil, err
	}

	var sink compliance.Sink
	if cfg.Sink.Dir != "" {
		sink = compliance.NewFileSink(cfg.Sink.Dir)
	}

	return compliance.NewService(orch, synth, norm, sink, logger)
}

// generationModel builds the chat completion client the synthesizer
// talks to. Any OpenAI-compatible endpoint works; the base URL is
// only overridden when configured so the default provider keeps its
// own endpoint.
func generationModel(cfg config.GenerationConfig) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	token := cfg.APIKey
	if token == "" {
		token = os.Getenv("OPENAI_API_KEY")
	}
	if token == "" {
		// Local OpenAI-compatible servers accept any token.
		token = "placeholder"
	}
	opts = append(opts, openai.WithToken(token))
	return openai.New(opts...)
}
