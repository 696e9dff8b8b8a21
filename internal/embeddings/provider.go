package embeddings

import (
	"context"
	"fmt"
	"net/http"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// ProviderConfig selects and configures an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "tei" or "openai".
	Provider string `koanf:"provider"`

	// TEI configures the TEI HTTP service (provider "tei").
	TEI Config `koanf:"tei"`

	// OpenAI configures the OpenAI-compatible provider.
	OpenAI Config `koanf:"openai"`
}

// NewProvider creates an Embedder based on the configuration.
func NewProvider(cfg ProviderConfig, logger *zap.Logger) (Embedder, error) {
	switch cfg.Provider {
	case "tei", "":
		return NewService(cfg.TEI, logger)
	case "openai":
		return newOpenAIEmbedder(cfg.OpenAI)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// openAIEmbedder adapts langchaingo's embedder to the Embedder
// interface. Works against the OpenAI API and any OpenAI-compatible
// endpoint.
type openAIEmbedder struct {
	embedder *lcembeddings.EmbedderImpl
}

func newOpenAIEmbedder(cfg Config) (*openAIEmbedder, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		// langchaingo requires a token even for keyless endpoints
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(apiKey),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return &openAIEmbedder{embedder: embedder}, nil
}

// EmbedDocuments generates embeddings for multiple texts.
func (e *openAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (e *openAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return vector, nil
}
