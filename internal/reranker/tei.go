package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/fyrsmithlabs/complianced/internal/corpus"
)

// TEIConfig holds configuration for the TEI cross-encoder reranker.
type TEIConfig struct {
	// BaseURL is the base URL of a text-embeddings-inference server
	// running a reranker model (e.g. BAAI/bge-reranker-base).
	BaseURL string `koanf:"base_url"`

	// APIKey is the API key (optional for TEI).
	APIKey string `koanf:"api_key"`

	// Timeout bounds each rerank HTTP call. Exceeding it is treated
	// as a rerank failure, which callers degrade on.
	Timeout time.Duration `koanf:"timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *TEIConfig) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8081"
	}
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Second
	}
}

// TEIReranker scores query-passage pairs with a cross-encoder model
// served by a TEI /rerank endpoint. Cross-encoders see query and
// passage together, which is more precise than bi-encoder similarity
// and why this pass only runs over the top candidates.
type TEIReranker struct {
	config TEIConfig
	client *http.Client
}

// NewTEIReranker creates a TEIReranker with the given configuration.
func NewTEIReranker(cfg TEIConfig) (*TEIReranker, error) {
	cfg.ApplyDefaults()
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	return &TEIReranker{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// rerankRequest is the request body for the TEI rerank endpoint.
type rerankRequest struct {
	Query    string   `json:"query"`
	Texts    []string `json:"texts"`
	Truncate bool     `json:"truncate"`
}

// rerankResult is one scored entry of the TEI rerank response.
type rerankResult struct {
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

// Rerank scores every candidate against the query and returns the
// same candidates sorted by cross-encoder score descending. Ties keep
// the input (similarity rank) order.
func (r *TEIReranker) Rerank(ctx context.Context, query string, candidates []corpus.RankedPassage) ([]corpus.RankedPassage, error) {
	if len(candidates) == 0 {
		return []corpus.RankedPassage{}, nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}

	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", r.config.BaseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.config.APIKey)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRerankFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrRerankFailed, resp.StatusCode, string(respBody))
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	out := make([]corpus.RankedPassage, len(candidates))
	copy(out, candidates)
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(out) {
			return nil, fmt.Errorf("%w: result index %d out of range", ErrRerankFailed, res.Index)
		}
		out[res.Index].RerankScore = res.Score
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RerankScore > out[j].RerankScore
	})
	return out, nil
}

// Close is a no-op for the HTTP reranker.
func (r *TEIReranker) Close() error {
	return nil
}
