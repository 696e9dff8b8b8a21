package verdict

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complianced/internal/corpus"
)

var verdictTracer = otel.Tracer("complianced.verdict")

// SynthesizerConfig holds generation parameters.
type SynthesizerConfig struct {
	// Temperature for generation. Low by default: verdicts should be
	// repeatable, not creative.
	Temperature float64 `koanf:"temperature"`

	// MaxAttempts caps the bounded-retry loop around the generation
	// call. Generation services throw transient rate-limit and
	// availability failures; retries are explicit so attempt counts
	// and timing stay testable.
	MaxAttempts int `koanf:"max_attempts"`

	// InitialBackoff is the delay before the second attempt; each
	// subsequent attempt doubles it up to MaxBackoff. No jitter, so
	// the schedule is deterministic.
	InitialBackoff time.Duration `koanf:"initial_backoff"`

	// MaxBackoff caps the per-attempt delay.
	MaxBackoff time.Duration `koanf:"max_backoff"`

	// Timeout bounds each individual generation call.
	Timeout time.Duration `koanf:"timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *SynthesizerConfig) ApplyDefaults() {
	if c.Temperature == 0 {
		c.Temperature = 0.1
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 4
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

// Validate validates the configuration.
func (c *SynthesizerConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max_attempts must be >= 1", ErrInvalidConfig)
	}
	if c.InitialBackoff < 0 || c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("%w: backoff range invalid", ErrInvalidConfig)
	}
	return nil
}

// Synthesizer turns product facts plus retrieved passages into a raw
// verdict via one structured-generation call per attempt.
type Synthesizer struct {
	model   llms.Model
	config  SynthesizerConfig
	logger  *zap.Logger
	metrics *Metrics
}

// NewSynthesizer creates a Synthesizer on top of any langchaingo
// model.
func NewSynthesizer(model llms.Model, cfg SynthesizerConfig, logger *zap.Logger) (*Synthesizer, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{
		model:   model,
		config:  cfg,
		logger:  logger,
		metrics: NewMetrics(logger),
	}, nil
}

// Synthesize builds the generation request and runs it under the
// bounded-retry policy. A malformed response counts as a failed
// attempt; exhausting attempts surfaces ErrSynthesis with the attempt
// count, never a silent partial verdict.
func (s *Synthesizer) Synthesize(ctx context.Context, facts Facts, passages []corpus.RankedPassage) (RawVerdict, error) {
	ctx, span := verdictTracer.Start(ctx, "Synthesizer.Synthesize")
	defer span.End()
	span.SetAttributes(
		attribute.Int("passages", len(passages)),
		attribute.Int("max_attempts", s.config.MaxAttempts),
	)

	prompt := buildPrompt(facts, passages)

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := s.backoff(attempt)
			s.logger.Warn("generation attempt failed, backing off",
				zap.Int("attempt", attempt-1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				s.metrics.RecordSynthesis(ctx, attempt-1, time.Since(start), ctx.Err())
				return RawVerdict{}, fmt.Errorf("%w: canceled after %d attempts: %v", ErrSynthesis, attempt-1, ctx.Err())
			}
		}

		raw, err := s.generate(ctx, prompt)
		if err != nil {
			lastErr = err
			continue
		}

		span.SetAttributes(attribute.Int("attempts", attempt))
		span.SetStatus(codes.Ok, "success")
		s.metrics.RecordSynthesis(ctx, attempt, time.Since(start), nil)
		return raw, nil
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	s.metrics.RecordSynthesis(ctx, s.config.MaxAttempts, time.Since(start), lastErr)
	return RawVerdict{}, fmt.Errorf("%w after %d attempts: %v", ErrSynthesis, s.config.MaxAttempts, lastErr)
}

// generate runs one timeout-bounded generation call and parses the
// response.
func (s *Synthesizer) generate(ctx context.Context, prompt string) (RawVerdict, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	text, err := llms.GenerateFromSinglePrompt(callCtx, s.model, prompt,
		llms.WithTemperature(s.config.Temperature),
		llms.WithJSONMode(),
	)
	if err != nil {
		return RawVerdict{}, fmt.Errorf("generation call: %w", err)
	}
	return parseRawVerdict(text)
}

// backoff returns the deterministic delay before the given attempt
// (attempt >= 2): initial * 2^(attempt-2), capped at MaxBackoff.
func (s *Synthesizer) backoff(attempt int) time.Duration {
	delay := s.config.InitialBackoff
	for i := 2; i < attempt; i++ {
		delay *= 2
		if delay >= s.config.MaxBackoff {
			return s.config.MaxBackoff
		}
	}
	if delay > s.config.MaxBackoff {
		return s.config.MaxBackoff
	}
	return delay
}

// parseRawVerdict extracts the JSON object from the model response.
// Models occasionally wrap the JSON in prose or code fences despite
// instructions; take the outermost braces.
func parseRawVerdict(text string) (RawVerdict, error) {
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first < 0 || last <= first {
		return RawVerdict{}, fmt.Errorf("%w: no JSON object in response", ErrSchema)
	}

	var raw RawVerdict
	if err := json.Unmarshal([]byte(text[first:last+1]), &raw); err != nil {
		return RawVerdict{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return raw, nil
}
