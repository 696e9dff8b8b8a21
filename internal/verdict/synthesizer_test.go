package verdict

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// scriptedModel returns canned responses (or errors) in order, and
// records the prompts it was called with.
type scriptedModel struct {
	mu        sync.Mutex
	responses []scriptedResponse
	prompts   []string
}

type scriptedResponse struct {
	text string
	err  error
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				m.prompts = append(m.prompts, text.Text)
			}
		}
	}

	call := len(m.prompts) - 1
	if call >= len(m.responses) {
		return nil, errors.New("no scripted response left")
	}
	resp := m.responses[call]
	if resp.err != nil {
		return nil, resp.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: resp.text}},
	}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(schema.ChatMessageTypeHuman, prompt)}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// fastRetryConfig keeps the retry schedule deterministic and quick.
func fastRetryConfig(attempts int) SynthesizerConfig {
	return SynthesizerConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		Timeout:        time.Second,
	}
}

const goodResponse = `{"compliance_status": "non_compliant", "compliance_score": 40,
  "violations": [{"field": "mrp", "issue": "missing", "rule_reference": "Rule 6", "reason": "not declared"}],
  "reasoning": "MRP is absent."}`

func TestSynthesize_Success(t *testing.T) {
	model := &scriptedModel{responses: []scriptedResponse{{text: goodResponse}}}
	s, err := NewSynthesizer(model, fastRetryConfig(3), nil)
	require.NoError(t, err)

	raw, err := s.Synthesize(context.Background(), Facts{FieldManufacturer: "Acme"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "non_compliant", raw.ComplianceStatus)
	require.Len(t, raw.Violations, 1)
	assert.Equal(t, "mrp", raw.Violations[0].Field)
	assert.Equal(t, 1, model.callCount())
}

func TestSynthesize_RetriesTransientFailures(t *testing.T) {
	model := &scriptedModel{responses: []scriptedResponse{
		{err: errors.New("rate limited")},
		{err: errors.New("rate limited")},
		{text: goodResponse},
	}}
	s, err := NewSynthesizer(model, fastRetryConfig(4), nil)
	require.NoError(t, err)

	raw, err := s.Synthesize(context.Background(), Facts{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "non_compliant", raw.ComplianceStatus)
	assert.Equal(t, 3, model.callCount())
}

func TestSynthesize_MalformedResponseCountsAsFailedAttempt(t *testing.T) {
	model := &scriptedModel{responses: []scriptedResponse{
		{text: "I am unable to produce JSON, sorry."},
		{text: "```json\n" + goodResponse + "\n```"},
	}}
	s, err := NewSynthesizer(model, fastRetryConfig(3), nil)
	require.NoError(t, err)

	// Second response is fenced; brace extraction still parses it.
	raw, err := s.Synthesize(context.Background(), Facts{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "non_compliant", raw.ComplianceStatus)
	assert.Equal(t, 2, model.callCount())
}

func TestSynthesize_ExhaustsAttempts(t *testing.T) {
	model := &scriptedModel{responses: []scriptedResponse{
		{err: errors.New("down")},
		{err: errors.New("down")},
		{err: errors.New("down")},
	}}
	s, err := NewSynthesizer(model, fastRetryConfig(3), nil)
	require.NoError(t, err)

	_, err = s.Synthesize(context.Background(), Facts{}, nil)
	require.ErrorIs(t, err, ErrSynthesis)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, model.callCount())
}

func TestSynthesize_ContextCancelDuringBackoff(t *testing.T) {
	model := &scriptedModel{responses: []scriptedResponse{
		{err: errors.New("down")},
		{text: goodResponse},
	}}
	cfg := SynthesizerConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Hour, // never elapses
		MaxBackoff:     time.Hour,
		Timeout:        time.Second,
	}
	s, err := NewSynthesizer(model, cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = s.Synthesize(ctx, Facts{}, nil)
	require.ErrorIs(t, err, ErrSynthesis)
	assert.Equal(t, 1, model.callCount(), "no further attempts after cancellation")
}

func TestBackoff_DeterministicSchedule(t *testing.T) {
	s, err := NewSynthesizer(&scriptedModel{}, SynthesizerConfig{
		MaxAttempts:    6,
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Second,
		Timeout:        time.Second,
	}, nil)
	require.NoError(t, err)

	// 1s, 2s, 4s, then capped.
	assert.Equal(t, time.Second, s.backoff(2))
	assert.Equal(t, 2*time.Second, s.backoff(3))
	assert.Equal(t, 4*time.Second, s.backoff(4))
	assert.Equal(t, 5*time.Second, s.backoff(5))
	assert.Equal(t, 5*time.Second, s.backoff(6))
}

func TestParseRawVerdict(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{name: "bare object", text: `{"compliance_status": "compliant"}`},
		{name: "prose wrapped", text: "Here you go:\n" + `{"compliance_status": "compliant"}` + "\nHope that helps."},
		{name: "code fenced", text: "```json\n{\"compliance_status\": \"compliant\"}\n```"},
		{name: "no json", text: "cannot comply", wantErr: true},
		{name: "empty", text: "", wantErr: true},
		{name: "broken json", text: `{"compliance_status": `, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := parseRawVerdict(tt.text)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrSchema)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "compliant", raw.ComplianceStatus)
		})
	}
}

func TestNewSynthesizer_Validation(t *testing.T) {
	_, err := NewSynthesizer(nil, SynthesizerConfig{}, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewSynthesizer(&scriptedModel{}, SynthesizerConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Millisecond,
	}, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSynthesizerConfig_Defaults(t *testing.T) {
	cfg := SynthesizerConfig{}
	cfg.ApplyDefaults()
	assert.Equal(t, 0.1, cfg.Temperature)
	assert.Equal(t, 4, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
	require.NoError(t, cfg.Validate())
}
