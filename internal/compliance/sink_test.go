package compliance

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/complianced/internal/verdict"
)

func TestFileSink_Store(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "verdicts")
	sink := NewFileSink(dir)

	v := verdict.Verdict{
		ID:     "v-123",
		Score:  55,
		Status: verdict.StatusNonCompliant,
		Violations: []verdict.Violation{
			{Field: "mrp", Issue: "missing", RuleReference: "Rule 6"},
		},
		Reasoning: "MRP absent.",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, sink.Store(context.Background(), v))

	data, err := os.ReadFile(filepath.Join(dir, "v-123.json"))
	require.NoError(t, err)

	var got verdict.Verdict
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, v, got)
}

func TestFileSink_StoreFailure(t *testing.T) {
	// A file where the sink wants a directory.
	path := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	sink := NewFileSink(path)
	err := sink.Store(context.Background(), verdict.Verdict{ID: "v-1"})
	require.Error(t, err)
}
