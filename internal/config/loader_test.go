package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestLoadWithFile_Defaults(t *testing.T) {
	// Missing file is fine: defaults apply.
	cfg, err := LoadWithFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "./corpus", cfg.Corpus.Dir)
	assert.Equal(t, 1000, cfg.Chunker.ChunkSize)
	assert.Equal(t, 6, cfg.Retrieval.TopK)
	assert.Equal(t, 70, cfg.Verdict.Threshold)
	assert.Equal(t, 4, cfg.Synthesizer.MaxAttempts)
	assert.Equal(t, "gpt-4o-mini", cfg.Generation.Model)
	assert.Equal(t, "rules", cfg.Index.Collection)
	assert.Equal(t, 384, cfg.Index.VectorSize)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadWithFile_YAMLValues(t *testing.T) {
	path := writeConfig(t, `
corpus:
  dir: /srv/rules
chunker:
  chunk_size: 800
  overlap: 0.2
  rule_aware: true
retrieval:
  top_k: 10
verdict:
  threshold: 80
synthesizer:
  max_attempts: 2
  timeout: 45s
logging:
  level: debug
  format: console
`, 0o600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/rules", cfg.Corpus.Dir)
	assert.Equal(t, 800, cfg.Chunker.ChunkSize)
	assert.InDelta(t, 0.2, cfg.Chunker.Overlap, 1e-9)
	assert.Equal(t, 10, cfg.Retrieval.TopK)
	assert.Equal(t, 80, cfg.Verdict.Threshold)
	assert.Equal(t, 2, cfg.Synthesizer.MaxAttempts)
	assert.Equal(t, "45s", cfg.Synthesizer.Timeout.String())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
retrieval:
  top_k: 10
`, 0o600)

	t.Setenv("RETRIEVAL_TOP_K", "9")
	t.Setenv("VERDICT_THRESHOLD", "85")
	t.Setenv("CORPUS_DIR", "/env/rules")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Retrieval.TopK)
	assert.Equal(t, 85, cfg.Verdict.Threshold)
	assert.Equal(t, "/env/rules", cfg.Corpus.Dir)
}

func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	path := writeConfig(t, "corpus:\n  dir: /srv/rules\n", 0o644)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_ReadOnlyPermitted(t *testing.T) {
	path := writeConfig(t, "corpus:\n  dir: /srv/rules\n", 0o400)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/rules", cfg.Corpus.Dir)
}

func TestLoadWithFile_TooLarge(t *testing.T) {
	path := writeConfig(t, "# "+strings.Repeat("x", maxConfigFileSize), 0o600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoadWithFile_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "corpus: [unclosed", 0o600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
}

func TestLoadWithFile_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "chunker overlap out of range",
			yaml:    "chunker:\n  chunk_size: 500\n  overlap: 0.9\n",
			wantErr: "chunker",
		},
		{
			name:    "threshold out of range",
			yaml:    "verdict:\n  threshold: 250\n",
			wantErr: "verdict",
		},
		{
			name:    "negative top_k",
			yaml:    "retrieval:\n  top_k: -2\n",
			wantErr: "retrieval",
		},
		{
			name:    "bad logging format",
			yaml:    "logging:\n  format: xml\n",
			wantErr: "logging",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml, 0o600)
			_, err := LoadWithFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
