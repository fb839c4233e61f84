package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, minSamples int) string {
	t.Helper()
	for _, key := range []string{"API_FOOTBALL_KEY", "POSTGRES_DSN", "SQLITE_PATH", "REDIS_ADDR", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID"} {
		t.Setenv(key, "")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := fmt.Sprintf(`logging:
  level: error
source:
  competition: "Synthetic League"
  lookback: 1440h
storage:
  driver: memory
trainer:
  min_samples: %d
  validation_fraction: 0.2
  seed: 42
  epochs: 20
  learning_rate: 0.1
`, minSamples)
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func TestRun_ExitCodes(t *testing.T) {
	tests := []struct {
		name       string
		minSamples int
		args       func(config, report string) []string
		want       int
	}{
		{
			name: "missing config",
			args: func(_, _ string) []string { return []string{"-config", "does-not-exist.yaml"} },
			want: 1,
		},
		{
			name: "unknown flag",
			args: func(config, _ string) []string { return []string{"-config", config, "-bogus"} },
			want: 1,
		},
		{
			name:       "all targets trained",
			minSamples: 50,
			args:       func(config, report string) []string { return []string{"-config", config, "-report", report} },
			want:       0,
		},
		{
			name:       "not enough history",
			minSamples: 1_000_000,
			args:       func(config, report string) []string { return []string{"-config", config, "-report", report} },
			want:       2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := writeConfig(t, max(tt.minSamples, 1))
			report := filepath.Join(t.TempDir(), "report.md")
			var stdout bytes.Buffer

			assert.Equal(t, tt.want, run(tt.args(config, report), &stdout))
			if tt.want == 1 {
				return
			}
			data, err := os.ReadFile(report)
			require.NoError(t, err)
			assert.Contains(t, string(data), "# Training report")
			assert.Empty(t, stdout.String())
		})
	}
}

func TestRun_JSONToStdout(t *testing.T) {
	config := writeConfig(t, 50)
	var stdout bytes.Buffer

	require.Equal(t, 0, run([]string{"-config", config, "-json"}, &stdout))
	assert.Contains(t, stdout.String(), `"calibration_samples"`)
}
