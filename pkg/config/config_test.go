package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "simple", cfg.Logging.Format)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, 30, cfg.Server.ReadTimeoutSeconds)
	require.NotNil(t, cfg.Server.MetricsEnabled)
	assert.True(t, *cfg.Server.MetricsEnabled)

	assert.Equal(t, 30, cfg.Pipeline.ModeTimeouts[ModeQuick])
	assert.Equal(t, 60, cfg.Pipeline.ModeTimeouts[ModeStandard])
	assert.Equal(t, 180, cfg.Pipeline.ModeTimeouts[ModeResearch])
	assert.Equal(t, 120, cfg.Pipeline.ModeTimeouts[ModeEducational])
	assert.Equal(t, 6000, cfg.Pipeline.MaxTranscriptTokens)

	assert.True(t, cfg.Cache.IsEnabled())
	assert.True(t, cfg.RateLimit.IsEnabled())
	assert.Equal(t, int64(100), cfg.RateLimit.Requests)
	assert.Equal(t, 3600, cfg.RateLimit.WindowSeconds)

	assert.Equal(t, "chromem", cfg.Retrieval.Backend)
	assert.Equal(t, 1000, cfg.Retrieval.ChunkSize)
	assert.Equal(t, 200, cfg.Retrieval.ChunkOverlap)

	assert.Equal(t, 5, cfg.QA.TopK)
	assert.InDelta(t, 0.3, cfg.QA.ScoreThreshold, 0.001)
	assert.Equal(t, 3, cfg.QA.MaxHistoryTurns)

	assert.True(t, cfg.Database.IsEnabled())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "recapd.db", cfg.Database.Path)

	assert.False(t, cfg.Tracing.IsEnabled())
}

func TestLoadFile(t *testing.T) {
	t.Setenv("RECAPD_TEST_API_KEY", "sk-test-123")

	raw := `
logging:
  level: debug
  format: json
server:
  port: ${RECAPD_TEST_PORT:-9090}
pipeline:
  mode_timeouts:
    quick: 10
providers:
  llm:
    type: openai
    model: gpt-4o-mini
    api_key: ${RECAPD_TEST_API_KEY}
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sk-test-123", cfg.Providers.LLM.APIKey)

	// Overridden modes keep their value, the rest fall back to defaults.
	assert.Equal(t, 10, cfg.Pipeline.ModeTimeouts[ModeQuick])
	assert.Equal(t, 60, cfg.Pipeline.ModeTimeouts[ModeStandard])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadInvalidValues(t *testing.T) {
	raw := `
logging:
  level: loud
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "logging")
}

func TestValidateRejectsBadSections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = -1 },
			wantErr: "server",
		},
		{
			name:    "unknown pipeline mode",
			mutate:  func(c *Config) { c.Pipeline.ModeTimeouts["bogus"] = 10 },
			wantErr: "pipeline",
		},
		{
			name:    "overlap exceeds chunk size",
			mutate:  func(c *Config) { c.Retrieval.ChunkOverlap = c.Retrieval.ChunkSize },
			wantErr: "retrieval",
		},
		{
			name:    "score threshold out of range",
			mutate:  func(c *Config) { c.QA.ScoreThreshold = 1.5 },
			wantErr: "qa",
		},
		{
			name:    "unknown database driver",
			mutate:  func(c *Config) { c.Database.Driver = "oracle" },
			wantErr: "database",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.SetDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDisabledSectionsSkipValidation(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	cfg.Database.Enabled = BoolPtr(false)
	cfg.Database.Driver = "oracle"
	require.NoError(t, cfg.Validate())

	cfg = &Config{}
	cfg.SetDefaults()
	cfg.RateLimit.Enabled = BoolPtr(false)
	cfg.RateLimit.Requests = -1
	require.NoError(t, cfg.Validate())
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("RECAPD_TEST_SET", "value")
	t.Setenv("RECAPD_TEST_EMPTY", "")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"set variable", "key: ${RECAPD_TEST_SET}", "key: value"},
		{"set variable ignores default", "key: ${RECAPD_TEST_SET:-other}", "key: value"},
		{"unset with default", "key: ${RECAPD_TEST_UNSET:-fallback}", "key: fallback"},
		{"unset without default", "key: ${RECAPD_TEST_UNSET}", "key: "},
		{"empty falls back to default", "key: ${RECAPD_TEST_EMPTY:-fallback}", "key: fallback"},
		{"no references", "key: plain", "key: plain"},
		{"multiple references", "${RECAPD_TEST_SET}/${RECAPD_TEST_UNSET:-x}", "value/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandEnv(tt.in))
		})
	}
}

func TestExpandEnvMap(t *testing.T) {
	t.Setenv("RECAPD_TEST_NESTED", "secret")

	in := map[string]interface{}{
		"plain": "untouched",
		"ref":   "${RECAPD_TEST_NESTED}",
		"count": 3,
		"inner": map[string]interface{}{
			"ref": "${RECAPD_TEST_NESTED}",
		},
	}
	out := ExpandEnvMap(in)

	assert.Equal(t, "untouched", out["plain"])
	assert.Equal(t, "secret", out["ref"])
	assert.Equal(t, 3, out["count"])
	inner := out["inner"].(map[string]interface{})
	assert.Equal(t, "secret", inner["ref"])
}

func TestDatabaseConnectionString(t *testing.T) {
	sqlite := &DatabaseConfig{Driver: "sqlite", Path: "test.db"}
	assert.Equal(t, "test.db", sqlite.ConnectionString())

	pg := &DatabaseConfig{
		Driver: "postgres", Host: "db.internal", Port: 5432,
		Username: "recapd", Password: "pw", Database: "recapd", SSLMode: "require",
	}
	assert.Equal(t,
		"host=db.internal port=5432 user=recapd password=pw dbname=recapd sslmode=require",
		pg.ConnectionString())

	my := &DatabaseConfig{
		Driver: "mysql", Host: "db.internal", Port: 3306,
		Username: "recapd", Password: "pw", Database: "recapd",
	}
	assert.Equal(t, "recapd:pw@tcp(db.internal:3306)/recapd?parseTime=true", my.ConnectionString())
}
