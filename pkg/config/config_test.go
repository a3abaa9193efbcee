package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp switches into a fresh directory, optionally seeding config.yaml.
func chdirTemp(t *testing.T, yamlContent string) {
	t.Helper()

	tmpDir := t.TempDir()
	if yamlContent != "" {
		err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(yamlContent), 0644)
		require.NoError(t, err)
	}

	originalDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	chdirTemp(t, `
port: "3001"
env: "test"
database:
  host: "db.example.com"
  port: 5432
  user: "testuser"
  database: "testdb"
completion:
  provider: "anthropic"
  model: "claude-3-5-sonnet-20241022"
dune:
  poll_attempts: 5
`)

	os.Unsetenv("PGHOST")
	t.Setenv("PORT", "4001")
	t.Setenv("DUNE_API_KEY", "dune-secret")
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-secret")

	cfg, err := Load("test-version")
	require.NoError(t, err)

	assert.Equal(t, "4001", cfg.Port, "env should override YAML")
	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, 5, cfg.Dune.PollAttempts)
	assert.Equal(t, "dune-secret", cfg.Dune.APIKey)
	assert.True(t, cfg.Dune.IsConfigured())
	assert.True(t, cfg.Completion.IsConfigured())
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	chdirTemp(t, "")

	cfg, err := Load("dev")
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.Completion.Provider)
	assert.Equal(t, 4000, cfg.Completion.MaxTokens)
	assert.InDelta(t, 0.3, cfg.Completion.Temperature, 0.0001)
	assert.Equal(t, 30*time.Second, cfg.Completion.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Dune.Timeout)
	assert.Equal(t, 15, cfg.Dune.PollAttempts)
	assert.Equal(t, 2*time.Second, cfg.Dune.PollInterval)
	assert.Equal(t, 10, cfg.Relevance.DefaultLimit)
	assert.Equal(t, 50, cfg.Relevance.CandidatePool)
	assert.InDelta(t, 0.2, cfg.Persistence.QualityImprovementRatio, 0.0001)
	assert.Equal(t, 30*24*time.Hour, cfg.Persistence.StaleAfter)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	chdirTemp(t, "")
	t.Setenv("COMPLETION_PROVIDER", "bard")

	_, err := Load("dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid completion provider")
}

func TestValidate_PersistenceRatio(t *testing.T) {
	chdirTemp(t, "")
	t.Setenv("PERSIST_QUALITY_IMPROVEMENT_RATIO", "1.5")

	_, err := Load("dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quality_improvement_ratio")
}

func TestCompletionConfig_APIKeyFollowsProvider(t *testing.T) {
	c := CompletionConfig{Provider: ProviderOpenAI, AnthropicAPIKey: "a", OpenAIAPIKey: "o"}
	assert.Equal(t, "o", c.APIKey())

	c.Provider = ProviderAnthropic
	assert.Equal(t, "a", c.APIKey())
}

func TestDatabaseConfig_URL(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5433/d?sslmode=disable", d.URL())
}
