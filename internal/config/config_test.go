package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"
  run_scheduler: true

verification:
  mode: "twilio"
  dev_mode: false
  max_attempts: 3
  session_ttl_minutes: 20

sequence:
  enabled: true
  tick_interval_seconds: 60
  day_offsets: [0, 1, 3]

storage:
  type: "local"
  local_path: "./test-data"

estimation:
  default_price_per_m2: 2800
  price_per_m2:
    "75": 10400
    "69": 5100
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.True(t, cfg.Server.RunScheduler)

	assert.Equal(t, "twilio", cfg.Verification.Mode)
	assert.Equal(t, 3, cfg.Verification.MaxAttempts)
	assert.Equal(t, 20*time.Minute, cfg.Verification.SessionTTL())

	assert.True(t, cfg.Sequence.Enabled)
	assert.Equal(t, time.Minute, cfg.Sequence.TickInterval())
	assert.Equal(t, []int{0, 1, 3}, cfg.Sequence.DayOffsets)

	assert.Equal(t, "./test-data", cfg.Storage.LocalPath)

	assert.Equal(t, 2800.0, cfg.Estimation.DefaultPricePerM2)
	assert.Equal(t, 10400.0, cfg.Estimation.PricePerM2["75"])
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(configPath, []byte("server:\n  port: 0\n"), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "local", cfg.Verification.Mode)
	assert.Equal(t, []string{"123456"}, cfg.Verification.TestCodes)
	assert.Equal(t, 10*time.Minute, cfg.Verification.CodeTTL())
	assert.Equal(t, 5, cfg.Verification.MaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.Verification.SessionTTL())
	assert.Equal(t, 15*time.Minute, cfg.Sequence.TickInterval())
	assert.Equal(t, []int{0, 2, 5, 10}, cfg.Sequence.DayOffsets)
	assert.Equal(t, 3, cfg.Sequence.MaxAttempts)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, "sonar", cfg.Perplexity.Model)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "data/guides", cfg.Storage.LocalPath)
	assert.Equal(t, 0.08, cfg.Estimation.Spread)
}

func TestLoadFromEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
database:
  url: "postgres://file"
twilio:
  account_sid: "ACfile"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("TWILIO_ACCOUNT_SID", "ACenv")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("S3_BUCKET", "guides-bucket")
	t.Setenv("SMTP_PORT", "2525")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env", cfg.Database.URL)
	assert.Equal(t, "ACenv", cfg.Twilio.AccountSID)
	assert.True(t, cfg.OpenAI.Enabled)
	assert.Equal(t, "s3", cfg.Storage.Type)
	assert.Equal(t, 2525, cfg.SMTP.Port)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestTimeout(t *testing.T) {
	cfg := TwilioConfig{TimeoutSeconds: 45}
	assert.Equal(t, 45*time.Second, cfg.Timeout())
}
