package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentuity/go-doccache/logger"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagOrEnv(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("test-flag", "", "Test flag")

	cmd.Flags().Set("test-flag", "flag-value")
	assert.Equal(t, "flag-value", FlagOrEnv(cmd, "test-flag", "DOCCACHE_TEST_ENV", "default"))

	cmd.Flags().Set("test-flag", "")
	t.Setenv("DOCCACHE_TEST_ENV", "env-value")
	assert.Equal(t, "env-value", FlagOrEnv(cmd, "test-flag", "DOCCACHE_TEST_ENV", "default"))

	os.Unsetenv("DOCCACHE_TEST_ENV")
	assert.Equal(t, "default", FlagOrEnv(cmd, "test-flag", "DOCCACHE_TEST_ENV", "default"))
}

func TestDurationFlagOrEnv(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("ttl", "", "TTL")

	d, err := DurationFlagOrEnv(cmd, "ttl", "DOCCACHE_TEST_TTL", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	t.Setenv("DOCCACHE_TEST_TTL", "1d6h")
	d, err = DurationFlagOrEnv(cmd, "ttl", "DOCCACHE_TEST_TTL", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Hour, d)

	cmd.Flags().Set("ttl", "90s")
	d, err = DurationFlagOrEnv(cmd, "ttl", "DOCCACHE_TEST_TTL", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	cmd.Flags().Set("ttl", "whenever")
	_, err = DurationFlagOrEnv(cmd, "ttl", "DOCCACHE_TEST_TTL", time.Minute)
	assert.ErrorContains(t, err, "--ttl")
}

func TestLogLevel(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "Log level")

	testCases := []struct {
		name      string
		flagValue string
		envValue  string
		expected  logger.LogLevel
	}{
		{"debug level via flag", "debug", "", logger.LevelDebug},
		{"debug level via env", "", "DEBUG", logger.LevelDebug},
		{"warn level via flag", "warn", "", logger.LevelWarn},
		{"error level via env", "", "ERROR", logger.LevelError},
		{"trace level via flag", "trace", "", logger.LevelTrace},
		{"flag wins over env", "error", "debug", logger.LevelError},
		{"unknown level", "loud", "", logger.LevelInfo},
		{"default level", "", "", logger.LevelInfo},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cmd.Flags().Set("log-level", tc.flagValue)
			t.Setenv(logger.EnvLogLevel, tc.envValue)
			assert.Equal(t, tc.expected, LogLevel(cmd))
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(fn, []byte("DOCCACHE_TEST_A=from-file\nDOCCACHE_TEST_B=\"quoted value\"\n"), 0o600))
	t.Setenv("DOCCACHE_TEST_A", "already-set")
	t.Setenv("DOCCACHE_TEST_B", "")
	os.Unsetenv("DOCCACHE_TEST_B")

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), fn))
	assert.Equal(t, "already-set", os.Getenv("DOCCACHE_TEST_A"))
	assert.Equal(t, "quoted value", os.Getenv("DOCCACHE_TEST_B"))
}
