// Package env resolves command line settings from cobra flags with an
// environment variable fallback.
package env

import (
	"log"
	"os"
	"time"

	"github.com/agentuity/go-doccache/logger"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/xhit/go-str2duration/v2"
)

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and finally return the default value
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok && val != "" {
		return val
	}
	return defaultValue
}

// DurationFlagOrEnv is FlagOrEnv for durations. Day and week units such as
// "1d12h" are accepted. An empty value yields defaultValue.
func DurationFlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue time.Duration) (time.Duration, error) {
	val := FlagOrEnv(cmd, flagName, envName, "")
	if val == "" {
		return defaultValue, nil
	}
	d, err := str2duration.ParseDuration(val)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration for --%s", flagName)
	}
	return d, nil
}

// LogLevel returns the level from the log-level flag, then DOCCACHE_LOG_LEVEL,
// falling back to info.
func LogLevel(cmd *cobra.Command) logger.LogLevel {
	level, err := logger.ParseLevel(FlagOrEnv(cmd, "log-level", logger.EnvLogLevel, "info"))
	if err != nil {
		return logger.LevelInfo
	}
	return level
}

// NewLogger returns a console logger, or a JSON logger when the log-format
// flag is "json", at the level chosen by LogLevel.
func NewLogger(cmd *cobra.Command) logger.Logger {
	log.SetFlags(0)
	level := LogLevel(cmd)
	if format, _ := cmd.Flags().GetString("log-format"); format == "json" {
		return logger.NewJSONLogger(level)
	}
	return logger.NewConsoleLogger(level)
}

// LoadDotEnv loads variables from the given files into the process
// environment without overriding ones that are already set. Missing files
// are skipped.
func LoadDotEnv(filenames ...string) error {
	for _, fn := range filenames {
		if _, err := os.Stat(fn); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(fn); err != nil {
			return errors.Wrapf(err, "error loading %s", fn)
		}
	}
	return nil
}
