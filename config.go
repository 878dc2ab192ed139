package chordtest

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// DefaultWaitCeiling is the wait ceiling used when none is configured.
const DefaultWaitCeiling = 5 * time.Second

// Config holds the process-wide settings, read from the environment:
//
//	CHORDTEST_WAIT_CEILING  Go duration, e.g. "5s" or "1m30s" (default 5s)
//	CHORDTEST_LOG_LEVEL     logrus level name (default "info")
//
// Raising the ceiling on a slow build machine is the intended use: every bounded wait and
// every scope drain uses it, so there is one knob instead of timeouts scattered through
// tests.
type Config struct {
	WaitCeiling time.Duration
	LogLevel    logrus.Level
}

const envPrefix = "CHORDTEST"

// LoadConfig reads the configuration from the environment.
func LoadConfig() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetDefault("wait_ceiling", DefaultWaitCeiling.String())
	v.SetDefault("log_level", logrus.InfoLevel.String())

	ceiling, err := time.ParseDuration(v.GetString("wait_ceiling"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s_WAIT_CEILING: %w", envPrefix, err)
	} else if ceiling <= 0 {
		return Config{}, fmt.Errorf("invalid %s_WAIT_CEILING: must be positive, got %v", envPrefix, ceiling)
	}

	level, err := logrus.ParseLevel(v.GetString("log_level"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s_LOG_LEVEL: %w", envPrefix, err)
	}

	return Config{WaitCeiling: ceiling, LogLevel: level}, nil
}

var (
	envConfigOnce sync.Once
	envConfig     Config

	ceilingOverride atomic.Int64
)

// processConfig is the configuration loaded on first use. Bad values are reported and
// replaced with the defaults; a typo in an environment variable should not break every test.
func processConfig() Config {
	envConfigOnce.Do(func() {
		cfg, err := LoadConfig()
		if err != nil {
			logrus.WithError(err).Warn("chordtest: ignoring configuration from the environment")
			cfg = Config{WaitCeiling: DefaultWaitCeiling, LogLevel: logrus.InfoLevel}
		}
		envConfig = cfg
	})
	return envConfig
}

// WaitCeiling returns the upper bound on every bounded wait, including the drain in
// [Scope.Exit].
func WaitCeiling() time.Duration {
	if d := ceilingOverride.Load(); d > 0 {
		return time.Duration(d)
	}
	return processConfig().WaitCeiling
}

// SetWaitCeiling overrides the configured ceiling until the returned function is called. It
// applies to the whole process, so tests using it should not run in parallel with others that
// wait.
func SetWaitCeiling(d time.Duration) (restore func()) {
	if d <= 0 {
		panic(fmt.Sprintf("chordtest: wait ceiling must be positive, got %v", d))
	}
	prev := ceilingOverride.Swap(int64(d))
	return func() { ceilingOverride.Store(prev) }
}
