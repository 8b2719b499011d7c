// Package logging builds the zerolog loggers of wrplinspect.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"wrpl-inspect/internal/config"
)

const (
	EnvLogLevel     = "WRPL_LOG_LEVEL"
	EnvLogTimestamp = "WRPL_LOG_TIMESTAMP"
	EnvLogNoColor   = "WRPL_LOG_NOCOLOR"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config is the resolved logger setup.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	JSON      bool
}

var configureOnce sync.Once

// Configure builds the process logger from lc and the environment and
// installs it as the zerolog global logger. Only the first call has an
// effect; every call returns the global logger.
func Configure(profile Profile, lc config.LogConfig, w io.Writer) zerolog.Logger {
	configureOnce.Do(func() {
		zerolog.DurationFieldUnit = time.Millisecond
		log.Logger = New(w, Resolve(profile, lc))
	})
	return log.Logger
}

// Resolve merges profile defaults, the file config and env overrides, in
// that order.
func Resolve(profile Profile, lc config.LogConfig) Config {
	cfg := defaultConfig(profile)
	if lvl, ok := parseLevel(lc.Level); ok {
		cfg.Level = lvl
	}
	cfg.JSON = lc.Format == "json"
	cfg.NoColor = cfg.NoColor || lc.NoColor
	applyEnvOverrides(&cfg)
	return cfg
}

// New returns a logger writing to w.
func New(w io.Writer, cfg Config) zerolog.Logger {
	if !cfg.JSON {
		cw := zerolog.ConsoleWriter{Out: w, NoColor: cfg.NoColor, TimeFormat: time.TimeOnly}
		if !cfg.Timestamp {
			cw.PartsExclude = []string{zerolog.TimestampFieldName}
		}
		w = cw
	}
	ctx := zerolog.New(w).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

func defaultConfig(profile Profile) Config {
	switch profile {
	case ProfileTest:
		return Config{Level: zerolog.DebugLevel, NoColor: true}
	default:
		return Config{Level: zerolog.InfoLevel, Timestamp: true}
	}
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
