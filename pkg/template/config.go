package template

import (
	"io"
	"os"
	"strconv"

	"github.com/opal-lang/weave/core/errors"
	"github.com/opal-lang/weave/runtime/executor"
	"github.com/opal-lang/weave/runtime/lexer"
)

// Environment variables read by ConfigFromEnvironment.
const (
	EnvLeftDelim    = "WEAVE_LEFT_DELIM"
	EnvRightDelim   = "WEAVE_RIGHT_DELIM"
	EnvMaxExecDepth = "WEAVE_MAX_EXEC_DEPTH"
	EnvDebug        = "WEAVE_DEBUG"
)

// logOutput receives family debug logs.
var logOutput io.Writer = os.Stderr

// Config holds family-wide settings.
type Config struct {
	LeftDelim    string // empty means "{{"
	RightDelim   string // empty means "}}"
	MaxExecDepth int    // {{template}} recursion limit
	Debug        bool   // log parse and execution telemetry
}

// DefaultConfig returns the settings used by New.
func DefaultConfig() Config {
	return Config{
		LeftDelim:    lexer.DefaultLeftDelim,
		RightDelim:   lexer.DefaultRightDelim,
		MaxExecDepth: executor.DefaultMaxDepth,
	}
}

// ConfigFromEnvironment starts from DefaultConfig and overrides each field
// whose environment variable is set.
func ConfigFromEnvironment() (Config, error) {
	cfg := DefaultConfig()
	if v := os.Getenv(EnvLeftDelim); v != "" {
		cfg.LeftDelim = v
	}
	if v := os.Getenv(EnvRightDelim); v != "" {
		cfg.RightDelim = v
	}
	if v := os.Getenv(EnvMaxExecDepth); v != "" {
		depth, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, errors.Wrapf(err, "invalid %s", EnvMaxExecDepth)
		}
		cfg.MaxExecDepth = depth
	}
	if v := os.Getenv(EnvDebug); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, errors.Wrapf(err, "invalid %s", EnvDebug)
		}
		cfg.Debug = debug
	}
	return cfg, cfg.Validate()
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	if c.MaxExecDepth <= 0 {
		return errors.Errorf("max exec depth must be positive, got %d", c.MaxExecDepth)
	}
	if (c.LeftDelim == "") != (c.RightDelim == "") {
		return errors.Errorf("delimiters must be set together, got %q and %q", c.LeftDelim, c.RightDelim)
	}
	return nil
}
