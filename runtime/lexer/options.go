package lexer

import "time"

// LexerOpt represents a lexer configuration option
type LexerOpt func(*LexerConfig)

// TelemetryMode controls telemetry collection (production-safe)
type TelemetryMode int

const (
	TelemetryOff    TelemetryMode = iota // Zero overhead (default)
	TelemetryBasic                       // Token counts only
	TelemetryTiming                      // Token counts + timing per type
)

// DebugLevel controls debug tracing (development only)
type DebugLevel int

const (
	DebugOff      DebugLevel = iota // No debug info (default)
	DebugPaths                      // State transition tracing
	DebugDetailed                   // State transitions + every emitted token
)

// Default action delimiters
const (
	DefaultLeftDelim  = "{{"
	DefaultRightDelim = "}}"
)

// LexerConfig holds lexer configuration
type LexerConfig struct {
	name       string
	leftDelim  string
	rightDelim string
	telemetry  TelemetryMode
	debug      DebugLevel
}

// WithName sets the source name used in debug output
func WithName(name string) LexerOpt {
	return func(c *LexerConfig) {
		c.name = name
	}
}

// WithDelims sets the action delimiters. An empty string selects the default
// for that side.
func WithDelims(left, right string) LexerOpt {
	return func(c *LexerConfig) {
		c.leftDelim = left
		c.rightDelim = right
	}
}

// WithTelemetryBasic enables basic telemetry (token counts only)
func WithTelemetryBasic() LexerOpt {
	return func(c *LexerConfig) {
		c.telemetry = TelemetryBasic
	}
}

// WithTelemetryTiming enables timing telemetry (counts + timing per type)
func WithTelemetryTiming() LexerOpt {
	return func(c *LexerConfig) {
		c.telemetry = TelemetryTiming
	}
}

// WithDebugPaths enables state transition tracing (development only)
func WithDebugPaths() LexerOpt {
	return func(c *LexerConfig) {
		c.debug = DebugPaths
	}
}

// WithDebugDetailed enables detailed tracing (development only)
func WithDebugDetailed() LexerOpt {
	return func(c *LexerConfig) {
		c.debug = DebugDetailed
	}
}

// TokenTelemetry holds per-token type telemetry (production-safe)
type TokenTelemetry struct {
	Type      TokenType
	Count     int
	TotalTime time.Duration
	AvgTime   time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// DebugEvent holds debug tracing information (development only)
type DebugEvent struct {
	Timestamp time.Time
	Event     string // "enter_lexText", "emit_NUMBER", ...
	Pos       int    // byte offset in the input
	Line      int
	Context   string // token text or state detail
}
