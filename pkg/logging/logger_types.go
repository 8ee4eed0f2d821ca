package logging

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Level gates which log lines a logger emits
type Level int32

const (
	// DebugLevel traces per-command decisions; off in production
	DebugLevel Level = iota
	// InfoLevel records topology swaps, pool lifecycle, startup
	InfoLevel
	// WarnLevel flags degraded but self-healing conditions
	WarnLevel
	// ErrorLevel records failures that reached a caller
	ErrorLevel
)

// String returns the level name as it appears on the wire
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name to its Level. Unrecognized names fall
// back to InfoLevel rather than failing, so a typo in an env var never
// silences a process.
func ParseLevel(s string) Level {
	switch s {
	case "DEBUG", "debug":
		return DebugLevel
	case "INFO", "info":
		return InfoLevel
	case "WARN", "warn", "WARNING", "warning":
		return WarnLevel
	case "ERROR", "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// fieldKind selects how a Field's value is encoded. Scalar kinds are
// stored inline and appended without reflection; kindAny falls back to
// encoding/json.
type fieldKind uint8

const (
	kindAny fieldKind = iota
	kindString
	kindInt
	kindUint
	kindFloat
	kindBool
	kindDuration
	kindError
	kindNil
)

// Field is one key/value pair on a log line. Construct fields with the
// typed helpers (String, Int, Error, ...); the zero Field encodes as
// null. Keys are emitted as-is, so callers avoid the reserved envelope
// keys time, level, and msg.
type Field struct {
	Key  string
	kind fieldKind

	// num carries ints, bit-cast uints and floats, bools as 0/1,
	// and durations in nanoseconds, depending on kind.
	num int64
	str string
	val any
}

// Logger is the structured logging contract the driver's components
// accept. Implementations must be safe for concurrent use.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child logger whose lines carry the given
	// fields in addition to the call-site ones.
	With(fields ...Field) Logger

	SetLevel(level Level)
	GetLevel() Level
}

// sink is the shared write end of a logger family. One mutex per
// family keeps lines from a parent and its children from interleaving
// on the writer.
type sink struct {
	mu sync.Mutex
	w  io.Writer
}

// JSONLogger emits one JSON object per line.
//
// Concurrent Safety:
//  1. The level is a shared atomic: SetLevel on any logger in a With
//     family takes effect for all of them, without locking the emit
//     path.
//  2. Writes are serialized per family through the shared sink, so
//     concurrent callers never interleave bytes within a line.
type JSONLogger struct {
	sink  *sink
	level *atomic.Int32
	base  []Field
}

// NopLogger discards everything. Handy as a test stand-in.
type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (n NopLogger) With(...Field) Logger { return n }
func (NopLogger) SetLevel(Level)         {}
func (NopLogger) GetLevel() Level        { return InfoLevel }

// NewNopLogger returns a logger that discards all output
func NewNopLogger() Logger {
	return NopLogger{}
}

// TimedOperation measures one operation and logs its latency when
// ended. Obtain one from StartTimer.
type TimedOperation struct {
	logger Logger
	msg    string
	start  time.Time
	fields []Field
}
