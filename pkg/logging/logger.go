// Package logging emits structured JSON log lines. Fields are typed
// and appended to a pooled buffer, so the common scalar kinds never
// pass through reflection on the way out.
package logging

import (
	"encoding/json"
	"io"
	"math"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// NewJSONLogger creates a logger writing one JSON line per entry
func NewJSONLogger(w io.Writer, level Level) *JSONLogger {
	lvl := &atomic.Int32{}
	lvl.Store(int32(level))
	return &JSONLogger{
		sink:  &sink{w: w},
		level: lvl,
	}
}

// NewDefaultLogger creates a logger writing to stdout at INFO level
func NewDefaultLogger() *JSONLogger {
	return NewJSONLogger(os.Stdout, InfoLevel)
}

// linePool recycles encode buffers across log calls
var linePool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 512)
		return &b
	},
}

func (l *JSONLogger) log(level Level, msg string, fields []Field) {
	if level < Level(l.level.Load()) {
		return
	}

	bp := linePool.Get().(*[]byte)
	buf := (*bp)[:0]

	buf = append(buf, `{"time":"`...)
	buf = time.Now().AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","level":"`...)
	buf = append(buf, level.String()...)
	buf = append(buf, `","msg":`...)
	buf = appendQuoted(buf, msg)
	buf = appendFields(buf, l.base, fields)
	buf = append(buf, '}', '\n')

	l.sink.mu.Lock()
	l.sink.w.Write(buf)
	l.sink.mu.Unlock()

	*bp = buf
	linePool.Put(bp)
}

// appendFields encodes preset and call-site fields. A later field
// overrides an earlier one with the same key, so a With preset can be
// superseded at the call site. Field counts are small; the scan is
// quadratic on purpose.
func appendFields(dst []byte, base, extra []Field) []byte {
	at := func(i int) Field {
		if i < len(base) {
			return base[i]
		}
		return extra[i-len(base)]
	}
	n := len(base) + len(extra)
	for i := 0; i < n; i++ {
		f := at(i)
		overridden := false
		for j := i + 1; j < n; j++ {
			if at(j).Key == f.Key {
				overridden = true
				break
			}
		}
		if overridden {
			continue
		}
		dst = append(dst, ',')
		dst = appendQuoted(dst, f.Key)
		dst = append(dst, ':')
		dst = f.appendValue(dst)
	}
	return dst
}

func (f Field) appendValue(dst []byte) []byte {
	switch f.kind {
	case kindString, kindError:
		return appendQuoted(dst, f.str)
	case kindInt:
		return strconv.AppendInt(dst, f.num, 10)
	case kindUint:
		return strconv.AppendUint(dst, uint64(f.num), 10)
	case kindFloat:
		return strconv.AppendFloat(dst, math.Float64frombits(uint64(f.num)), 'g', -1, 64)
	case kindBool:
		return strconv.AppendBool(dst, f.num != 0)
	case kindDuration:
		return appendQuoted(dst, time.Duration(f.num).String())
	case kindNil:
		return append(dst, "null"...)
	default:
		raw, err := json.Marshal(f.val)
		if err != nil {
			return appendQuoted(dst, "!marshal: "+err.Error())
		}
		return append(dst, raw...)
	}
}

const hexDigits = "0123456789abcdef"

// appendQuoted writes s as a JSON string. Bytes above 0x7f pass
// through untouched; the line stays valid UTF-8 because the input is.
func appendQuoted(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			dst = append(dst, '\\', c)
		case c >= 0x20:
			dst = append(dst, c)
		case c == '\n':
			dst = append(dst, '\\', 'n')
		case c == '\t':
			dst = append(dst, '\\', 't')
		case c == '\r':
			dst = append(dst, '\\', 'r')
		default:
			dst = append(dst, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
		}
	}
	return append(dst, '"')
}

// Debug logs a debug-level message
func (l *JSONLogger) Debug(msg string, fields ...Field) {
	l.log(DebugLevel, msg, fields)
}

// Info logs an info-level message
func (l *JSONLogger) Info(msg string, fields ...Field) {
	l.log(InfoLevel, msg, fields)
}

// Warn logs a warning-level message
func (l *JSONLogger) Warn(msg string, fields ...Field) {
	l.log(WarnLevel, msg, fields)
}

// Error logs an error-level message
func (l *JSONLogger) Error(msg string, fields ...Field) {
	l.log(ErrorLevel, msg, fields)
}

// With returns a child logger carrying the given preset fields. The
// child shares the parent's writer and level.
func (l *JSONLogger) With(fields ...Field) Logger {
	base := make([]Field, 0, len(l.base)+len(fields))
	base = append(base, l.base...)
	base = append(base, fields...)
	return &JSONLogger{
		sink:  l.sink,
		level: l.level,
		base:  base,
	}
}

// SetLevel adjusts the threshold for this logger and every logger in
// its With family
func (l *JSONLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// GetLevel returns the current threshold
func (l *JSONLogger) GetLevel() Level {
	return Level(l.level.Load())
}

var (
	defaultMu     sync.Mutex
	defaultLogger Logger
)

// DefaultLogger returns the process-wide logger. The first call builds
// it, honoring KVCLIENT_LOG_LEVEL.
func DefaultLogger() Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		level := InfoLevel
		if s := os.Getenv("KVCLIENT_LOG_LEVEL"); s != "" {
			level = ParseLevel(s)
		}
		defaultLogger = NewJSONLogger(os.Stdout, level)
	}
	return defaultLogger
}

// SetDefaultLogger replaces the process-wide logger
func SetDefaultLogger(logger Logger) {
	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
}

// StartTimer begins timing an operation for a latency line
func StartTimer(logger Logger, msg string, fields ...Field) *TimedOperation {
	return &TimedOperation{
		logger: logger,
		msg:    msg,
		start:  time.Now(),
		fields: fields,
	}
}

// Elapsed returns the time since the operation started
func (t *TimedOperation) Elapsed() time.Duration {
	return time.Since(t.start)
}

// End logs the operation at INFO with its latency
func (t *TimedOperation) End() {
	t.logger.Info(t.msg, append(t.fields, Latency(t.Elapsed()))...)
}

// EndError logs the operation at ERROR with its latency and the error
func (t *TimedOperation) EndError(err error) {
	t.logger.Error(t.msg, append(t.fields, Latency(t.Elapsed()), Error(err))...)
}
