package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// decodeLine unmarshals a single emitted line into a map
func decodeLine(t *testing.T, line []byte) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("line is not valid JSON: %v\n%s", err, line)
	}
	return entry
}

func TestJSONLogger_LineShape(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, DebugLevel)

	logger.Info("topology swapped",
		Component("provider"),
		Int("masters", 3),
		Uint64("version", 7),
		Float64("coverage", 0.5),
		Bool("full", false),
		Latency(1500*time.Microsecond),
	)

	entry := decodeLine(t, buf.Bytes())
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", entry["level"])
	}
	if entry["msg"] != "topology swapped" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if _, err := time.Parse(time.RFC3339Nano, entry["time"].(string)); err != nil {
		t.Errorf("time field does not parse: %v", err)
	}
	if entry["component"] != "provider" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["masters"] != float64(3) {
		t.Errorf("masters = %v", entry["masters"])
	}
	if entry["version"] != float64(7) {
		t.Errorf("version = %v", entry["version"])
	}
	if entry["coverage"] != 0.5 {
		t.Errorf("coverage = %v", entry["coverage"])
	}
	if entry["full"] != false {
		t.Errorf("full = %v", entry["full"])
	}
	if entry["latency"] != "1.5ms" {
		t.Errorf("latency = %v, want 1.5ms", entry["latency"])
	}
}

func TestJSONLogger_LevelGate(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel)

	logger.Debug("redirect followed", Slot(8192))
	if buf.Len() != 0 {
		t.Fatalf("debug line emitted below threshold: %s", buf.Bytes())
	}

	logger.SetLevel(DebugLevel)
	logger.Debug("redirect followed", Slot(8192))
	if buf.Len() == 0 {
		t.Fatal("debug line suppressed after SetLevel(DebugLevel)")
	}
}

func TestJSONLogger_With(t *testing.T) {
	var buf bytes.Buffer
	parent := NewJSONLogger(&buf, InfoLevel)
	child := parent.With(Component("executor"), Addr("10.0.0.1:7000"))

	child.Info("node task failed")
	entry := decodeLine(t, buf.Bytes())
	if entry["component"] != "executor" {
		t.Errorf("preset component missing: %v", entry)
	}
	if entry["addr"] != "10.0.0.1:7000" {
		t.Errorf("preset addr missing: %v", entry)
	}

	buf.Reset()
	parent.Info("refresh ok")
	entry = decodeLine(t, buf.Bytes())
	if _, ok := entry["component"]; ok {
		t.Error("child preset leaked into parent")
	}
}

func TestJSONLogger_CallSiteOverridesPreset(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel).With(Component("pool"))

	logger.Info("borrow failed", Component("pool/factory"))

	line := buf.String()
	if got := strings.Count(line, `"component"`); got != 1 {
		t.Fatalf("component emitted %d times, want 1: %s", got, line)
	}
	entry := decodeLine(t, buf.Bytes())
	if entry["component"] != "pool/factory" {
		t.Errorf("component = %v, want call-site value", entry["component"])
	}
}

func TestJSONLogger_SharedLevel(t *testing.T) {
	var buf bytes.Buffer
	parent := NewJSONLogger(&buf, DebugLevel)
	child := parent.With(Component("transport"))

	parent.SetLevel(ErrorLevel)
	child.Info("dial ok")
	if buf.Len() != 0 {
		t.Fatal("child ignored the family level")
	}
	if child.GetLevel() != ErrorLevel {
		t.Errorf("child level = %v, want ErrorLevel", child.GetLevel())
	}
}

func TestJSONLogger_StringEscaping(t *testing.T) {
	cases := []string{
		`plain`,
		`has "quotes" inside`,
		`back\slash`,
		"line\nbreak and\ttab",
		"carriage\rreturn",
		"control\x01byte",
		"unicode: ключ 键",
		"",
	}
	for _, msg := range cases {
		var buf bytes.Buffer
		logger := NewJSONLogger(&buf, InfoLevel)
		logger.Info(msg, String("key", msg))

		entry := decodeLine(t, buf.Bytes())
		if entry["msg"] != msg {
			t.Errorf("msg round trip: got %q, want %q", entry["msg"], msg)
		}
		if entry["key"] != msg {
			t.Errorf("field round trip: got %q, want %q", entry["key"], msg)
		}
	}
}

func TestJSONLogger_ErrorField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel)

	logger.Error("refresh failed", Error(errors.New("connection refused")))
	entry := decodeLine(t, buf.Bytes())
	if entry["error"] != "connection refused" {
		t.Errorf("error = %v", entry["error"])
	}

	buf.Reset()
	logger.Info("refresh ok", Error(nil))
	entry = decodeLine(t, buf.Bytes())
	if v, ok := entry["error"]; !ok || v != nil {
		t.Errorf("nil error should encode as null, got %v", v)
	}
}

func TestJSONLogger_AnyField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel)

	logger.Info("slot ranges", Any("ranges", []int{0, 8191}))
	entry := decodeLine(t, buf.Bytes())
	ranges, ok := entry["ranges"].([]any)
	if !ok || len(ranges) != 2 {
		t.Fatalf("ranges = %v", entry["ranges"])
	}
	if ranges[0] != float64(0) || ranges[1] != float64(8191) {
		t.Errorf("ranges = %v", ranges)
	}
}

// syncBuffer guards reads; writes are already serialized by the sink
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Lines() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Split(bytes.TrimSpace(b.buf.Bytes()), []byte("\n"))
}

func TestJSONLogger_ConcurrentWriters(t *testing.T) {
	out := &syncBuffer{}
	parent := NewJSONLogger(out, InfoLevel)

	const workers = 16
	const lines = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			logger := parent.With(Int("worker", id))
			for i := 0; i < lines; i++ {
				logger.Info("command done", Attempt(i), Operation("get"))
			}
		}(w)
	}
	wg.Wait()

	got := out.Lines()
	if len(got) != workers*lines {
		t.Fatalf("got %d lines, want %d", len(got), workers*lines)
	}
	for _, line := range got {
		var entry map[string]any
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Fatalf("interleaved or corrupt line: %v\n%s", err, line)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
	}{
		{"DEBUG", DebugLevel},
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"WARN", WarnLevel},
		{"warning", WarnLevel},
		{"ERROR", ErrorLevel},
		{"nonsense", InfoLevel},
		{"", InfoLevel},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLevel_String(t *testing.T) {
	if DebugLevel.String() != "DEBUG" || ErrorLevel.String() != "ERROR" {
		t.Error("level names drifted")
	}
	if Level(42).String() != "UNKNOWN" {
		t.Errorf("unexpected name for out-of-range level: %v", Level(42))
	}
}

func TestTimedOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel)

	timer := StartTimer(logger, "topology refresh", Component("provider"))
	time.Sleep(5 * time.Millisecond)
	timer.End()

	entry := decodeLine(t, buf.Bytes())
	if entry["component"] != "provider" {
		t.Errorf("timer field missing: %v", entry)
	}
	if _, ok := entry["latency"]; !ok {
		t.Error("latency field missing")
	}

	buf.Reset()
	timer = StartTimer(logger, "topology refresh")
	timer.EndError(errors.New("all candidates failed"))
	entry = decodeLine(t, buf.Bytes())
	if entry["level"] != "ERROR" {
		t.Errorf("EndError level = %v", entry["level"])
	}
	if entry["error"] != "all candidates failed" {
		t.Errorf("EndError error = %v", entry["error"])
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Info("dropped", String("key", "value"))
	child := logger.With(Component("anything"))
	child.Error("also dropped")
	if child.GetLevel() != InfoLevel {
		t.Error("nop logger level should read as INFO")
	}
}

func TestDefaultLogger_Replace(t *testing.T) {
	original := DefaultLogger()
	defer SetDefaultLogger(original)

	replacement := NewJSONLogger(io.Discard, WarnLevel)
	SetDefaultLogger(replacement)
	if DefaultLogger() != Logger(replacement) {
		t.Error("SetDefaultLogger did not take")
	}
}

func BenchmarkJSONLogger_Scalars(b *testing.B) {
	logger := NewJSONLogger(io.Discard, InfoLevel)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		logger.Info("command done",
			Component("executor"),
			Addr("10.0.0.1:7000"),
			Slot(8192),
			Attempt(1),
			Latency(250*time.Microsecond),
		)
	}
}
