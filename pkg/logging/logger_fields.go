package logging

import (
	"math"
	"time"
)

// Scalar constructors. Values land inline in the Field; nothing is
// boxed until the line is encoded.

func String(key, value string) Field {
	return Field{Key: key, kind: kindString, str: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, kind: kindInt, num: int64(value)}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, kind: kindInt, num: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, kind: kindUint, num: int64(value)}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, kind: kindFloat, num: int64(math.Float64bits(value))}
}

func Bool(key string, value bool) Field {
	var n int64
	if value {
		n = 1
	}
	return Field{Key: key, kind: kindBool, num: n}
}

// Duration renders as the human form ("1.5ms"), not nanoseconds
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, kind: kindDuration, num: int64(value)}
}

// Error records err under the "error" key; nil encodes as null
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", kind: kindNil}
	}
	return Field{Key: "error", kind: kindError, str: err.Error()}
}

// Any takes the encoding/json path. Prefer a scalar constructor when
// one fits.
func Any(key string, value any) Field {
	return Field{Key: key, kind: kindAny, val: value}
}

// Domain keys the driver logs under everywhere

func Component(name string) Field {
	return String("component", name)
}

func NodeID(id string) Field {
	return String("node_id", id)
}

func Addr(addr string) Field {
	return String("addr", addr)
}

func Slot(slot int) Field {
	return Int("slot", slot)
}

func Operation(op string) Field {
	return String("operation", op)
}

func Attempt(n int) Field {
	return Int("attempt", n)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}
