// Package log implements a minimal leveled tracer for the connection,
// session, and link state machines. It writes to os.Stderr by default
// and never buffers or blocks, matching the core's synchronous
// dispatch model: a log call must never become a suspension point.
package log

import (
	"fmt"
	"os"
	"sync/atomic"
)

// Level selects which Debugf calls are emitted.
type Level int32

const (
	// LevelNone disables all tracing.
	LevelNone Level = 0
	// LevelFrames traces performative send/receive at the connection
	// and session layers.
	LevelFrames Level = 1
	// LevelDebug additionally traces link credit and delivery
	// bookkeeping.
	LevelDebug Level = 2
)

var level int32

// SetLevel sets the package-wide trace level. Safe to call concurrently
// with Debugf from the compat package's Pump goroutine.
func SetLevel(l Level) {
	atomic.StoreInt32(&level, int32(l))
}

// Debugf writes a trace line to os.Stderr if at least l is currently
// enabled. format/args follow fmt.Printf conventions.
func Debugf(l Level, format string, args ...interface{}) {
	if Level(atomic.LoadInt32(&level)) < l {
		return
	}
	fmt.Fprintf(os.Stderr, "[amqp] "+format+"\n", args...)
}
