package kintone

import (
	"os"
	"runtime"
	"sync/atomic"

	"github.com/gaborage/go-kintone/logger"
)

// EnvDebugUnsent enables unsent builder diagnostics when set to "1".
const EnvDebugUnsent = "KINTONE_DEBUG_UNSENT"

var unsentLogger atomic.Pointer[logger.Logger]

func init() {
	if os.Getenv(EnvDebugUnsent) == "1" {
		EnableUnsentDiagnostics(logger.New("warn", false))
	}
}

// EnableUnsentDiagnostics logs a warning for every tracked builder that is
// garbage collected without being sent. A nil logger disables diagnostics.
func EnableUnsentDiagnostics(log logger.Logger) {
	if log == nil {
		unsentLogger.Store(nil)
		return
	}
	unsentLogger.Store(&log)
}

type guarded interface {
	guard() *Guard
}

// TrackUnsent registers b for unsent diagnostics and returns it. It is a
// no-op unless diagnostics are enabled. b must be a pointer to a builder
// embedding Guard.
func TrackUnsent[B guarded](b B) B {
	if unsentLogger.Load() == nil {
		return b
	}
	runtime.SetFinalizer(b, func(b B) {
		reportUnsent(b.guard())
	})
	return b
}

func reportUnsent(g *Guard) bool {
	if g.Sent() {
		return false
	}
	lp := unsentLogger.Load()
	if lp == nil {
		return false
	}
	log := *lp
	func() {
		defer func() { _ = recover() }()
		log.Warn().
			Str("operation", g.operation).
			Msg("kintone request builder was never sent")
	}()
	return true
}
