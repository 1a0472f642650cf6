package tscore

import "github.com/asticode/go-astikit"

// We use a global logger because it feels weird to inject a logger in pure
// codec functions. Nothing in the package writes to it: a table decode
// that falls back to raw bytes is silent, and anything a caller needs to
// assert on goes through the Observer instead, see DemuxerOptObserver.
var logger = astikit.AdaptStdLogger(nil)

// SetLogger replaces the package-wide logger.
func SetLogger(l astikit.StdLogger) { logger = astikit.AdaptStdLogger(l) }

// Warning is a non-fatal event surfaced by the Demuxer while running in
// lenient mode: a dropped/corrupted frame, a PSI section that failed to
// decode, or an unhandled PID. A lenient Aggregator resets itself on a
// PES error without producing a Warning.
type Warning struct {
	PID uint16
	Err error
}

// Observer receives Warnings as they occur. It must not block; the
// Demuxer calls it synchronously from within Push.
type Observer func(Warning)

func (o Observer) emit(pid uint16, err error) {
	if o == nil || err == nil {
		return
	}
	o(Warning{PID: pid, Err: err})
}
