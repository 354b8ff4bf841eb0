package aurgate

import (
	"errors"
	"sync/atomic"

	"github.com/gookit/color"
)

var (
	version   = "dev"     // overridden at build time
	buildDate = "unknown" // overridden at build time

	// ErrAborted is returned when standard input closes while a prompt is waiting.
	ErrAborted = errors.New("aborted: input closed")

	// isCriticalAtomic is 1 while pacman is changing the system; the signal
	// handler then needs a second interrupt before it gives up.
	isCriticalAtomic atomic.Int32
)

// critical runs fn with interrupts deferred to a second Ctrl+C.
func critical(fn func() error) error {
	isCriticalAtomic.Store(1)
	defer isCriticalAtomic.Store(0)
	return fn()
}

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
	colDim     = color.Gray
)
