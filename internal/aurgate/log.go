package aurgate

import (
	"os"
	"sync"

	"zombiezen.com/go/log"
)

var initLogOnce sync.Once

func initLogging(showDebug bool) {
	initLogOnce.Do(func() {
		minLogLevel := log.Info
		if showDebug {
			minLogLevel = log.Debug
		}
		log.SetDefault(&log.LevelFilter{
			Min:    minLogLevel,
			Output: log.New(os.Stderr, "aurgate: ", log.StdFlags, nil),
		})
	})
}
