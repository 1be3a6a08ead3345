package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{
	Prefix: "floki",
	Level:  log.WarnLevel,
})

// setVerbosity maps the -v count onto the logger
func setVerbosity(n int) error {
	switch {
	case n <= 0:
		logger.SetLevel(log.WarnLevel)
	case n == 1:
		logger.SetLevel(log.InfoLevel)
	case n == 2:
		logger.SetLevel(log.DebugLevel)
	case n == 3:
		logger.SetLevel(log.DebugLevel)
		logger.SetReportCaller(true)
		return nil
	default:
		return &usageError{err: fmt.Errorf("too many -v flags: %d (at most 3)", n)}
	}
	logger.SetReportCaller(false)
	return nil
}
