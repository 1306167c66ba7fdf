package utils

import (
	"io"

	"github.com/MrSnakeDoc/radio-scheduler/internal/logger"
)

// CloseLogged closes c and logs any error under the given resource name.
// Use for defer statements where we want to track close errors.
func CloseLogged(log logger.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		log.Warn("failed to close "+name, logger.Error(err))
		return
	}
	log.Debug(name + " closed")
}
