package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"wanotify/internal/logging"
)

// InitLogger configures the process logger and stamps it with the app
// name. Level and format come from the logging package's env overrides.
func InitLogger(app string) zerolog.Logger {
	logging.ConfigureRuntime()
	logger := log.Logger.With().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
