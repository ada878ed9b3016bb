package observability

import (
	"github.com/danmuck/amqpwire/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger installs the runtime console logger tagged with app.
func InitLogger(app string) zerolog.Logger {
	logging.ConfigureRuntime()
	logger := log.Logger.With().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

// ConnLogger returns a child logger tagged with one proxied connection.
func ConnLogger(base zerolog.Logger, connID, client, upstream string) zerolog.Logger {
	return base.With().
		Str("conn", connID).
		Str("client", client).
		Str("upstream", upstream).
		Logger()
}
