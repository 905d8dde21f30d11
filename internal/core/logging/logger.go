package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Install sets l, with the ContextHook attached, as the global logger that
// Component derives from.
func Install(l zerolog.Logger) {
	log.Logger = l.Hook(ContextHook{})
}

// Component creates a new logger with a component identifier.
// Uses the "cmp" key for consistency with zerolog conventions.
func Component(name string) zerolog.Logger {
	return log.With().Str("cmp", name).Logger()
}
