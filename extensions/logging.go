package extensions

import (
	"log/slog"

	core "github.com/coregraph/core"
)

// LoggingExtension logs every resource init and task run reported to
// extensions (event emissions are not reported) through a slog.Logger, adapted from a Wrap-based LoggingExtension to the two-callback OnStart/OnEnd shape.
type LoggingExtension struct {
	core.BaseExtension
	logger *slog.Logger
}

// NewLoggingExtension creates a logging extension writing through l.
func NewLoggingExtension(l *slog.Logger) *LoggingExtension {
	return &LoggingExtension{
		BaseExtension: core.BaseExtension{ExtName: "logging"},
		logger:        l,
	}
}

func (e *LoggingExtension) OnStart(op core.Operation) {
	e.logger.Debug("operation starting", "kind", op.Kind, "id", op.ID)
}

func (e *LoggingExtension) OnEnd(op core.Operation) {
	if op.Err != nil {
		e.logger.Error("operation failed", "kind", op.Kind, "id", op.ID, "duration", op.Duration, "error", op.Err)
		return
	}
	e.logger.Info("operation completed", "kind", op.Kind, "id", op.ID, "duration", op.Duration)
}
