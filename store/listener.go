package store

import "log/slog"

// Listener receives a change notification once per successful mutation.
// Delivery is synchronous on the mutating goroutine and best-effort; this
// is the sole channel through which external indexing components learn of
// state changes.
type Listener interface {
	// OnUpdate reports a create or update. before holds the pre-mutation
	// property snapshot, or nil where not applicable. attributes carries
	// free-form tags such as "type:user" or "added:<ids>".
	OnUpdate(zone, id, actorID string, isNew bool, before Properties, attributes ...string)

	// OnDelete reports a removal, with the pre-deletion property snapshot.
	OnDelete(zone, id, actorID string, before Properties)
}

// NopListener discards all notifications.
var NopListener Listener = nopListener{}

type nopListener struct{}

func (nopListener) OnUpdate(string, string, string, bool, Properties, ...string) {}
func (nopListener) OnDelete(string, string, string, Properties)                  {}

// LoggingListener logs every notification. Useful as a default sink and in
// development.
type LoggingListener struct {
	logger *slog.Logger
}

// NewLoggingListener creates a LoggingListener. A nil logger falls back to
// slog.Default().
func NewLoggingListener(logger *slog.Logger) *LoggingListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingListener{logger: logger}
}

func (l *LoggingListener) OnUpdate(zone, id, actorID string, isNew bool, before Properties, attributes ...string) {
	l.logger.Info("row updated",
		"zone", zone,
		"id", id,
		"actor", actorID,
		"new", isNew,
		"attributes", attributes,
	)
}

func (l *LoggingListener) OnDelete(zone, id, actorID string, before Properties) {
	l.logger.Info("row deleted",
		"zone", zone,
		"id", id,
		"actor", actorID,
	)
}
