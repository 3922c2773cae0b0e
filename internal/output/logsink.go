package output

import (
	"log/slog"

	"macrotoggle/internal/device"
)

// LogSink is a Sink that writes nothing and logs every event at debug level.
// It backs dry runs, where no uinput device is created.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink returns a LogSink logging to log.
func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (l *LogSink) Write(typ, code uint16, value int32) error {
	switch typ {
	case device.EvKey:
		l.log.Debug("dry-run key", "code", code, "value", value)
	case device.EvRel:
		l.log.Debug("dry-run rel", "axis", code, "value", value)
	default:
		l.log.Debug("dry-run event", "type", typ, "code", code, "value", value)
	}
	return nil
}

func (l *LogSink) Sync() error { return nil }

func (l *LogSink) Close() error { return nil }
