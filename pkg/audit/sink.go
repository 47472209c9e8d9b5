package audit

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sink is a destination for audit events.
type Sink interface {
	Write(ctx context.Context, event *Event) error
	Close() error
	Name() string
}

// LogSink writes each event as one structured "audit_event" line. Warning
// events are logged at warn level.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit")}
}

func (s *LogSink) Write(_ context.Context, event *Event) error {
	level := zapcore.InfoLevel
	if event.Severity == SeverityWarning {
		level = zapcore.WarnLevel
	}
	ce := s.logger.Check(level, "audit_event")
	if ce == nil {
		return nil
	}
	ce.Write(eventFields(event)...)
	return nil
}

func eventFields(event *Event) []zap.Field {
	fields := make([]zap.Field, 0, 7)
	fields = append(fields,
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
		zap.Time("timestamp", event.Timestamp),
		zap.String("recipient", event.Recipient),
	)
	if event.CorrelationID != "" {
		fields = append(fields, zap.String("correlation_id", event.CorrelationID))
	}
	if len(event.Details) > 0 {
		fields = append(fields, zap.Any("details", event.Details))
	}
	return fields
}

func (s *LogSink) Close() error { return nil }

func (s *LogSink) Name() string { return "log" }
