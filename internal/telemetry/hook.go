package telemetry

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

// otelHook forwards logrus entries to the global otel logger provider.
type otelHook struct {
	logger otellog.Logger
}

func NewOTelHook() logrus.Hook {
	return &otelHook{
		logger: global.GetLoggerProvider().Logger(serviceName),
	}
}

func (h *otelHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *otelHook) Fire(entry *logrus.Entry) error {
	var record otellog.Record
	record.SetTimestamp(entry.Time)
	record.SetBody(otellog.StringValue(entry.Message))
	record.SetSeverity(toSeverity(entry.Level))
	record.SetSeverityText(entry.Level.String())

	for key, value := range entry.Data {
		if err, ok := value.(error); ok {
			record.AddAttributes(otellog.String(key, err.Error()))
			continue
		}
		record.AddAttributes(otellog.String(key, fmt.Sprint(value)))
	}

	ctx := entry.Context
	if ctx == nil {
		ctx = context.Background()
	}
	h.logger.Emit(ctx, record)
	return nil
}

func toSeverity(level logrus.Level) otellog.Severity {
	switch level {
	case logrus.PanicLevel, logrus.FatalLevel:
		return otellog.SeverityFatal
	case logrus.ErrorLevel:
		return otellog.SeverityError
	case logrus.WarnLevel:
		return otellog.SeverityWarn
	case logrus.InfoLevel:
		return otellog.SeverityInfo
	case logrus.DebugLevel:
		return otellog.SeverityDebug
	default:
		return otellog.SeverityTrace
	}
}
