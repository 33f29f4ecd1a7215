package logging

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

var (
	log         = newLogger(os.Stdout)
	serviceName = "parking-lot-service"
)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Init configures the package logger. An unknown level keeps info.
func Init(service, level string, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	log = newLogger(out)
	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
	if service != "" {
		serviceName = service
	}
}

func Logger() *logrus.Logger {
	return log
}

// WithContext returns a logger with trace context fields (trace_id, span_id) if available
func WithContext(ctx context.Context) *logrus.Entry {
	spanCtx := trace.SpanContextFromContext(ctx)

	fields := logrus.Fields{
		"service.name": serviceName,
	}

	if spanCtx.IsValid() {
		fields["trace_id"] = spanCtx.TraceID().String()
		fields["span_id"] = spanCtx.SpanID().String()
	}

	return log.WithFields(fields)
}

// WithFields returns a logger entry with additional custom fields
func WithFields(ctx context.Context, fields logrus.Fields) *logrus.Entry {
	return WithContext(ctx).WithFields(fields)
}

func Info(ctx context.Context, msg string) {
	WithContext(ctx).Info(msg)
}

func Infof(ctx context.Context, format string, args ...any) {
	WithContext(ctx).Infof(format, args...)
}

func Warnf(ctx context.Context, format string, args ...any) {
	WithContext(ctx).Warnf(format, args...)
}

func Errorf(ctx context.Context, format string, args ...any) {
	WithContext(ctx).Errorf(format, args...)
}

func Debugf(ctx context.Context, format string, args ...any) {
	WithContext(ctx).Debugf(format, args...)
}
