package runtime

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewQueryTracer returns a pgx tracer writing statements to a "pgx" child
// of logger. An empty level means info.
func NewQueryTracer(logger *zap.Logger, level string) (*tracelog.TraceLog, error) {
	traceLevel := tracelog.LogLevelInfo
	if level != "" {
		parsed, err := tracelog.LogLevelFromString(level)
		if err != nil {
			return nil, fmt.Errorf("invalid query log level %q: %w", level, err)
		}
		traceLevel = parsed
	}

	return &tracelog.TraceLog{
		Logger:   tracelog.LoggerFunc(zapTraceFunc(logger.Named("pgx"))),
		LogLevel: traceLevel,
	}, nil
}

var traceLevels = map[tracelog.LogLevel]zapcore.Level{
	tracelog.LogLevelTrace: zapcore.DebugLevel,
	tracelog.LogLevelDebug: zapcore.DebugLevel,
	tracelog.LogLevelInfo:  zapcore.InfoLevel,
	tracelog.LogLevelWarn:  zapcore.WarnLevel,
	tracelog.LogLevelError: zapcore.ErrorLevel,
}

func zapTraceFunc(logger *zap.Logger) func(context.Context, tracelog.LogLevel, string, map[string]any) {
	return func(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
		zl, ok := traceLevels[level]
		if !ok {
			return
		}
		fields := make([]zap.Field, 0, len(data))
		for k, v := range data {
			fields = append(fields, zap.Any(k, v))
		}
		logger.Log(zl, msg, fields...)
	}
}
