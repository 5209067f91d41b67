package logger

import (
	"context"

	"github.com/flexprice/couponengine/internal/config"
	"github.com/flexprice/couponengine/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.SugaredLogger to provide logging functionality
type Logger struct {
	*zap.SugaredLogger
}

// Global logger for convenience
var L *Logger

// NewLogger creates a production logger at the configured level
func NewLogger(cfg *config.Configuration) (*Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Logging.Level))

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{
		SugaredLogger: zapLogger.Sugar(),
	}, nil
}

// NewNoopLogger returns a logger that discards everything, used in tests
func NewNoopLogger() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// Initialize default logger and set it as global while also using Dependency Injection.
// The global is meant for scripts and the reconcile CLI, everything else should receive
// the logger through constructors.
func init() {
	L, _ = NewLogger(config.GetDefaultConfig())
	if L == nil {
		L = NewNoopLogger()
	}
}

func parseLevel(level types.LogLevel) zapcore.Level {
	switch level {
	case types.LogLevelDebug:
		return zapcore.DebugLevel
	case types.LogLevelWarn:
		return zapcore.WarnLevel
	case types.LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// WithContext returns a logger annotated with the request scoped ids found in ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := make([]interface{}, 0, 6)
	if requestID := types.GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	if tenantID := types.GetTenantID(ctx); tenantID != "" {
		fields = append(fields, "tenant_id", tenantID)
	}
	if userID := types.GetUserID(ctx); userID != "" {
		fields = append(fields, "user_id", userID)
	}
	if len(fields) == 0 {
		return l
	}
	return &Logger{SugaredLogger: l.SugaredLogger.With(fields...)}
}
