package logging

import (
	"context"

	"go.uber.org/zap"
)

// NewLogger builds the structured logger shared by every component.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	return cfg.Build()
}

// WithOperation tags the logger with the operation name and, when known, the scan it belongs to.
func WithOperation(logger *zap.Logger, operation, scanID string) *zap.Logger {
	fields := []zap.Field{zap.String("operation", operation)}
	if scanID != "" {
		fields = append(fields, zap.String("scan_id", scanID))
	}
	return logger.With(fields...)
}

type contextKey string

const scanIDKey contextKey = "scanID"

// ContextWithScanID attaches the scan identifier to ctx for downstream log lines.
func ContextWithScanID(ctx context.Context, scanID string) context.Context {
	return context.WithValue(ctx, scanIDKey, scanID)
}

// ScanIDFrom returns the scan identifier carried by ctx, if any.
func ScanIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(scanIDKey).(string); ok {
		return value
	}
	return ""
}

const operatorKey contextKey = "operator"

// ContextWithOperator attaches the authenticated operator to ctx.
func ContextWithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorKey, operator)
}

// OperatorFrom returns the operator carried by ctx, if any.
func OperatorFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(operatorKey).(string); ok {
		return value
	}
	return ""
}
