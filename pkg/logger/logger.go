// Package logger wraps zap with the fields the support desk logs by.
package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a wrapper around zap.Logger.
type Logger struct {
	*zap.Logger
}

// New creates a JSON logger writing to stdout. Unknown levels fall back to
// info.
func New(level string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Sampling = nil
	cfg.EncoderConfig = encoderConfig()
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: zl}, nil
}

func encoderConfig() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder
	return enc
}

// NewDevelopment creates a console logger at debug level.
func NewDevelopment() (*Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: zl}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// With creates a child logger with additional fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// WithContext scopes a logger to one ops API request.
func (l *Logger) WithContext(correlationID, subject string) *Logger {
	return l.With(
		zap.String("correlation_id", correlationID),
		zap.String("subject", subject),
	)
}

// WithTicket scopes a logger to a ticket and its requester.
func (l *Logger) WithTicket(ticketID string, chatID int64) *Logger {
	return l.With(
		zap.String("ticket_id", ticketID),
		zap.Int64("chat_id", chatID),
	)
}

// WithUpdate scopes a logger to one inbound chat update.
func (l *Logger) WithUpdate(bot string, chatID int64, updateID int) *Logger {
	return l.With(
		zap.String("bot", bot),
		zap.Int64("chat_id", chatID),
		zap.Int("update_id", updateID),
	)
}

var global atomic.Pointer[Logger]

// Global returns the process logger. It discards output until SetGlobal is
// called.
func Global() *Logger {
	if l := global.Load(); l != nil {
		return l
	}
	return NewNop()
}

// SetGlobal sets the process logger.
func SetGlobal(l *Logger) {
	global.Store(l)
}
