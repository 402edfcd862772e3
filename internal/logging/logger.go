package logging

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.SugaredLogger
	loggerMu     sync.RWMutex
)

// Init initializes the global logger with JSON output
func Init(appEnv string) error {
	var config zap.Config

	if appEnv == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	// Ensure output is JSON
	config.Encoding = "json"

	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	SetLogger(logger.Sugar())
	return nil
}

// SetLogger replaces the global logger. Tests use it to install zap.NewNop().
func SetLogger(l *zap.SugaredLogger) {
	loggerMu.Lock()
	globalLogger = l
	loggerMu.Unlock()
}

// GetLogger returns the global SugaredLogger for structured logging
func GetLogger() *zap.SugaredLogger {
	loggerMu.RLock()
	l := globalLogger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}

	// Fallback logger if Init wasn't called
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	SetLogger(logger.Sugar())
	return GetLogger()
}

// Close flushes any buffered logs
func Close() error {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}

// Info logs an info message with optional fields
func Info(message string, fields ...interface{}) {
	GetLogger().Infow(message, fields...)
}

// Debug logs a debug message with optional fields
func Debug(message string, fields ...interface{}) {
	GetLogger().Debugw(message, fields...)
}

// Warn logs a warning message with optional fields
func Warn(message string, fields ...interface{}) {
	GetLogger().Warnw(message, fields...)
}

// Error logs an error message with optional fields
func Error(message string, fields ...interface{}) {
	GetLogger().Errorw(message, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(message string, fields ...interface{}) {
	GetLogger().Fatalw(message, fields...)
	os.Exit(1)
}

// WithRequest creates a logger with request context fields
func WithRequest(requestID string, endpoint string) *zap.SugaredLogger {
	return GetLogger().With(
		"request_id", requestID,
		"endpoint", endpoint,
	)
}

// WithSession creates a logger scoped to one real-time session
func WithSession(sessionID string) *zap.SugaredLogger {
	return GetLogger().With("session_id", sessionID)
}
