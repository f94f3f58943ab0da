// Package log provides the application-wide zap logger.
package log

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	mu    sync.RWMutex
	sugar *zap.SugaredLogger
)

// Init builds the package logger. debug selects the human readable development encoder.
func Init(debug bool) error {
	var zapLogger *zap.Logger
	var err error

	if debug {
		zapLogger, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	} else {
		zapLogger, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %w", err)
	}

	mu.Lock()
	sugar = zapLogger.Sugar()
	mu.Unlock()
	return nil
}

// Logger returns the sugared logger, falling back to a production logger if Init was never called
func Logger() *zap.SugaredLogger {
	mu.RLock()
	l := sugar
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if sugar == nil {
		fallback, err := zap.NewProduction(zap.AddCallerSkip(1))
		if err != nil {
			fallback = zap.NewNop()
		}
		sugar = fallback.Sugar()
	}
	return sugar
}

// SetLogger replaces the package logger. Tests use it with zaptest or zap.NewNop.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	sugar = l.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

// Sync flushes buffered entries
func Sync() {
	mu.RLock()
	l := sugar
	mu.RUnlock()
	if l != nil {
		_ = l.Sync()
	}
}

func Debugf(template string, args ...any) { Logger().Debugf(template, args...) }
func Infof(template string, args ...any)  { Logger().Infof(template, args...) }
func Warnf(template string, args ...any)  { Logger().Warnf(template, args...) }
func Errorf(template string, args ...any) { Logger().Errorf(template, args...) }
func Fatalf(template string, args ...any) { Logger().Fatalf(template, args...) }

func Info(args ...any)  { Logger().Info(args...) }
func Error(args ...any) { Logger().Error(args...) }

// Infow logs a message with structured key/value pairs
func Infow(msg string, keysAndValues ...any) { Logger().Infow(msg, keysAndValues...) }

// Warnw logs a warning with structured key/value pairs
func Warnw(msg string, keysAndValues ...any) { Logger().Warnw(msg, keysAndValues...) }
