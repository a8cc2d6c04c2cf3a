package debug

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.Mutex
	logger  *zap.SugaredLogger
	enabled bool
)

// Enable starts debug logging to ~/.config/chopshop/debug.log
func Enable() error {
	mu.Lock()
	defer mu.Unlock()

	if enabled {
		return nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	dir := filepath.Join(homeDir, ".config", "chopshop")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{filepath.Join(dir, "debug.log")}
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")

	l, err := cfg.Build(zap.WithCaller(false))
	if err != nil {
		return err
	}

	logger = l.Sugar()
	enabled = true
	logger.Infow("=== Debug logging started ===", "category", "debug")
	return nil
}

// EnableConsole logs to stderr instead of the log file (used by tests and tools)
func EnableConsole() {
	mu.Lock()
	defer mu.Unlock()

	l, err := zap.NewDevelopment(zap.WithCaller(false))
	if err != nil {
		return
	}
	logger = l.Sugar()
	enabled = true
}

// Disable stops debug logging
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	if logger != nil {
		logger.Sync()
		logger = nil
	}
	enabled = false
}

// Log writes a categorized message to the debug log
func Log(category, format string, args ...any) {
	mu.Lock()
	l := logger
	on := enabled
	mu.Unlock()

	if !on || l == nil {
		return
	}
	l.With("category", category).Infof(format, args...)
}

// Warn writes a categorized warning
func Warn(category, format string, args ...any) {
	mu.Lock()
	l := logger
	on := enabled
	mu.Unlock()

	if !on || l == nil {
		return
	}
	l.With("category", category).Warnf(format, args...)
}

// LogEvery logs only every N calls (use for high-frequency events)
var counters = make(map[string]int)

func LogEvery(n int, category, format string, args ...any) {
	mu.Lock()
	key := category + format
	counters[key]++
	count := counters[key]
	mu.Unlock()

	if count%n == 0 {
		Log(category, format, args...)
	}
}
