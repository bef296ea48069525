package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configure InitLogger. The zero value logs info and above to stderr.
type Options struct {
	Verbose bool
	// File, when set, receives a JSON copy of every entry at debug level.
	File string
}

var (
	mu      sync.RWMutex
	console *zap.SugaredLogger = newConsole(zapcore.InfoLevel)
	file    *zap.SugaredLogger = zap.NewNop().Sugar()
	closer  func() error
)

func newConsole(level zapcore.Level) *zap.SugaredLogger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.CallerKey = ""
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level)
	return zap.New(core).Sugar()
}

// InitLogger replaces the default console logger and optionally tees to a file.
func InitLogger(opts Options) error {
	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	con := newConsole(level)
	fileLog := zap.NewNop().Sugar()
	var closeFn func() error

	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.DebugLevel)
		fileLog = zap.New(fileCore, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
		con = zap.New(zapcore.NewTee(con.Desugar().Core(), fileCore), zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
		closeFn = f.Close
	}

	mu.Lock()
	defer mu.Unlock()
	if closer != nil {
		_ = closer()
	}
	console, file, closer = con, fileLog, closeFn
	return nil
}

// Close flushes buffered entries and releases the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	_ = console.Sync()
	_ = file.Sync()
	if closer != nil {
		_ = closer()
		closer = nil
	}
	console = newConsole(zapcore.InfoLevel)
	file = zap.NewNop().Sugar()
}

func current() (*zap.SugaredLogger, *zap.SugaredLogger) {
	mu.RLock()
	defer mu.RUnlock()
	return console, file
}

// InfoFileOnly records to the log file without echoing to the console.
func InfoFileOnly(format string, v ...interface{}) {
	_, f := current()
	f.Infof(format, v...)
}

func Info(format string, v ...interface{}) {
	c, _ := current()
	c.Infof(format, v...)
}

func Debug(format string, v ...interface{}) {
	c, _ := current()
	c.Debugf(format, v...)
}

func Warn(format string, v ...interface{}) {
	c, _ := current()
	c.Warnf(format, v...)
}

func Error(format string, v ...interface{}) {
	c, _ := current()
	c.Errorf(format, v...)
}
