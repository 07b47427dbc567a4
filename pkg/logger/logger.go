package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogFormat represents the logging format.
type LogFormat string

const (
	// FormatConsole indicates human-readable console format.
	FormatConsole LogFormat = "CONSOLE"
	// FormatJSON indicates structured JSON format.
	FormatJSON LogFormat = "JSON"
)

// Component names used with For
const (
	ComponentBoard     = "board"
	ComponentScheduler = "scheduler"
	ComponentMemory    = "memory"
	ComponentREST      = "rest"
	ComponentServer    = "server"
	ComponentFixtures  = "fixtures"
	ComponentUI        = "ui"
)

var (
	mu          sync.Mutex
	initialized bool
)

func getLogLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05 MST"))
}

// New creates a zap logger writing to w with the given level and format.
func New(level string, format LogFormat, w io.Writer) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "component",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToUpper(string(format)) == string(FormatJSON) {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoderConfig.EncodeTime = timeEncoder
		encoderConfig.ConsoleSeparator = " | "
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), zap.NewAtomicLevelAt(getLogLevel(level)))
	return zap.New(core, zap.AddCaller())
}

// Initialize replaces the global loggers. It may be called again, e.g. once
// the configuration file has been read.
func Initialize(level string, format LogFormat, w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	zap.ReplaceGlobals(New(level, format, w))
	initialized = true
}

// For creates a named logger for a specific component. Until Initialize is
// called the environment decides level and format and logs go to stderr.
func For(component string) *zap.SugaredLogger {
	mu.Lock()
	if !initialized {
		zap.ReplaceGlobals(New(os.Getenv("LOGGING_LEVEL"), LogFormat(os.Getenv("LOGGING_FORMAT")), os.Stderr))
		initialized = true
	}
	mu.Unlock()
	return zap.S().Named(component)
}

func Sync() error {
	return zap.L().Sync()
}
