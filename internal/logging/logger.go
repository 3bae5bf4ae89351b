package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects level, stdout encoding and an optional rotating file.
type Options struct {
	Level  string
	Format string // "console" or "json"
	File   string
}

// New builds the process logger. Stdout uses the requested format; the file
// sink, when configured, always gets JSON.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return nil, fmt.Errorf("log level %q: %w", opts.Level, err)
		}
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var stdoutEncoder zapcore.Encoder
	switch strings.ToLower(opts.Format) {
	case "", "console":
		stdoutEncoder = zapcore.NewConsoleEncoder(encoderConfig)
	case "json":
		stdoutEncoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("log format %q: want console or json", opts.Format)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(stdoutEncoder, zapcore.AddSync(os.Stdout), level),
	}
	if opts.File != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), fileWriter, level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)), nil
}
