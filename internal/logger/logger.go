package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mit-bot/internal/config"
)

// New builds the process logger from config. The returned close func flushes
// the logger and closes the log file, if any.
func New(cfg config.Config) (*zap.Logger, func(), error) {
	ws, closeFile, err := buildWriteSyncer(cfg.LogFile)
	if err != nil {
		return nil, nil, err
	}

	core := zapcore.NewCore(buildEncoder(cfg), ws, zap.NewAtomicLevelAt(ParseLevel(cfg.LogLevel)))
	log := zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	).With(zap.String("service", "mit-bot"))

	closer := func() {
		_ = log.Sync()
		closeFile()
	}
	return log, closer, nil
}

func buildEncoder(cfg config.Config) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	if useConsole(cfg) {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encoderConfig)
	}

	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

// useConsole picks the encoder. An explicit LOG_FORMAT wins; otherwise
// production logs JSON and everything else logs console.
func useConsole(cfg config.Config) bool {
	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		return false
	case "console", "text":
		return true
	default:
		return !cfg.IsProduction()
	}
}

func buildWriteSyncer(path string) (zapcore.WriteSyncer, func(), error) {
	if path == "" || strings.EqualFold(path, "stdout") {
		return zapcore.AddSync(os.Stdout), func() {}, nil
	}
	if strings.EqualFold(path, "stderr") {
		return zapcore.AddSync(os.Stderr), func() {}, nil
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return zapcore.AddSync(file), func() { _ = file.Close() }, nil
}

func ParseLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "INFO":
		return zapcore.InfoLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
