// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/genc-murat/memwarden/internal/config"
	"github.com/genc-murat/memwarden/internal/core/models"
)

func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, models.NewConfigurationError("logging.level", err.Error())
		}
	}

	encoder, err := newEncoder(cfg.Format)
	if err != nil {
		return nil, err
	}

	output, err := newWriter(cfg)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder, output, zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func newEncoder(format string) (zapcore.Encoder, error) {
	switch format {
	case "json":
		ec := zap.NewProductionEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(ec), nil
	case "console", "":
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(ec), nil
	default:
		return nil, models.NewConfigurationError("logging.format", fmt.Sprintf("unknown format %q", format))
	}
}

func newWriter(cfg config.LoggingConfig) (zapcore.WriteSyncer, error) {
	switch cfg.Output {
	case "stdout", "":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	case "file":
		return newFileWriter(cfg.File)
	default:
		return nil, models.NewConfigurationError("logging.output", fmt.Sprintf("unknown output %q", cfg.Output))
	}
}

// newFileWriter writes through a rotating lumberjack logger.
func newFileWriter(fc config.FileConfig) (zapcore.WriteSyncer, error) {
	if fc.Path == "" {
		return nil, models.NewConfigurationError("logging.file.path", "required when output is file")
	}
	maxSize, err := fc.MaxSizeMB()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(fc.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    maxSize, // megabytes
		MaxAge:     fc.MaxAge,
		MaxBackups: fc.MaxBackups,
		Compress:   fc.Compress,
	}), nil
}
