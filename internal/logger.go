package internal

import (
	"context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"io"
	"os"
	"storefront/config"
	"storefront/entity"
	"storefront/services"
	"time"
)

const logWriteTimeout = 5 * time.Second

// Logger writes JSON log lines and keeps warnings and errors in the database log collection.
type Logger struct {
	category string
	database services.Database
	zap      *zap.Logger
}

// LogOutput returns stdout, or stdout plus a rotated log file when one is configured.
// The same writer must be shared by every logger writing to that file.
func LogOutput(conf *config.Config) io.Writer {
	if conf == nil || conf.Log.File == "" {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   conf.Log.File,
		MaxSize:    conf.Log.MaxSize,
		MaxBackups: conf.Log.MaxBackups,
		MaxAge:     conf.Log.MaxAge,
		Compress:   true,
	})
}

func NewLogger(category string, debug bool, database services.Database, out io.Writer) *Logger {
	if out == nil {
		out = os.Stdout
	}
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "category",
		MessageKey:    "msg",
		StacktraceKey: "stacktrace",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.LowercaseLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(out), level)
	return &Logger{
		category: category,
		database: database,
		zap:      zap.New(core).Named(category),
	}
}

func (l *Logger) Debug(text string) {
	l.zap.Debug(text)
}

func (l *Logger) Info(text string) {
	l.zap.Info(text)
}

func (l *Logger) Warn(text string) {
	l.zap.Warn(text)
	l.store("warn", text)
}

func (l *Logger) Error(text string, err error) {
	l.zap.Error(text, zap.Error(err))
	if err != nil {
		text = text + ": " + err.Error()
	}
	l.store("error", text)
}

func (l *Logger) store(level, text string) {
	if l.database == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), logWriteTimeout)
	defer cancel()
	message := &entity.LogMessage{
		Time:     time.Now(),
		Level:    level,
		Category: l.category,
		Text:     text,
	}
	if err := l.database.WriteLogMessage(ctx, message); err != nil {
		l.zap.Warn("write log message", zap.Error(err))
	}
}
