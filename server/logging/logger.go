// Package logging handles logging throughout greenlight.
package logging

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	internalContext "github.com/greenlightci/greenlight/server/context"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	logurzap "logur.dev/adapter/zap"
	"logur.dev/logur"
)

// Logger is the logging interface used throughout the code. Context-aware
// methods attach the fields set on the context through server/context keys.
type Logger interface {
	logur.Logger
	logur.LoggerContext
	io.Closer
}

type logger struct {
	logur.LoggerFacade
	io.Closer
}

func NewLoggerFromLevel(lvl LogLevel) (*logger, error) { //nolint:revive
	structuredLogger, err := NewStructuredLoggerFromLevel(lvl)
	if err != nil {
		return nil, err
	}

	ctxLogger := logur.WithContextExtractor(
		structuredLogger,
		func(ctx context.Context) map[string]interface{} {
			return internalContext.ExtractFields(ctx)
		},
	)

	return &logger{
		LoggerFacade: ctxLogger,
		Closer:       structuredLogger,
	}, nil
}

type StructuredLogger struct {
	z     *zap.SugaredLogger
	level zap.AtomicLevel
	logur.Logger
}

func NewStructuredLoggerFromLevel(lvl LogLevel) (*StructuredLogger, error) {
	cfg := zap.NewProductionConfig()

	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(lvl.zLevel)
	return newStructuredLogger(cfg)
}

func newStructuredLogger(cfg zap.Config) (*StructuredLogger, error) {
	baseLogger, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "initializing structured logger")
	}

	baseLogger = baseLogger.
		// ensures the caller isn't reported as this file each time
		WithOptions(zap.AddCallerSkip(1)).
		WithOptions(zap.AddStacktrace(zapcore.WarnLevel)).
		// creates isolated context for all future kv pairs
		With(zap.Namespace("json"))

	return &StructuredLogger{
		z:      baseLogger.Sugar(),
		level:  cfg.Level,
		Logger: logurzap.New(baseLogger),
	}, nil
}

func (l *StructuredLogger) SetLevel(lvl LogLevel) {
	if l != nil {
		l.level.SetLevel(lvl.zLevel)
	}
}

func (l *StructuredLogger) Close() error {
	return l.z.Sync()
}

// NewNoopCtxLogger creates a logger backed by the test harness. Used for
// testing.
func NewNoopCtxLogger(t *testing.T) Logger {
	level := zap.DebugLevel
	zapLogger := zaptest.NewLogger(t, zaptest.Level(level))
	sLogger := &StructuredLogger{
		z:      zapLogger.Sugar(),
		level:  zap.NewAtomicLevelAt(level),
		Logger: logurzap.New(zapLogger),
	}

	return &logger{
		LoggerFacade: logur.WithContextExtractor(
			sLogger,
			func(ctx context.Context) map[string]interface{} {
				return internalContext.ExtractFields(ctx)
			},
		),
		Closer: io.NopCloser(nil),
	}
}

type LogLevel struct {
	zLevel zapcore.Level
	name   string
}

func (l LogLevel) String() string {
	return l.name
}

func (l *LogLevel) Decode(ctx *kong.DecodeContext) error {
	var rawLevel string
	err := ctx.Scan.PopValueInto("string", &rawLevel)
	if err != nil {
		return err
	}
	switch strings.ToLower(rawLevel) {
	case "debug":
		ctx.Value.Target.Set(reflect.ValueOf(Debug))
	case "info":
		ctx.Value.Target.Set(reflect.ValueOf(Info))
	case "warn":
		ctx.Value.Target.Set(reflect.ValueOf(Warn))
	case "error":
		ctx.Value.Target.Set(reflect.ValueOf(Error))
	default:
		return fmt.Errorf("log level %q is not supported", rawLevel)
	}
	return nil
}

var (
	Debug = LogLevel{
		zLevel: zapcore.DebugLevel,
		name:   "debug",
	}
	Info = LogLevel{
		zLevel: zapcore.InfoLevel,
		name:   "info",
	}
	Warn = LogLevel{
		zLevel: zapcore.WarnLevel,
		name:   "warn",
	}
	Error = LogLevel{
		zLevel: zapcore.ErrorLevel,
		name:   "error",
	}
)
