package logger

import (
	"context"
	"os"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agrilink/agrilink/internal/config"
)

// Module exposes the configured Zap logger to the Fx container.
var Module = fx.Provide(New)

// New builds the process-wide logger. JSON encoding for deployments,
// colourised console encoding for local work; Fx owns the final Sync.
func New(lc fx.Lifecycle, cfg config.Config) (*zap.Logger, error) {
	obs := cfg.Observability

	core := zapcore.NewCore(
		newEncoder(obs.LogEncoding),
		zapcore.Lock(os.Stdout),
		parseLevel(obs.LogLevel),
	)

	logger := zap.New(core, zap.AddCaller()).With(
		zap.String("service", obs.ServiceName),
		zap.String("environment", obs.Environment),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			// Sync on stdout fails on some platforms; the process is
			// exiting anyway.
			_ = logger.Sync()
			return nil
		},
	})

	return logger, nil
}

func parseLevel(raw string) zapcore.Level {
	var level zapcore.Level
	if err := level.Set(strings.ToLower(raw)); err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func newEncoder(encoding string) zapcore.Encoder {
	if encoding == "console" {
		enc := zap.NewDevelopmentEncoderConfig()
		enc.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(enc)
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339Nano)
	enc.EncodeDuration = zapcore.StringDurationEncoder
	enc.EncodeLevel = zapcore.LowercaseLevelEncoder
	return zapcore.NewJSONEncoder(enc)
}
