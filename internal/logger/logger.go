package logger

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/config"
)

var Module = fx.Provide(NewLogger)

// NewLogger builds a colored console logger in development mode and a JSON logger otherwise.
func NewLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.SugaredLogger, error) {
	l, err := build(cfg.LogMode)
	if err != nil {
		return nil, err
	}

	s := l.Sugar()
	lc.Append(fx.StopHook(func() {
		_ = s.Sync()
	}))
	return s, nil
}

func build(mode string) (*zap.Logger, error) {
	var zapConfig zap.Config
	if mode == config.LogModeProduction {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapConfig.Build()
}
