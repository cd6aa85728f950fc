package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/config"
	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/db"
	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/logger"
	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/proto"
	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/service"
	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/transport"
)

func main() {
	fx.New(options()...).Run()
}

func options() []fx.Option {
	return []fx.Option{
		fx.WithLogger(func(l *zap.SugaredLogger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Desugar()}
		}),
		config.Module,
		logger.Module,
		db.Module,
		service.Module,
		transport.Module,
		proto.Module,
		fx.Invoke(func(*transport.HTTPServer, *proto.CatalogServerImpl) {}),
	}
}
