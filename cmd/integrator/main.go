package main

import (
	"context"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/snode/goqtt/internal/config"
	"github.com/snode/goqtt/internal/integrator"
	"github.com/snode/goqtt/internal/logger"
	"github.com/snode/goqtt/internal/mapping"
)

func run(cfg *config.IntegratorConfig) error {
	raw, err := os.ReadFile(cfg.MappingFile)
	if err != nil {
		return err
	}
	scoped := mapping.ScopeToPrefix(raw, cfg.DiscoverPrefix)
	doc, err := mapping.Parse(scoped)
	if err != nil {
		return err
	}

	mqttLog := logger.New(logger.ProductionConfig())
	doc.Log = mqttLog

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := &integrator.Supervisor{
		Doc: doc,
		Log: mqttLog,
		Dial: func(ctx context.Context) (io.ReadWriteCloser, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", cfg.BrokerAddr)
		},
	}

	return sup.Run(ctx)
}

func main() {
	cmd := config.NewIntegratorCommand(run)
	if err := cmd.Execute(); err != nil {
		log.Fatalf("integrator: %v", err)
	}
}
