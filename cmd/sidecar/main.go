// Command sidecar runs the ACME-driven xDS control plane: it loads a
// YAML configuration file naming the certificates to manage and the
// workload's Envoy resources, issues and renews certificates against
// an ACME CA over HTTP-01, and serves the merged configuration to a
// co-located Envoy over a Unix domain socket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/csssuf/envoy-acme-xds/internal/config"
	"github.com/csssuf/envoy-acme-xds/internal/lifecycle"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <config.yaml>\n", os.Args[0])
		os.Exit(1)
	}

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		log.Error("failed to load configuration", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := lifecycle.Run(ctx, os.Args[1], cfg, log); err != nil {
		log.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}
