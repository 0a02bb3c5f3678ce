// Package main runs the FrostGuard API server: uplink ingestion, alerting,
// notifications, provisioning and the tenant REST surface in one process.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/getdatasurge/frostguard/internal/app/runtime"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := runtime.NewApplication()
	if err != nil {
		log.Fatalf("initialize: %v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("run: %v", err)
	}

	if err := app.Shutdown(context.Background()); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}
