package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rmacdonaldsmith/eventhub-go/internal/config"
	"github.com/rmacdonaldsmith/eventhub-go/internal/grpchealth"
	"github.com/rmacdonaldsmith/eventhub-go/internal/httpapi"
	"github.com/rmacdonaldsmith/eventhub-go/internal/hub"
	"github.com/rmacdonaldsmith/eventhub-go/internal/protocol"
	"github.com/rs/zerolog"
)

// services are the running components, handed to the ready callback
type services struct {
	hub    *hub.Server
	api    *httpapi.Server
	health *grpchealth.Server
}

// run starts the hub and its admin surfaces, then blocks until ctx is done
// and shuts everything down in reverse order.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, ready func(*services)) (err error) {
	handler, err := protocol.NewHandler(cfg.ProtocolConfig(logger))
	if err != nil {
		return fmt.Errorf("failed to create protocol handler: %w", err)
	}
	server, err := hub.NewServer(cfg.HubConfig(logger), handler)
	if err != nil {
		return fmt.Errorf("failed to create hub: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return err
	}
	svc := &services{hub: server}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if svc.health != nil {
			svc.health.Stop()
		}
		if svc.api != nil {
			if stopErr := svc.api.Stop(shutdownCtx); stopErr != nil {
				logger.Warn().Err(stopErr).Msg("Admin API did not stop cleanly")
			}
		}
		if stopErr := server.Stop(shutdownCtx); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
		if closeErr := server.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		logger.Info().Msgf("%s stopped", appName)
	}()

	if addr := cfg.Admin.HTTPAddress; addr != "" {
		api := httpapi.NewServer(server, httpapi.Config{Address: addr, Logger: logger})
		if err := api.Start(); err != nil {
			return fmt.Errorf("failed to start admin API: %w", err)
		}
		svc.api = api
	}
	if addr := cfg.Admin.GRPCAddress; addr != "" {
		health := grpchealth.NewServer(server, grpchealth.Config{Address: addr, Logger: logger})
		if err := health.Start(); err != nil {
			return fmt.Errorf("failed to start gRPC health: %w", err)
		}
		svc.health = health
	}

	if ready != nil {
		ready(svc)
	}
	<-ctx.Done()
	logger.Info().Msg("Shutting down")
	return nil
}
