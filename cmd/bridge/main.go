package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthropics/trello-discord-bridge/internal/api"
	"github.com/anthropics/trello-discord-bridge/internal/biz/usecase"
	"github.com/anthropics/trello-discord-bridge/internal/conf"
	"github.com/anthropics/trello-discord-bridge/internal/data"
	"github.com/anthropics/trello-discord-bridge/internal/infra/discord"
	"github.com/anthropics/trello-discord-bridge/internal/infra/trello"
	"github.com/anthropics/trello-discord-bridge/internal/service"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := conf.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Initialize clients
	trelloClient := trello.NewClient(cfg.Trello.APIKey, cfg.Trello.Token)
	discordClient := discord.NewClient(cfg.Discord.BotToken)

	// Initialize repository layer
	repos, err := data.NewRepositories(cfg.Store.DBPath, cfg.ToCacheConfig())
	if err != nil {
		log.Fatalf("Failed to create repositories: %v", err)
	}

	fmt.Printf("[Bridge] Config DB: %s\n", cfg.Store.DBPath)
	if cfg.Fallback != nil {
		fmt.Printf("[Bridge] Environment fallback: board %s\n", cfg.Fallback.BoardID)
	}

	// Initialize usecase layer
	bufferCfg := cfg.ToBufferConfig()
	auditBuffer := usecase.NewAuditBuffer(repos.EventLog, bufferCfg)
	metricsBuffer := usecase.NewMetricsBuffer(repos.EventLog, bufferCfg)

	resolver := usecase.NewConfigResolver(repos.Store, repos.Cache, auditBuffer, cfg.ToResolverConfig())
	registry := usecase.NewWebhookRegistry(repos.Store, trelloClient, auditBuffer)
	router := usecase.NewEventRouter(repos.Store, discordClient, metricsBuffer)

	// Initialize HTTP API server
	apiServer := api.NewServer(resolver, registry, router, repos.Cache, repos.EventLog, auditBuffer,
		cfg.Trello.WebhookSecret, cfg.Server.CallbackURL, cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background webhook reconciliation
	var reconciler *service.WebhookReconciler
	if cfg.Tunables == nil || cfg.Tunables.Reconciler.Enabled {
		reconciler = service.NewWebhookReconciler(registry, cfg.Server.CallbackURL, cfg.ReconcilerInterval())
		reconciler.Start(ctx)
		// One pass up front so configured boards get webhooks without
		// waiting a full interval
		go reconciler.Reconcile(ctx)
	}

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		if reconciler != nil {
			reconciler.Stop()
		}
		apiServer.Stop()
		// Flush buffered audit/metric entries before exit
		auditBuffer.Close()
		metricsBuffer.Close()
		repos.Close()
		close(done)
	}()

	fmt.Println("Starting Trello-Discord Bridge...")
	err = apiServer.Start()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("API server error: %v", err)
	}
	<-done
}
