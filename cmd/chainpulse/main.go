package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainpulse/chainpulse/internal/alerts"
	"github.com/chainpulse/chainpulse/internal/config"
	"github.com/chainpulse/chainpulse/internal/logging"
	"github.com/chainpulse/chainpulse/internal/metrics"
	"github.com/chainpulse/chainpulse/internal/monitoring"
	"github.com/chainpulse/chainpulse/internal/rpc"
	"github.com/chainpulse/chainpulse/internal/system"
	"github.com/chainpulse/chainpulse/internal/websocket"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "chainpulse",
	Short:   "ChainPulse - blockchain RPC endpoint health monitoring",
	Long:    `ChainPulse continuously probes JSON-RPC endpoints, tracks their health, raises threshold alerts and exposes Prometheus metrics and a WebSocket event stream.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ChainPulse %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	// Baseline logging for early startup; re-initialized once settings
	// are known.
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "chainpulse",
	})

	settings := config.Load()

	logging.Init(logging.Config{
		Format:    settings.LogFormat,
		Level:     settings.LogLevel,
		Component: "chainpulse",
	})

	log.Info().
		Str("version", Version).
		Str("tenant", settings.Tenant).
		Msg("Starting ChainPulse monitoring server")

	provider, err := config.NewFileProvider(settings.EndpointsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load endpoint inventory")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := rpc.NewConnectionManager()
	defer manager.Close()

	engine := alerts.NewEngine()
	recorder := metrics.NewRecorder()
	hub := websocket.NewHub(nil)
	go hub.Run(ctx)

	scheduler := monitoring.NewScheduler(manager, provider, engine, recorder, hub, system.NewSampler(), monitoring.Options{
		CheckInterval:   settings.CheckInterval,
		CleanupInterval: settings.CleanupInterval,
		HistoryMaxAge:   settings.HistoryMaxAge,
	})

	hub.SetStateGetter(func() interface{} {
		return map[string]interface{}{
			"tenant":       scheduler.Tenant(),
			"endpoints":    scheduler.Statuses(),
			"activeAlerts": engine.List(alerts.ListOptions{}),
		}
	})

	watcher, err := config.NewWatcher(provider)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create inventory watcher")
	}
	watcher.SetReloadCallback(func() {
		configs, err := provider.Endpoints(ctx, settings.Tenant)
		if err != nil {
			log.Error().Err(err).Msg("Reloaded inventory lost the active tenant")
			return
		}
		scheduler.ApplyEndpointUpdates(configs)
	})
	if err := watcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Inventory watcher failed to start, hot reload disabled")
	}
	defer watcher.Stop()

	if err := scheduler.Start(ctx, settings.Tenant); err != nil {
		log.Fatal().Err(err).Msg("Failed to start monitoring")
	}
	defer scheduler.Stop()

	server := newHTTPServer(settings.ListenAddr, recorder, hub, scheduler)
	go func() {
		log.Info().Str("addr", settings.ListenAddr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
}

func newHTTPServer(addr string, recorder *metrics.Recorder, hub *websocket.Hub, scheduler *monitoring.Scheduler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/ws", hub.HandleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "ok",
			"state":   scheduler.State(),
			"tenant":  scheduler.Tenant(),
			"version": Version,
		})
	})

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
}
