package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/exolab/vrsupervisor"
	httpAdapter "github.com/exolab/vrsupervisor/internal/adapters/http"
	redisAdapter "github.com/exolab/vrsupervisor/internal/adapters/redis"
	"github.com/exolab/vrsupervisor/internal/config"
	"github.com/exolab/vrsupervisor/internal/logging"
	"github.com/exolab/vrsupervisor/pkg/observability"
	"github.com/exolab/vrsupervisor/pkg/ports"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the supervisor HTTP server",
	Long:  `Starts the supervisor control server: REST API, SSE status stream and the UDP command broadcaster.`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetString("port")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		configDir, _ := cmd.Flags().GetString("config-dir")
		redisAddr, _ := cmd.Flags().GetString("redis")

		logger := logging.New(logLevel(cmd))

		cfgManager, err := config.NewManager(configDir)
		if err != nil {
			fmt.Printf("Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		cfg := cfgManager.Get()

		var store ports.OrderStore
		if redisAddr != "" {
			store = redisAdapter.New(redisAddr, "", 0)
			logger.Info("using redis order store", "addr", redisAddr)
		}

		registry := prometheus.NewRegistry()
		metrics := observability.New(registry)

		conditions, objects := cfgManager.ValueSets()
		sup := vrsupervisor.New(
			vrsupervisor.WithLogger(logger),
			vrsupervisor.WithMetrics(metrics),
			vrsupervisor.WithOrderStore(store),
			vrsupervisor.WithDataDir(dataDir),
			vrsupervisor.WithNetworkTarget(cfg.Network),
			vrsupervisor.WithConditionDuration(cfg.ConditionDuration),
			vrsupervisor.WithValueSets(conditions, objects),
		)

		handler := httpAdapter.NewHandler(sup,
			httpAdapter.WithLogger(logger),
			httpAdapter.WithConfigManager(cfgManager),
			httpAdapter.WithMetrics(registry),
		)

		srv := &http.Server{
			Addr:    ":" + port,
			Handler: handler,
		}

		// The countdown loop runs until shutdown.
		runCtx, stopRun := context.WithCancel(context.Background())
		defer stopRun()
		go sup.Run(runCtx)

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			logger.Info("starting supervisor server", "addr", srv.Addr, "target", cfg.Network.Addr())
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// Blocking main and waiting for shutdown.
		select {
		case err := <-serverErrors:
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)

		case sig := <-shutdown:
			logger.Info("starting shutdown", "signal", sig.String())
			stopRun()

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("graceful shutdown did not complete", "error", err)
				if err := srv.Close(); err != nil {
					logger.Error("error killing server", "error", err)
				}
			}
			logger.Info("supervisor server stopped")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().String("data-dir", "data", "Directory for session archives")
}
