package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trackerflow/automation-engine/services/automation/health"
)

// serveShutdownTimeout bounds how long `serve` waits for in-flight HTTP
// requests to drain before forcing the Engine's own Shutdown.
const serveShutdownTimeout = 30 * time.Second

// newServeCmd runs the Engine as a long-lived HTTP daemon: webhook inlets
// and the tracker-native event relay (mounted from Engine.InletServer)
// plus a /health route, listening until SIGINT/SIGTERM. This is the only
// way event- and webhook-triggered rules actually fire; `rule execute`
// only exercises TriggerManual.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine as an HTTP daemon serving webhook inlets and the event relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			mux := http.NewServeMux()
			mux.Handle("/", a.engine.InletServer())
			mux.HandleFunc("/health", a.handleHealth)

			srv := &http.Server{
				Addr:              a.listenAddr,
				Handler:           mux,
				ReadTimeout:       15 * time.Second,
				ReadHeaderTimeout: 10 * time.Second,
				WriteTimeout:      15 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				if a.logger != nil {
					a.logger.Info(cmd.Context(), "serve listening", map[string]any{"addr": a.listenAddr})
				}
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					serveErr <- err
					return
				}
				serveErr <- nil
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-serveErr:
				return err
			case <-sigCh:
			}

			if a.logger != nil {
				a.logger.Info(cmd.Context(), "serve shutting down", nil)
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := a.monitor.Run(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if report.Status != health.StatusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(report)
}
