package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/facekiosk/internal/handlers"
	"github.com/lehigh-university-libraries/facekiosk/internal/ledger"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the kiosk HTTP API",
		Long: `Starts the kiosk session API on the specified port.

A browser front end creates one session per guest and drives it through
capture, search, selection, payment and delivery. Confirmed orders are
appended to the order ledger.`,
		Example: `  # Start server on default port 8888
  facekiosk serve

  # Start server on custom port against a remote search API
  facekiosk serve --port 3000 --api-url https://facesearch.example.org`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			orders, err := ledger.Open(cfg.LedgerPath)
			if err != nil {
				return err
			}

			opts := controllerOptions(cfg)
			opts.Recorder = orders
			handler := handlers.New(newServices(newClient(cfg)), opts)
			handler.Debug = cfg.ListSessions
			defer handler.Close()

			if cfg.SessionTTL > 0 {
				go handler.ExpireSessions(cmd.Context(), cfg.SessionTTL)
			}

			addr := ":" + cfg.Port
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Routes(cfg.AllowedOrigins),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Kiosk API available", "addr", addr, "url", "http://localhost"+addr, "api_url", cfg.APIURL)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringP("port", "p", "8888", "Port to listen on (env: FACEKIOSK_PORT)")
	cmd.Flags().Duration("session-ttl", 30*time.Minute, "Close sessions idle this long, 0 keeps them (env: FACEKIOSK_SESSION_TTL)")
	cmd.Flags().Bool("list-sessions", false, "Expose GET /api/sessions for debugging (env: FACEKIOSK_LIST_SESSIONS)")

	return cmd
}
