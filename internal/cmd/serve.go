package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dativo-io/veil/internal/config"
	"github.com/dativo-io/veil/internal/server"
	"github.com/dativo-io/veil/internal/store"
)

var (
	serveAddr    string
	serveReports bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the pseudonymization API over HTTP.

Endpoints: POST /v1/pseudonymize, POST /v1/validate, GET /health, and
(with --reports) GET /v1/reports and /v1/reports/{id}. API keys are read
from VEIL_API_KEYS (comma-separated); with none set the API is open.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8088", "listen address")
	serveCmd.Flags().BoolVar(&serveReports, "reports", false, "enable report persistence and the /v1/reports routes")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	eng, err := newPseudonymizer(cfg)
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithAPIKeys(parseAPIKeys(viper.GetString("api_keys"))),
	}
	if serveReports {
		if err := cfg.EnsureDataDir(); err != nil {
			return fmt.Errorf("creating data dir: %w", err)
		}
		st, err := store.NewStore(cfg.ReportsDBPath())
		if err != nil {
			return fmt.Errorf("opening report store: %w", err)
		}
		defer func() { _ = st.Close() }()
		opts = append(opts, server.WithReportStore(st))
	}

	srv := server.NewServer(eng, nil, opts...)
	httpSrv := &http.Server{
		Addr:              serveAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", serveAddr).Bool("reports", serveReports).Msg("HTTP API listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

// parseAPIKeys parses VEIL_API_KEYS: a comma-separated list of either
// bare keys or key:name pairs. Names only label log lines.
func parseAPIKeys(raw string) map[string]string {
	keys := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if k, name, found := strings.Cut(part, ":"); found {
			keys[k] = name
		} else {
			keys[part] = "default"
		}
	}
	return keys
}
