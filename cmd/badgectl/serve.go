package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eventbadges/badge-engine/internal/config"
	"github.com/eventbadges/badge-engine/internal/server"
	"github.com/eventbadges/badge-engine/pkg/issuer"
	"github.com/eventbadges/badge-engine/pkg/keys"
	"github.com/eventbadges/badge-engine/pkg/verify"
)

const shutdownTimeout = 10 * time.Second

var (
	serveAddr      string
	serveIssuerURL string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the issuer profile, key documents and verification API",
	Long: `Start the badge HTTP API.

Routes:
  GET  /api/badge/issuer          issuer profile with embedded keys
  GET  /api/badge/keys/{keyId}    Multikey verification method document
  POST /api/badge/verify          run the verification pipeline
  GET  /metrics                   prometheus metrics
  GET  /health                    liveness`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		h, err := newServer(cfg, serveIssuerURL)
		if err != nil {
			return err
		}

		addr := serveAddr
		if addr == "" {
			addr = cfg.HTTPAddress
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           h.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			logger.Info("badge API listening", zap.String("addr", addr), zap.String("env", cfg.Env))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server failed: %w", err)
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

// newServer wires the key set, verification pipeline and metrics registry
// into an HTTP handler.
func newServer(cfg config.Config, issuerOverride string) (*server.Handler, error) {
	issuerURL, err := resolveIssuerURL(cfg, issuerOverride)
	if err != nil {
		return nil, err
	}
	pub, err := cfg.KeyProvider().LoadPublicKey()
	if err != nil {
		return nil, err
	}
	ks, err := issuer.NewKeySet(keys.BytesToHex(pub))
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pipeline := verify.New(
		&verify.Config{FetchTimeout: cfg.FetchTimeout},
		verify.WithLogger(logger),
		verify.WithMetrics(verify.NewMetrics(reg)),
	)

	return server.New(server.Options{
		IssuerURL:   issuerURL,
		IssuerName:  cfg.IssuerName,
		IssuerEmail: cfg.IssuerEmail,
		Keys:        ks,
		Pipeline:    pipeline,
		Logger:      logger,
		Registerer:  reg,
		Gatherer:    reg,
	})
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: $BADGE_HTTP_ADDR or :8080)")
	serveCmd.Flags().StringVar(&serveIssuerURL, "issuer-url", "", "Issuer URL (default: first of $BADGE_ISSUER_DOMAINS)")
}
