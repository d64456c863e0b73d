package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/MrWong99/voxdesk/internal/config"
	"github.com/MrWong99/voxdesk/internal/health"
	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/internal/webhook"
)

// healthService is the service name reported by GET /health.
const healthService = "whatsapp-webhook"

const shutdownTimeout = 15 * time.Second

func newWebhookCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "webhook",
		Short: "Serve the WhatsApp webhook, health checks and metrics",
		Long: `Serve GET/POST /webhook, GET /health, GET /readyz and GET /metrics.

POST bodies must carry a valid X-Hub-Signature-256 header. When --config
points at a file, changes to the verify token, app secret and log level
are applied without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(flags)
			if err != nil {
				return err
			}
			return a.serveWebhook(cmd.Context(), flags.configPath)
		},
	}
}

func (a *app) serveWebhook(ctx context.Context, configPath string) error {
	if err := a.cfg.RequireSecrets("webhook"); err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		Registerer:     promReg,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			a.log.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	store, err := newRegistry(a.log).CreateStore(ctx, a.cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s complaint store: %w", a.cfg.Store.Backend, err)
	}
	defer store.Close()

	hook := webhook.New(
		webhook.Secrets{VerifyToken: a.cfg.Webhook.VerifyToken, AppSecret: a.cfg.Webhook.AppSecret},
		webhook.EchoHandler,
		webhook.WithLogger(a.log),
		webhook.WithMetrics(metrics),
	)

	if configPath != "" {
		w, err := config.NewWatcher(configPath, a.onConfigChange(hook), config.WithWatcherLogger(a.log))
		if err != nil {
			return err
		}
		defer w.Stop()
	}

	mux := http.NewServeMux()
	health.New(healthService, health.Checker{Name: "complaint_store", Check: store.Ping}).Register(mux)
	hook.Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler(promReg))

	srv := &http.Server{
		Addr:              a.cfg.Webhook.ListenAddr,
		Handler:           observe.Middleware(metrics, a.log)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("webhook server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	case <-ctx.Done():
	}

	a.log.Info("shutdown signal received, stopping…")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("webhook server shutdown: %w", err)
	}
	a.log.Info("goodbye")
	return nil
}

// onConfigChange applies the hot-reloadable parts of a new config and warns
// about the rest.
func (a *app) onConfigChange(hook *webhook.Server) func(old, new *config.Config) {
	return func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			a.logLevel.Set(slogLevel(d.NewLogLevel))
			a.log.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.WebhookSecretsChanged {
			hook.SetSecrets(webhook.Secrets{VerifyToken: new.Webhook.VerifyToken, AppSecret: new.Webhook.AppSecret})
		}
		if len(d.RestartRequired) > 0 {
			a.log.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
		}
	}
}
