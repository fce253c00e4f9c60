package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/socketmode/internal/api"
	"github.com/rickgao/socketmode/internal/config"
	"github.com/rickgao/socketmode/internal/connection"
	"github.com/rickgao/socketmode/internal/envelope"
	"github.com/rickgao/socketmode/internal/metrics"
	"github.com/rickgao/socketmode/internal/router"
	"github.com/rickgao/socketmode/internal/version"
)

type listenOptions struct {
	configPath string
	raw        bool
	replyText  string
}

func listenCmd() *cobra.Command {
	var opts listenOptions

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Connect and print every inbound envelope",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "configs/socketmode.local.yaml", "path to config file (.yaml or .toml)")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "print raw frames instead of a summary")
	cmd.Flags().StringVar(&opts.replyText, "reply", "", "respond to requests that accept a payload with this text")

	return cmd
}

func runListen(ctx context.Context, out io.Writer, opts listenOptions) error {
	cfg, err := config.LoadAndValidate(opts.configPath)
	if err != nil {
		return err
	}

	logger := newLogger(os.Stderr, cfg.Log).With("instance", cfg.Instance.ID)
	slog.SetDefault(logger)

	logger.Info("starting socketmode",
		"version", version.Version,
		"commit", version.Commit,
		"config", opts.configPath,
	)

	creds, err := cfg.Credentials()
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	logger.Info("credentials loaded", "app_token", creds.Redacted(), "api_url", cfg.API.URL)

	apiClient := api.NewClient(cfg.API.URL, creds,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, cfg.API.RetryBackoff),
	)

	clientOpts := []connection.Option{
		connection.WithErrorHandler(func(err error) {
			logger.Warn("client error", "error", err)
		}),
		connection.WithGiveUp(func(err error) {
			logger.Error("gave up reconnecting", "error", err)
		}),
	}

	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		mcfg := metrics.DefaultConfig()
		mcfg.Registry = registry
		mcfg.ConstLabels = prometheus.Labels{"instance": cfg.Instance.ID}
		clientOpts = append(clientOpts, connection.WithMetrics(metrics.New(mcfg)))
	}

	client := connection.NewClient(cfg.ClientConfig(), apiClient, logger, clientOpts...)

	p := newPrinter(out, opts.raw)
	client.OnMessage(func(ctx context.Context, r router.Responder, msg *router.Message) error {
		p.print(msg)
		return nil
	})
	if opts.replyText != "" {
		client.OnRequest(func(ctx context.Context, r router.Responder, req *envelope.Request) error {
			if !req.AcceptsResponsePayload {
				return nil
			}
			return r.Respond(ctx, req.EnvelopeID, map[string]string{"text": opts.replyText})
		})
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := client.Connect(gctx); err != nil {
			client.Close()
			return fmt.Errorf("connect: %w", err)
		}

		select {
		case <-gctx.Done():
			logger.Info("shutting down...")
			return client.Close()
		case <-client.Done():
			return errors.New("client closed")
		}
	})

	if registry != nil {
		server := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: metricsMux(cfg.Metrics.Path, registry, client),
		}

		g.Go(func() error {
			logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if ctx.Err() != nil {
		// Interrupted: a clean shutdown is not an error.
		err = nil
	}
	logger.Info("socketmode stopped", "reconnects", client.Stats().Reconnects)
	return err
}

// metricsMux serves metrics and a health endpoint reporting the client state.
func metricsMux(path string, registry *prometheus.Registry, client connection.Client) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, metrics.HandlerFor(registry))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		stats := client.Stats()
		health := struct {
			Status     string `json:"status"`
			State      string `json:"state"`
			Generation uint64 `json:"generation"`
			Reconnects int64  `json:"reconnects"`
		}{
			Status:     "healthy",
			State:      stats.State.String(),
			Generation: stats.Generation,
			Reconnects: stats.Reconnects,
		}

		w.Header().Set("Content-Type", "application/json")
		if stats.State != connection.StateConnected {
			health.Status = "unhealthy"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})
	return mux
}
