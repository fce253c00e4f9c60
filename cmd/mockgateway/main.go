package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/socketmode/internal/envelope"
	"github.com/rickgao/socketmode/internal/mockgateway"
)

type options struct {
	addr         string
	token        string
	appID        string
	pingInterval time.Duration
	eventsEvery  time.Duration
	refreshAfter time.Duration
	echo         bool
	verbose      bool
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:   "mockgateway",
		Short: "Local socket-mode gateway for development and testing",
		Long: `mockgateway serves apps.connections.open and the WebSocket link it hands
out. Each session gets a hello, optional periodic events_api envelopes and an
optional refresh_requested disconnect.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&opts.token, "token", "", "required app token (empty accepts any)")
	cmd.Flags().StringVar(&opts.appID, "app-id", "A0MOCKAPP", "app id reported in hello")
	cmd.Flags().DurationVar(&opts.pingInterval, "ping-interval", 10*time.Second, "WebSocket ping interval (0 disables)")
	cmd.Flags().DurationVar(&opts.eventsEvery, "events-every", 5*time.Second, "send an events_api envelope this often (0 disables)")
	cmd.Flags().DurationVar(&opts.refreshAfter, "refresh-after", 0, "send refresh_requested after this long (0 disables)")
	cmd.Flags().BoolVar(&opts.echo, "echo", true, "echo plain frames back to the client")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := mockgateway.DefaultConfig()
	cfg.AppToken = opts.token
	cfg.AppID = opts.appID
	cfg.PingInterval = opts.pingInterval
	cfg.Echo = opts.echo
	cfg.OnSession = func(s *mockgateway.Session) {
		script(s, opts, logger)
	}

	gw := mockgateway.New(cfg, logger)
	server := &http.Server{
		Addr:              opts.addr,
		Handler:           gw,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("mock gateway listening",
			"open_url", "http://"+opts.addr+mockgateway.OpenPath,
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		gw.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// script drives one session: periodic events and an optional refresh.
func script(s *mockgateway.Session, opts options, logger *slog.Logger) {
	var events <-chan time.Time
	if opts.eventsEvery > 0 {
		ticker := time.NewTicker(opts.eventsEvery)
		defer ticker.Stop()
		events = ticker.C
	}
	var refresh <-chan time.Time
	if opts.refreshAfter > 0 {
		timer := time.NewTimer(opts.refreshAfter)
		defer timer.Stop()
		refresh = timer.C
	}

	seq := 0
	for {
		select {
		case <-s.Done():
			return
		case <-events:
			seq++
			id, err := s.SendRequest(envelope.TypeEventsAPI, map[string]any{
				"event": map[string]any{"type": "app_mention", "seq": seq, "session": s.ID},
			}, false)
			if err != nil {
				return
			}
			if _, err := s.WaitAck(10 * time.Second); err != nil {
				logger.Warn("event not acknowledged", "envelope_id", id, "error", err)
			}
		case <-refresh:
			logger.Info("requesting refresh", "session", s.ID)
			if err := s.Disconnect(envelope.ReasonRefreshRequested); err != nil {
				return
			}
			// Give the client time to open its replacement before dropping.
			select {
			case <-s.Done():
			case <-time.After(10 * time.Second):
				s.Close()
			}
			return
		}
	}
}
