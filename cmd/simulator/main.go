// Package main provides a push server that streams simulated traffic in the aerosync frame
// format. It is meant for trying the client without a live data source.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/micutio/aerosync/internal"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 5 * time.Second

func main() {
	var (
		addr     string
		logLevel string
		opts     options
	)

	pflag.StringVar(&addr, "addr", ":8765", "listen address, clients connect to ws://<addr>/ws")
	pflag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	pflag.Float64Var(&opts.latitude, "lat", 47.4502, "latitude of the traffic center")
	pflag.Float64Var(&opts.longitude, "lon", 8.5618, "longitude of the traffic center")
	pflag.DurationVar(&opts.interval, "interval", time.Second, "time between aircraft updates")
	pflag.IntVar(&opts.removeEvery, "remove-every", 30, "remove and re-add one aircraft every n updates, 0 disables")
	pflag.Float64Var(&opts.proximityNM, "proximity", 5, "distance in NM below which proximity events are sent")
	pflag.BoolVar(&opts.dropHeartbeats, "drop-heartbeats", false, "do not answer heartbeats")
	pflag.Uint64Var(&opts.seed, "seed", uint64(time.Now().UnixNano()), "random seed for speed changes") //nolint:gosec // positive
	pflag.Parse()

	logger := internal.NewLogger(internal.TickerLogParams(), logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, addr, opts, logger); err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(1) //nolint:gocritic // stop is only a signal reset
	}
}

func serve(ctx context.Context, addr string, opts options, logger *slog.Logger) error {
	if opts.interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", opts.interval)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", newServer(opts, logger))

	srv := &http.Server{ //nolint:exhaustruct // defaults are fine
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("simulator listening", slog.String("addr", addr), slog.Bool("drop_heartbeats", opts.dropHeartbeats))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: shutdown: %w", err)
	}

	return nil
}
