// Package tickerapp launches the ticker application which writes out all status changes and
// alerts to stdout and can be piped into other programs and processed further.
// This is in contrast to the TUI app, which works more like htop.
package tickerapp

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/micutio/aerosync/internal"
	"github.com/micutio/aerosync/internal/alert"
	"github.com/micutio/aerosync/internal/config"
	"github.com/micutio/aerosync/internal/link"
	"github.com/micutio/aerosync/internal/session"
)

// Run connects and prints updates until SIGINT or SIGTERM is received.
func Run(
	appName string,
	cfg config.Config,
	transport link.Transport,
	notifier alert.Notifier,
	logParams internal.LogParams,
	logger *slog.Logger,
	opts ...session.Option,
) error {
	notify := NewNotify(logParams.ConsoleOut)
	notify.Stdout.Printf("%s connecting to %s\n", appName, cfg.URL)

	status := &statusFilter{next: notify.Status} //nolint:exhaustruct // zero until the first status
	opts = append(opts,
		session.WithLogger(logger),
		session.WithStatusObserver(status.observe),
		session.WithAlertObserver(notify.AlertCreated),
		session.WithResolveObserver(notify.AlertResolved),
	)

	sess, err := session.New(cfg, transport, notifier, opts...)
	if err != nil {
		return fmt.Errorf("tickerapp.Run: %w", err)
	}
	defer func() {
		if err := sess.Shutdown(); err != nil {
			logger.Warn("session shutdown", slog.Any("error", err))
		}
	}()

	if err := sess.Connect(); err != nil {
		return fmt.Errorf("tickerapp.Run: %w", err)
	}

	t := &ticker{
		core:            sess,
		notify:          notify,
		logger:          logger,
		sweepInterval:   staleSweepInterval,
		summaryInterval: cfg.SummaryInterval,
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		t.run(done)
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info("Shutdown signal received, stopping...")
	close(done)
	<-stopped

	return nil
}
