// Package main provides the aerosync client: it keeps a live traffic picture in sync with a
// push server and raises alerts, either as a TUI or as a ticker on stdout.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/micutio/aerosync/internal"
	"github.com/micutio/aerosync/internal/alert"
	"github.com/micutio/aerosync/internal/config"
	"github.com/micutio/aerosync/internal/link"
	"github.com/micutio/aerosync/internal/metrics"
	"github.com/micutio/aerosync/internal/notify"
	"github.com/micutio/aerosync/internal/session"
	"github.com/micutio/aerosync/tickerapp"
	"github.com/micutio/aerosync/tuiapp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
)

const (
	// thisAppName is the name of this application as shown on notifications.
	thisAppName = "aerosync"
)

type arguments struct {
	isUseTicker bool
	noDesktop   bool
	configPath  string
	url         string
	metricsAddr string
	logLevel    string
	sound       bool
	speech      bool
}

func main() {
	var args arguments
	setupCommandLineFlags(&args)

	// Parse all arguments provided to the program on launch.
	pflag.Parse()

	if err := run(args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", thisAppName, err)
		os.Exit(1)
	}
}

func run(args arguments) error {
	cfg, err := config.Load(args.configPath)
	if err != nil {
		return err
	}
	applyFlags(&cfg, args)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logParams := internal.TickerLogParams()
	if !args.isUseTicker {
		params, closeLog, err := internal.TuiLogParams()
		if err != nil {
			return err
		}
		defer closeLog() //nolint:errcheck // nothing left to report to
		logParams = params
	}
	logger := internal.NewLogger(logParams, cfg.LogLevel)
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	recorder := metrics.New(registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, registry, logger); err != nil {
				logger.Error("metrics endpoint stopped", slog.Any("error", err))
			}
		}()
	}

	transport := link.NewWebsocketTransport(cfg.DialTimeout)

	var notifier alert.Notifier = notify.NewDesktop(thisAppName)
	if args.noDesktop {
		notifier = notify.NewLog(logger)
	}

	if args.isUseTicker {
		return tickerapp.Run(thisAppName, cfg, transport, notifier, logParams, logger,
			session.WithMetrics(recorder))
	}

	return tuiapp.Run(thisAppName, cfg, transport, notifier, logger, session.WithMetrics(recorder))
}

// applyFlags lets explicitly given flags override the file and the environment.
func applyFlags(cfg *config.Config, args arguments) {
	if pflag.CommandLine.Changed("url") {
		cfg.URL = args.url
	}
	if pflag.CommandLine.Changed("metrics-addr") {
		cfg.MetricsAddr = args.metricsAddr
	}
	if pflag.CommandLine.Changed("log-level") {
		cfg.LogLevel = args.logLevel
	}
	if pflag.CommandLine.Changed("sound") {
		cfg.Settings.SoundEnabled = args.sound
	}
	if pflag.CommandLine.Changed("speech") {
		cfg.Settings.SpeechEnabled = args.speech
	}
}

func setupCommandLineFlags(args *arguments) {
	// Whether to launch the Ticker or TUI app.
	pflag.BoolVarP(
		&args.isUseTicker,
		"ticker",
		"t",
		false,
		"print status changes and alerts on the command line without TUI")
	pflag.Lookup("ticker").NoOptDefVal = "true"

	pflag.StringVarP(&args.configPath, "config", "c", "", "path to a YAML configuration file")
	pflag.StringVarP(&args.url, "url", "u", config.DefaultURL, "websocket URL of the push server")
	pflag.StringVar(&args.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address, e.g. :9090")
	pflag.StringVar(&args.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	pflag.BoolVar(&args.sound, "sound", true, "play an audio cue for new alerts")
	pflag.BoolVar(&args.speech, "speech", false, "announce new alerts")
	pflag.BoolVar(&args.noDesktop, "no-desktop", false, "log alert cues and announcements instead of using the desktop")
}
