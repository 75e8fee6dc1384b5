// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/parley-rtc/parley/call"
	"github.com/parley-rtc/parley/capture"
	"github.com/parley-rtc/parley/lib/callui"
	"github.com/parley-rtc/parley/lib/config"
	"github.com/parley-rtc/parley/lib/process"
	"github.com/parley-rtc/parley/lib/version"
	"github.com/parley-rtc/parley/media"
	"github.com/parley-rtc/parley/metrics"
	"github.com/parley-rtc/parley/permission"
	"github.com/parley-rtc/parley/transport"
)

// sampleInterval paces synthetic media when a real peer is listening.
const sampleInterval = 20 * time.Millisecond

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	configPath    string
	kind          string
	tui           bool
	verbose       bool
	showVersion   bool
	metricsListen string
}

func parseOptions(args []string) (options, *pflag.FlagSet, error) {
	var opts options
	flagSet := pflag.NewFlagSet("parley-call", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "config file (default: $"+config.EnvVariable+", else built-in defaults)")
	flagSet.StringVarP(&opts.kind, "kind", "k", "audio", "call kind: audio or video")
	flagSet.BoolVar(&opts.tui, "tui", false, "run the full-screen interface")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	flagSet.StringVar(&opts.metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address (overrides metrics.listen)")
	flagSet.BoolP("help", "h", false, "show help")
	err := flagSet.Parse(args)
	return opts, flagSet, err
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `parley-call runs one call with synthetic capture devices.

Usage:
  parley-call [flags]

Examples:
  # Audio call against the loopback peer
  parley-call

  # Video call in the full-screen interface
  parley-call --kind video --tui

  # WebRTC call through a relay, configured in parley.yaml
  parley-call --config parley.yaml --metrics-listen 127.0.0.1:9464

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}

func run(args []string) error {
	opts, flagSet, err := parseOptions(args)
	if errors.Is(err, pflag.ErrHelp) {
		printHelp(flagSet)
		return nil
	}
	if err != nil {
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if opts.showVersion {
		version.Print("parley-call")
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	kind, err := media.ParseKind(opts.kind)
	if err != nil {
		return err
	}
	level, err := parseLevel(cfg.Log.Level, opts.verbose)
	if err != nil {
		return err
	}
	if opts.tui && !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("--tui needs a terminal on stdin")
	}
	if termenv.EnvNoColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	var logHandler *callui.LogHandler
	var logger *slog.Logger
	if opts.tui {
		// The alt screen owns the terminal; records go to the status
		// line instead.
		logHandler = callui.NewLogHandler(max(level, slog.LevelWarn))
		logger = slog.New(logHandler)
	} else {
		logger = newLogger(os.Stderr, level)
	}
	logger.Info("starting parley-call",
		"version", version.Info(),
		"kind", kind,
		"transport", cfg.Transport.Mode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	metricsListen := cfg.Metrics.Listen
	if opts.metricsListen != "" {
		metricsListen = opts.metricsListen
	}
	if metricsListen != "" {
		shutdown, err := serveMetrics(metricsListen, registry, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	devices := media.NewSynthetic(syntheticConfig(cfg))
	peer, closeTransport, err := newTransport(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeTransport()

	var ui call.EventSink
	var tuiSink *callui.Sink
	var lines *console
	if opts.tui {
		tuiSink = callui.NewSink()
		ui = tuiSink
	} else {
		lines = newConsole(os.Stdout)
		ui = lines
	}

	manager, err := call.NewManager(call.Config{
		Probe:              permission.NewProbe(devices, logger),
		Capture:            capture.NewController(devices, logger),
		Transport:          peer,
		Sink:               call.MultiSink{collector, ui},
		NegotiationTimeout: cfg.Call.NegotiationTimeout,
		TickInterval:       cfg.Call.TickInterval,
		LevelInterval:      cfg.Call.LevelInterval,
		Logger:             logger,
	})
	if err != nil {
		return err
	}
	defer manager.Close()

	callCtx, cancelCall := context.WithCancel(ctx)
	defer cancelCall()
	hangup := func() {
		cancelCall()
		if err := manager.EndCall(); err != nil {
			logger.Warn("ending call", "error", err)
		}
	}
	start := func(onUnstarted func(error)) {
		session, err := manager.StartCall(callCtx, kind)
		switch {
		case err == nil:
			logger.Info("call active", "session", session.ID)
		case session.ID == "":
			onUnstarted(err)
		default:
			logger.Warn("call did not connect", "session", session.ID, "error", err)
		}
	}

	if !opts.tui {
		go start(lines.abort)
		runConsole(ctx, os.Stdin, manager, lines, hangup)
		return nil
	}

	program := tea.NewProgram(callui.NewModel(manager, kind), tea.WithAltScreen(), tea.WithContext(ctx))
	tuiSink.SetProgram(program)
	logHandler.SetProgram(program)
	go start(func(err error) {
		logger.Error("call not started", "error", err)
	})

	_, err = program.Run()
	hangup()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// loadConfig resolves --config, then PARLEY_CONFIG, then the defaults.
func loadConfig(path string) (*config.Config, error) {
	switch {
	case path != "":
		return config.LoadFile(path)
	case os.Getenv(config.EnvVariable) != "":
		return config.Load()
	default:
		return config.Default(), nil
	}
}

func syntheticConfig(cfg *config.Config) media.SyntheticConfig {
	devices := media.SyntheticConfig{
		Audio:         cfg.Devices.Audio,
		Video:         cfg.Devices.Video,
		DenyAudio:     cfg.Devices.DenyAudio,
		DenyVideo:     cfg.Devices.DenyVideo,
		ToneAmplitude: cfg.Devices.ToneAmplitude,
	}
	if cfg.Transport.Mode == config.TransportWebRTC {
		devices.SampleInterval = sampleInterval
	}
	return devices
}

// newTransport builds the configured peer transport and returns a
// cleanup for whatever it holds open.
func newTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) (transport.PeerSession, func(), error) {
	if cfg.Transport.Mode != config.TransportWebRTC {
		loopback := transport.NewLoopback(transport.LoopbackConfig{
			Delay:  cfg.Transport.LoopbackDelay,
			Logger: logger,
		})
		return loopback, func() {}, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	signaler, err := transport.DialWebSocketSignaler(dialCtx, cfg.Transport.SignalURL, cfg.Transport.Localpart, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to signaling relay: %w", err)
	}
	peer, err := transport.NewWebRTC(transport.WebRTCConfig{
		Signaler:  signaler,
		Localpart: cfg.Transport.Localpart,
		Peer:      cfg.Transport.Peer,
		Role:      transport.Role(cfg.Transport.Role),
		ICE:       transport.ICEConfigFromServers(cfg.Transport.ICEServers),
		Logger:    logger,
	})
	if err != nil {
		signaler.Close()
		return nil, nil, err
	}
	return peer, func() { signaler.Close() }, nil
}

// serveMetrics starts the /metrics endpoint and returns its shutdown.
func serveMetrics(address string, registry *prometheus.Registry, logger *slog.Logger) (func(), error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "address", listener.Addr().String())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}, nil
}
