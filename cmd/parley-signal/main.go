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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/parley-rtc/parley/lib/process"
	"github.com/parley-rtc/parley/lib/version"
	"github.com/parley-rtc/parley/transport"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	listen      string
	verbose     bool
	showVersion bool
}

func parseOptions(args []string) (options, *pflag.FlagSet, error) {
	var opts options
	flagSet := pflag.NewFlagSet("parley-signal", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVarP(&opts.listen, "listen", "l", "127.0.0.1:7800", "address to serve /signal, /metrics and /healthz on")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")
	err := flagSet.Parse(args)
	return opts, flagSet, err
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
		version.Print("parley-signal")
		return nil
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	handlerOptions := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, handlerOptions)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, handlerOptions)
	}
	logger := slog.New(handler)

	relay := transport.NewRelay(logger)
	registry := prometheus.NewRegistry()
	registerRelayMetrics(registry, relay)

	listener, err := net.Listen("tcp", opts.listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", opts.listen, err)
	}
	server := &http.Server{
		Handler:           newMux(relay, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(listener) }()
	logger.Info("parley-signal listening",
		"version", version.Info(),
		"address", listener.Addr().String(),
	)

	select {
	case err := <-serveErr:
		relay.Close()
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}
	logger.Info("received shutdown signal")

	// Hijacked WebSocket connections are not tracked by Shutdown; close
	// them through the relay.
	relay.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func newMux(relay *transport.Relay, registry *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/signal", relay)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		io.WriteString(writer, "ok\n")
	})
	return mux
}

// registerRelayMetrics exposes the relay's live client count.
func registerRelayMetrics(registry prometheus.Registerer, relay *transport.Relay) {
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "parley",
		Subsystem: "signal",
		Name:      "connected_clients",
		Help:      "WebSocket clients connected to the relay.",
	}, func() float64 {
		return float64(len(relay.Connected()))
	}))
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `parley-signal relays WebRTC signaling between parley-call peers.

Usage:
  parley-signal [flags]

Endpoints:
  /signal?localpart=NAME   WebSocket signaling
  /metrics                 Prometheus metrics
  /healthz                 liveness

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
