// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parley-rtc/parley/call"
	"github.com/parley-rtc/parley/capture"
	"github.com/parley-rtc/parley/lib/config"
	"github.com/parley-rtc/parley/media"
	"github.com/parley-rtc/parley/permission"
	"github.com/parley-rtc/parley/transport"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    command
		wantErr bool
	}{
		{"m", commandMute, false},
		{"  MUTE ", commandMute, false},
		{"v", commandVideo, false},
		{"speaker", commandSpeaker, false},
		{"e", commandEnd, false},
		{"status", commandStatus, false},
		{"?", commandHelp, false},
		{"q", commandQuit, false},
		{"", 0, false},
		{"dial", 0, true},
	}
	for _, test := range tests {
		got, err := parseCommand(test.line)
		if (err != nil) != test.wantErr {
			t.Errorf("parseCommand(%q) error = %v, wantErr %v", test.line, err, test.wantErr)
			continue
		}
		if got != test.want {
			t.Errorf("parseCommand(%q) = %v, want %v", test.line, got, test.want)
		}
	}
}

func TestParseOptions(t *testing.T) {
	opts, _, err := parseOptions(nil)
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if opts.kind != "audio" || opts.tui || opts.verbose {
		t.Errorf("defaults = %+v", opts)
	}

	opts, _, err = parseOptions([]string{"--kind", "video", "--tui", "-v", "--metrics-listen", ":9464", "-c", "x.yaml"})
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if opts.kind != "video" || !opts.tui || !opts.verbose || opts.metricsListen != ":9464" || opts.configPath != "x.yaml" {
		t.Errorf("parsed = %+v", opts)
	}

	if _, _, err := parseOptions([]string{"--bogus"}); err == nil {
		t.Error("unknown flag accepted")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		want    slog.Level
		wantErr bool
	}{
		{"info", false, slog.LevelInfo, false},
		{"warn", false, slog.LevelWarn, false},
		{"error", true, slog.LevelDebug, false},
		{"loud", false, 0, true},
	}
	for _, test := range tests {
		got, err := parseLevel(test.name, test.verbose)
		if (err != nil) != test.wantErr {
			t.Errorf("parseLevel(%q) error = %v", test.name, err)
			continue
		}
		if got != test.want {
			t.Errorf("parseLevel(%q, %v) = %v, want %v", test.name, test.verbose, got, test.want)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(config.EnvVariable, "")
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig defaults: %v", err)
	}
	if cfg.Transport.Mode != config.TransportLoopback {
		t.Errorf("default transport = %q", cfg.Transport.Mode)
	}

	path := filepath.Join(t.TempDir(), "parley.yaml")
	content := "transport:\n  mode: loopback\n  loopback_delay: 10ms\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.EnvVariable, path)
	cfg, err = loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig from env: %v", err)
	}
	if cfg.Transport.LoopbackDelay != 10*time.Millisecond {
		t.Errorf("loopback delay = %v, want 10ms", cfg.Transport.LoopbackDelay)
	}

	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing --config file accepted")
	}
}

func TestSyntheticConfigPacesWebRTC(t *testing.T) {
	cfg := config.Default()
	if got := syntheticConfig(cfg).SampleInterval; got != 0 {
		t.Errorf("loopback SampleInterval = %v, want 0", got)
	}
	cfg.Transport.Mode = config.TransportWebRTC
	if got := syntheticConfig(cfg).SampleInterval; got != sampleInterval {
		t.Errorf("webrtc SampleInterval = %v, want %v", got, sampleInterval)
	}
}

// newConsoleCall starts an active loopback call whose events go to a
// console writing into the returned buffer.
func newConsoleCall(t *testing.T, kind media.Kind) (*call.Manager, *console, *bytes.Buffer) {
	t.Helper()
	devices := media.NewSynthetic(media.SyntheticConfig{Audio: true, Video: true, ToneAmplitude: 0.3})
	var output bytes.Buffer
	lines := newConsole(&output)
	manager, err := call.NewManager(call.Config{
		Probe:     permission.NewProbe(devices, nil),
		Capture:   capture.NewController(devices, nil),
		Transport: transport.NewLoopback(transport.LoopbackConfig{}),
		Sink:      lines,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(manager.Close)
	if _, err := manager.StartCall(context.Background(), kind); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	return manager, lines, &output
}

func TestConsoleCommands(t *testing.T) {
	manager, lines, output := newConsoleCall(t, media.AudioVideo)

	input := strings.NewReader("m\nv\nstatus\nbogus\nq\n")
	runConsole(context.Background(), input, manager, lines, func() { manager.EndCall() })

	text := output.String()
	for _, want := range []string{
		"state: requesting_permission",
		"state: active",
		"remote media ready: 2 tracks",
		"* participant joined",
		"mic off",
		"video off",
		"audio-video active",
		`unknown command "bogus"`,
		"call ended after",
		"(user_hangup)",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestConsoleEOFHangsUp(t *testing.T) {
	manager, lines, output := newConsoleCall(t, media.Audio)

	runConsole(context.Background(), strings.NewReader(""), manager, lines, func() { manager.EndCall() })

	if !strings.Contains(output.String(), "(user_hangup)") {
		t.Errorf("EOF did not hang up:\n%s", output.String())
	}
	if session, _ := manager.Current(); session.State != call.Ended {
		t.Errorf("State = %s, want ended", session.State)
	}
}

func TestConsoleVideoOnAudioCall(t *testing.T) {
	manager, lines, output := newConsoleCall(t, media.Audio)

	runConsole(context.Background(), strings.NewReader("v\ne\n"), manager, lines, func() { manager.EndCall() })

	if !strings.Contains(output.String(), "video: call: invalid state") {
		t.Errorf("video toggle on an audio call not rejected:\n%s", output.String())
	}
}

func TestConsoleAbort(t *testing.T) {
	var output bytes.Buffer
	lines := newConsole(&output)
	lines.abort(call.ErrClosed)
	select {
	case <-lines.Finished():
	default:
		t.Fatal("abort did not finish the console")
	}
	if !strings.Contains(output.String(), "call not started") {
		t.Errorf("output = %q", output.String())
	}
}
