// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/parley-rtc/parley/call"
	"github.com/parley-rtc/parley/lib/callui"
	"github.com/parley-rtc/parley/monitor"
	"github.com/parley-rtc/parley/transport"
)

// command is one line-mode instruction.
type command int

const (
	commandMute command = iota + 1
	commandVideo
	commandSpeaker
	commandEnd
	commandStatus
	commandHelp
	commandQuit
)

var commandNames = map[string]command{
	"m":       commandMute,
	"mute":    commandMute,
	"v":       commandVideo,
	"video":   commandVideo,
	"s":       commandSpeaker,
	"speaker": commandSpeaker,
	"e":       commandEnd,
	"end":     commandEnd,
	"status":  commandStatus,
	"?":       commandHelp,
	"help":    commandHelp,
	"q":       commandQuit,
	"quit":    commandQuit,
}

const consoleHelp = `commands:
  m, mute      toggle microphone
  v, video     toggle camera (video calls)
  s, speaker   toggle speaker
  e, end       hang up
  status       show the call
  q, quit      hang up and exit`

// parseCommand returns the command on line, or 0 for a blank line.
func parseCommand(line string) (command, error) {
	word := strings.ToLower(strings.TrimSpace(line))
	if word == "" {
		return 0, nil
	}
	if cmd, ok := commandNames[word]; ok {
		return cmd, nil
	}
	return 0, fmt.Errorf("unknown command %q (try help)", word)
}

// console prints call events as lines and reports when the call is
// over.
type console struct {
	mu    sync.Mutex
	out   io.Writer
	level int

	finishOnce sync.Once
	finished   chan struct{}
}

var _ call.EventSink = (*console)(nil)

func newConsole(out io.Writer) *console {
	return &console{out: out, finished: make(chan struct{})}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *console) OnStateChange(_ string, state call.State, reason call.Reason) {
	if reason != call.NoReason {
		c.printf("state: %s (%s)", state, reason)
		return
	}
	c.printf("state: %s", state)
}

func (c *console) OnRemoteMediaReady(_ string, remote *transport.RemoteMedia) {
	c.printf("remote media ready: %d tracks", len(remote.Tracks()))
}

func (c *console) OnAudioLevel(_ string, sample monitor.Sample) {
	c.mu.Lock()
	c.level = sample.Level
	c.mu.Unlock()
}

func (c *console) OnDurationTick(string, int) {}

func (c *console) OnError(_ string, kind error, detail string) {
	if detail == "" {
		c.printf("error: %v", kind)
		return
	}
	c.printf("error: %v: %s", kind, detail)
}

func (c *console) OnNotice(_ string, message string) {
	c.printf("* %s", message)
}

func (c *console) OnSummary(summary call.Summary) {
	line := fmt.Sprintf("call %s after %s", summary.State, callui.FormatDuration(summary.Duration))
	if summary.Reason != call.NoReason {
		line += " (" + summary.Reason.String() + ")"
	}
	c.printf("%s", line)
	c.finishOnce.Do(func() { close(c.finished) })
}

// abort reports a call that never started, so no summary will come.
func (c *console) abort(err error) {
	c.printf("call not started: %v", err)
	c.finishOnce.Do(func() { close(c.finished) })
}

// Finished is closed after the session's summary is printed.
func (c *console) Finished() <-chan struct{} { return c.finished }

func (c *console) status(controls callui.Controls) {
	session, ok := controls.Current()
	if !ok {
		c.printf("no call")
		return
	}
	c.mu.Lock()
	level := c.level
	c.mu.Unlock()
	c.printf("%s %s  %s  mic %s  level %d  speaker %s  video %s",
		session.Kind, session.State, callui.FormatDuration(session.Duration),
		onOff(!session.Muted), level, onOff(session.SpeakerOn), onOff(session.VideoEnabled))
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// runConsole reads commands from input until the call finishes. EOF,
// quit and ctx cancellation all hang up and then wait for the
// summary.
func runConsole(ctx context.Context, input io.Reader, controls callui.Controls, out *console, hangup func()) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-out.Finished():
				return
			}
		}
	}()

	for {
		select {
		case <-out.Finished():
			return
		case <-ctx.Done():
			hangup()
			<-out.Finished()
			return
		case line, ok := <-lines:
			if !ok {
				hangup()
				<-out.Finished()
				return
			}
			cmd, err := parseCommand(line)
			if err != nil {
				out.printf("%v", err)
				continue
			}
			if cmd == commandQuit {
				hangup()
				<-out.Finished()
				return
			}
			execute(cmd, controls, out)
		}
	}
}

func execute(cmd command, controls callui.Controls, out *console) {
	switch cmd {
	case commandMute:
		if muted, err := controls.ToggleMute(); err != nil {
			out.printf("mute: %v", err)
		} else {
			out.printf("mic %s", onOff(!muted))
		}
	case commandVideo:
		if enabled, err := controls.ToggleVideo(); err != nil {
			out.printf("video: %v", err)
		} else {
			out.printf("video %s", onOff(enabled))
		}
	case commandSpeaker:
		if on, err := controls.ToggleSpeaker(); err != nil {
			out.printf("speaker: %v", err)
		} else {
			out.printf("speaker %s", onOff(on))
		}
	case commandEnd:
		if err := controls.EndCall(); err != nil {
			out.printf("end: %v", err)
		}
	case commandStatus:
		out.status(controls)
	case commandHelp:
		out.printf("%s", consoleHelp)
	}
}
