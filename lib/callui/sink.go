// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package callui

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/parley-rtc/parley/call"
	"github.com/parley-rtc/parley/monitor"
	"github.com/parley-rtc/parley/transport"
)

type stateMsg struct {
	state  call.State
	reason call.Reason
}

type remoteMsg struct {
	tracks int
	video  bool
}

type levelMsg struct{ level int }

type durationMsg struct{ seconds int }

type noticeMsg struct{ text string }

type errorMsg struct {
	kind   error
	detail string
}

type summaryMsg struct{ summary call.Summary }

// Sink forwards call events into a bubbletea program.
type Sink struct {
	program *atomic.Pointer[tea.Program]
}

var _ call.EventSink = (*Sink)(nil)

// NewSink creates a sink. Call SetProgram once the program exists.
func NewSink() *Sink {
	return &Sink{program: &atomic.Pointer[tea.Program]{}}
}

// SetProgram sets the program that receives events. Safe to call from
// any goroutine.
func (s *Sink) SetProgram(program *tea.Program) {
	s.program.Store(program)
}

func (s *Sink) send(message tea.Msg) {
	if program := s.program.Load(); program != nil {
		program.Send(message)
	}
}

func (s *Sink) OnStateChange(_ string, state call.State, reason call.Reason) {
	s.send(stateMsg{state: state, reason: reason})
}

func (s *Sink) OnRemoteMediaReady(_ string, remote *transport.RemoteMedia) {
	s.send(remoteMsg{tracks: len(remote.Tracks()), video: remote.HasVideo()})
}

func (s *Sink) OnAudioLevel(_ string, sample monitor.Sample) {
	s.send(levelMsg{level: sample.Level})
}

func (s *Sink) OnDurationTick(_ string, seconds int) {
	s.send(durationMsg{seconds: seconds})
}

func (s *Sink) OnError(_ string, kind error, detail string) {
	s.send(errorMsg{kind: kind, detail: detail})
}

func (s *Sink) OnNotice(_ string, message string) {
	s.send(noticeMsg{text: message})
}

func (s *Sink) OnSummary(summary call.Summary) {
	s.send(summaryMsg{summary: summary})
}
