// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package callui

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/parley-rtc/parley/call"
	"github.com/parley-rtc/parley/media"
)

// Controls is the part of call.Manager the model drives.
type Controls interface {
	ToggleMute() (bool, error)
	ToggleVideo() (bool, error)
	ToggleSpeaker() (bool, error)
	EndCall() error
	Current() (call.Session, bool)
}

var _ Controls = (*call.Manager)(nil)

// noticeFadeDelay is how long notices and control errors stay visible.
const noticeFadeDelay = 4 * time.Second

type noticeFadeMsg struct{ sequence int }

const levelBarWidth = 20

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	timerStyle   = lipgloss.NewStyle().Bold(true)
	meterStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	onStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	offStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warnLogStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	frameStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)

	stateColors = map[call.State]lipgloss.Color{
		call.Idle:                 "8",
		call.RequestingPermission: "11",
		call.Connecting:           "11",
		call.Active:               "10",
		call.Ended:                "8",
		call.Failed:               "9",
	}
)

// Model is the bubbletea model for one call.
type Model struct {
	controls Controls
	keys     KeyMap
	kind     media.Kind

	state   call.State
	reason  call.Reason
	seconds int
	level   int

	muted   bool
	video   bool
	speaker bool

	remoteTracks int

	notice         string
	noticeIsError  bool
	noticeSequence int

	logLine     string
	logLevel    slog.Level
	logSequence int

	summary *call.Summary
	width   int
}

// NewModel creates a model for a call of kind driven through controls.
func NewModel(controls Controls, kind media.Kind) Model {
	keys := DefaultKeyMap
	keys.Video.SetEnabled(kind == media.AudioVideo)
	return Model{
		controls: controls,
		keys:     keys,
		kind:     kind,
		state:    call.Idle,
		speaker:  true,
	}
}

func (model Model) Init() tea.Cmd { return nil }

func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		return model.handleKey(message)

	case tea.WindowSizeMsg:
		model.width = message.Width

	case stateMsg:
		model.state = message.state
		model.reason = message.reason
		if message.state == call.Active {
			model.syncFlags()
		}

	case remoteMsg:
		model.remoteTracks = message.tracks

	case levelMsg:
		model.level = message.level

	case durationMsg:
		model.seconds = message.seconds

	case noticeMsg:
		return model.showNotice(message.text, false)

	case errorMsg:
		text := message.kind.Error()
		if message.detail != "" {
			text += ": " + message.detail
		}
		return model.showNotice(text, true)

	case noticeFadeMsg:
		if message.sequence == model.noticeSequence {
			model.notice = ""
		}

	case summaryMsg:
		summary := message.summary
		model.summary = &summary
		model.seconds = summary.Duration
		model.level = 0
		model.keys.Mute.SetEnabled(false)
		model.keys.Video.SetEnabled(false)
		model.keys.Speaker.SetEnabled(false)
		model.keys.End.SetEnabled(false)

	case logRecordMsg:
		model.logSequence++
		model.logLine = message.summary
		model.logLevel = message.level
		sequence := model.logSequence
		return model, tea.Tick(logFadeDelay, func(time.Time) tea.Msg {
			return logFadeMsg{sequence: sequence}
		})

	case logFadeMsg:
		if message.sequence == model.logSequence {
			model.logLine = ""
		}
	}
	return model, nil
}

func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	var err error
	switch {
	case key.Matches(message, model.keys.Quit):
		if endErr := model.controls.EndCall(); endErr != nil {
			return model.showNotice(endErr.Error(), true)
		}
		return model, tea.Quit

	case key.Matches(message, model.keys.Mute):
		model.muted, err = model.controls.ToggleMute()

	case key.Matches(message, model.keys.Video):
		model.video, err = model.controls.ToggleVideo()

	case key.Matches(message, model.keys.Speaker):
		model.speaker, err = model.controls.ToggleSpeaker()

	case key.Matches(message, model.keys.End):
		err = model.controls.EndCall()
	}
	if err != nil {
		model.syncFlags()
		return model.showNotice(err.Error(), true)
	}
	return model, nil
}

// syncFlags copies the toggles from the manager's snapshot.
func (model *Model) syncFlags() {
	session, ok := model.controls.Current()
	if !ok {
		return
	}
	model.muted = session.Muted
	model.video = session.VideoEnabled
	model.speaker = session.SpeakerOn
}

func (model Model) showNotice(text string, isError bool) (tea.Model, tea.Cmd) {
	model.noticeSequence++
	model.notice = text
	model.noticeIsError = isError
	sequence := model.noticeSequence
	return model, tea.Tick(noticeFadeDelay, func(time.Time) tea.Msg {
		return noticeFadeMsg{sequence: sequence}
	})
}

func (model Model) View() string {
	var lines []string

	title := titleStyle.Render("parley") + dimStyle.Render("  "+model.kind.String()+" call")
	lines = append(lines, title)

	badge := lipgloss.NewStyle().Bold(true).Foreground(stateColors[model.state]).
		Render(strings.ToUpper(strings.ReplaceAll(model.state.String(), "_", " ")))
	if model.reason != call.NoReason {
		badge += dimStyle.Render(" (" + model.reason.String() + ")")
	}
	lines = append(lines, badge+"  "+timerStyle.Render(FormatDuration(model.seconds)))

	lines = append(lines, "mic "+meterStyle.Render(LevelBar(model.level, levelBarWidth))+
		fmt.Sprintf(" %3d", model.level))

	flags := []string{
		toggle("mic", !model.muted),
		toggle("speaker", model.speaker),
	}
	if model.kind == media.AudioVideo {
		flags = append(flags, toggle("camera", model.video))
	}
	if model.remoteTracks > 0 {
		flags = append(flags, dimStyle.Render(fmt.Sprintf("remote: %d tracks", model.remoteTracks)))
	}
	lines = append(lines, strings.Join(flags, "  "))

	if model.summary != nil {
		lines = append(lines, fmt.Sprintf("Call %s after %s. Press q to quit.",
			model.summary.State, FormatDuration(model.summary.Duration)))
	}

	switch {
	case model.notice != "" && model.noticeIsError:
		lines = append(lines, errorStyle.Render(model.fit(model.notice)))
	case model.notice != "":
		lines = append(lines, noticeStyle.Render(model.fit(model.notice)))
	}

	if model.logLine != "" {
		style := dimStyle
		if model.logLevel >= slog.LevelWarn {
			style = warnLogStyle
		}
		lines = append(lines, style.Render(model.fit(model.logLine)))
	}

	lines = append(lines, dimStyle.Render(model.keys.help()))

	frame := frameStyle
	if model.width > 4 {
		frame = frame.Width(model.width - 2)
	}
	return frame.Render(strings.Join(lines, "\n"))
}

// fit truncates free text to the frame's inner width.
func (model Model) fit(text string) string {
	inner := model.width - 6
	if inner <= 0 {
		return text
	}
	return ansi.Truncate(text, inner, "…")
}

func toggle(label string, on bool) string {
	if on {
		return onStyle.Render(label + " on")
	}
	return offStyle.Render(label + " off")
}

// FormatDuration renders whole seconds as mm:ss, or h:mm:ss from one
// hour.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	hours, minutes, secs := seconds/3600, seconds/60%60, seconds%60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

// LevelBar renders a 0..100 level as a bar of width cells.
func LevelBar(level, width int) string {
	level = max(0, min(level, 100))
	filled := (level*width + 50) / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
