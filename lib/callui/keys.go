// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package callui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// KeyMap holds the call controls.
type KeyMap struct {
	Mute    key.Binding
	Video   key.Binding
	Speaker key.Binding
	End     key.Binding
	Quit    key.Binding
}

// DefaultKeyMap is the built-in binding set.
var DefaultKeyMap = KeyMap{
	Mute: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "mute"),
	),
	Video: key.NewBinding(
		key.WithKeys("v"),
		key.WithHelp("v", "video"),
	),
	Speaker: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "speaker"),
	),
	End: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "end call"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// help renders the enabled bindings as "m mute • v video ...".
func (k KeyMap) help() string {
	var parts []string
	for _, binding := range []key.Binding{k.Mute, k.Video, k.Speaker, k.End, k.Quit} {
		if !binding.Enabled() {
			continue
		}
		parts = append(parts, binding.Help().Key+" "+binding.Help().Desc)
	}
	return strings.Join(parts, " • ")
}
