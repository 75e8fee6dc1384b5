// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package callui is the terminal interface for a single call: a
// bubbletea model showing state, elapsed time and the microphone
// level, with single-key controls.
//
// Call events reach the model through a [Sink] attached to the
// call.Manager; log records reach its status line through a
// [LogHandler]. Both hold the tea.Program behind an atomic pointer and
// drop what arrives before SetProgram.
package callui
