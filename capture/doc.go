// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture is the single place local capture devices are opened
// and closed.
//
// A [Controller] hands out at most one [Handle] at a time. Every
// acquisition is tagged with the controller's generation; [Controller.Abort]
// advances the generation, so an acquisition that completes after the
// caller gave up is stopped on arrival and reported as [ErrStale]
// instead of leaking an open microphone or camera.
package capture
