// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package media describes local capture devices and the tracks they
// produce.
//
// A [DeviceProvider] is the platform boundary: RequestCapture opens
// devices and returns a [Stream] of [Track] values; EnumerateDevices
// lists what exists. Nothing else in parley opens a device. Each track
// exposes its pion [webrtc.TrackLocal] so the WebRTC transport can send
// it, and audio tracks implement [LevelMeter] for level metering.
//
// [Synthetic] is the provider shipped with parley: a tone-generating
// microphone and a blank camera with scriptable permission decisions.
// It backs the demo binary and every package test.
package media
