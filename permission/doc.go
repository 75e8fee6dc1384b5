// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package permission answers whether the microphone and camera may be
// used, without keeping either device open.
//
// A [Probe] asks the [media.DeviceProvider] for a short-lived capture of
// each requested kind separately, stops it immediately, and records the
// outcome in a [State]. Refusals are answers, not errors: a denied
// kind comes back as [Denied] with a nil error. Only infrastructure
// failures (a missing device or an unusable capture API) are returned,
// wrapped as [media.ErrDeviceNotFound].
//
// The cached State is advisory. A Granted kind can still fail at
// capture time if the user revokes access in between.
package permission
