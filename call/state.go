// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"errors"
	"fmt"

	"github.com/parley-rtc/parley/media"
	"github.com/parley-rtc/parley/transport"
)

// State is the lifecycle position of a session.
type State int

const (
	Idle State = iota
	RequestingPermission
	Connecting
	Active
	Ended
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case RequestingPermission:
		return "requesting_permission"
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Ended:
		return "ended"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether s is Ended or Failed.
func (s State) Terminal() bool { return s == Ended || s == Failed }

// Reason says why a session reached its terminal state.
type Reason int

const (
	NoReason Reason = iota
	UserHangup
	RemoteDisconnected
	Cancelled
	PermissionDenied
	DeviceNotFound
	TransportNegotiationFailed
)

func (r Reason) String() string {
	switch r {
	case NoReason:
		return ""
	case UserHangup:
		return "user_hangup"
	case RemoteDisconnected:
		return "remote_disconnected"
	case Cancelled:
		return "cancelled"
	case PermissionDenied:
		return "permission_denied"
	case DeviceNotFound:
		return "device_not_found"
	case TransportNegotiationFailed:
		return "transport_negotiation_failed"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

var (
	// ErrAlreadyInCall is returned by StartCall while a session is not
	// terminal.
	ErrAlreadyInCall = errors.New("call: already in a call")

	// ErrInvalidState is returned by operations invoked in a state that
	// does not allow them.
	ErrInvalidState = errors.New("call: invalid state for operation")

	// ErrTransportNegotiationFailed means the peer transport did not
	// produce remote media before the timeout or reported an error.
	ErrTransportNegotiationFailed = errors.New("call: transport negotiation failed")

	// ErrCallEnded is returned by StartCall when the session was hung
	// up before it became Active.
	ErrCallEnded = errors.New("call: ended before connecting")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("call: manager closed")

	// The remaining kinds come from the layers that detect them.
	ErrPermissionDenied   = media.ErrPermissionDenied
	ErrDeviceNotFound     = media.ErrDeviceNotFound
	ErrRemoteDisconnected = transport.ErrRemoteDisconnected
)

// errorKind maps a terminal reason to its error kind, or nil for
// reasons that are not errors.
func (r Reason) errorKind() error {
	switch r {
	case PermissionDenied:
		return ErrPermissionDenied
	case DeviceNotFound:
		return ErrDeviceNotFound
	case TransportNegotiationFailed:
		return ErrTransportNegotiationFailed
	case RemoteDisconnected:
		return ErrRemoteDisconnected
	}
	return nil
}
