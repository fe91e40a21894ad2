// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package quicconn

import "errors"

// Sentinel errors for the taxonomy in the connection engine's error
// handling design. Wrap these with fmt.Errorf("...: %w", ErrX) for
// context; callers should compare with errors.Is.
var (
	ErrResolution      = errors.New("network-unreachable")
	ErrConfig          = errors.New("misconfigured connection")
	ErrHandshake       = errors.New("handshake failed")
	ErrProtocol        = errors.New("protocol error")
	ErrTransport       = errors.New("transport error")
	ErrTimeout         = errors.New("connect timeout")
	ErrMigration       = errors.New("migration failed")
	ErrZeroRTTRejected = errors.New("zero-rtt rejected")
	ErrTicketInvalid   = errors.New("ticket invalid")

	ErrMisconfigured = errors.New("misconfigured quicconn")
	ErrClosed        = errors.New("connection closed")
	ErrNotConnected  = errors.New("not connected")
)
