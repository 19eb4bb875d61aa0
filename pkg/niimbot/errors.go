// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The open-niim authors

package niimbot

import "errors"

// Sentinel errors. Transport failures are wrapped with %w by the session so
// callers can unwrap the underlying cause.
var (
	// ErrFramingViolation reports a command body that cannot be framed
	// (longer than MaxBodySize). Rejected before encoding.
	ErrFramingViolation = errors.New("framing violation")

	// ErrEmptyPayload reports a checksum request over zero bytes. A framed
	// payload always contains at least the opcode and length bytes, so an
	// empty input is a caller bug, never a spurious 0x00 checksum.
	ErrEmptyPayload = errors.New("checksum over empty payload")

	// ErrChecksumMismatch reports an inbound frame whose checksum byte does
	// not match the XOR fold of its payload.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrEndpointNotFound reports that the peer lacks the required service
	// or characteristic endpoint. Fatal for the session attempt; the
	// connect retry loop does not retry it.
	ErrEndpointNotFound = errors.New("printer endpoint not found")

	// ErrNotConnected reports an operation that needs a live transport.
	ErrNotConnected = errors.New("not connected")

	// ErrBadState reports a lifecycle call made from the wrong session state.
	ErrBadState = errors.New("invalid session state")

	// ErrJobPending reports a Submit while another job is already waiting
	// to be picked up by the control loop.
	ErrJobPending = errors.New("a print job is already pending")

	// ErrCommandPending reports a SendCommand while another one-shot command
	// is already waiting to be picked up by the control loop.
	ErrCommandPending = errors.New("a command is already pending")
)
