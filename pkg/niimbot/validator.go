// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The open-niim authors

package niimbot

import "fmt"

// AnomalyType represents different classes of inbound packet anomalies
type AnomalyType int

const (
	AnomalyUnknownOpcode AnomalyType = iota
	AnomalyLengthMismatch
	AnomalyDeviceError
	AnomalyNotSupported
)

// ValidationError represents an inbound packet validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidatePacket checks an inbound packet against the known reply shapes.
// Returns a slice of validation errors (empty if the packet is clean).
// Checksum failures never reach here; the decoder rejects those frames.
func ValidatePacket(p *Packet) []ValidationError {
	errors := []ValidationError{}

	switch p.Opcode() {
	case ReplyStatus:
		if p.Len() < 4 {
			errors = append(errors, ValidationError{
				Type:    AnomalyLengthMismatch,
				Message: fmt.Sprintf("status reply too short (%d bytes, expected 4)", p.Len()),
				Details: map[string]interface{}{"length": p.Len(), "expected": 4},
			})
		}

	case ReplyHeartbeat:
		switch p.Len() {
		case 9, 10, 13, 19, 20:
		default:
			errors = append(errors, ValidationError{
				Type:    AnomalyLengthMismatch,
				Message: fmt.Sprintf("unknown heartbeat variant (%d bytes)", p.Len()),
				Details: map[string]interface{}{"length": p.Len()},
			})
		}

	case ReplyRFID:
		if _, err := DecodeRFIDReply(p); err != nil {
			errors = append(errors, ValidationError{
				Type:    AnomalyLengthMismatch,
				Message: err.Error(),
				Details: map[string]interface{}{"length": p.Len()},
			})
		}

	case ReplyError:
		errors = append(errors, ValidationError{
			Type:    AnomalyDeviceError,
			Message: "device rejected the last command",
			Details: map[string]interface{}{"body": FormatBytes(p.Body())},
		})

	case ReplyNotSupported:
		errors = append(errors, ValidationError{
			Type:    AnomalyNotSupported,
			Message: "device does not implement the last command",
			Details: map[string]interface{}{"body": FormatBytes(p.Body())},
		})

	case ReplySetDensity, ReplySetLabelType:
		if p.Len() < 1 {
			errors = append(errors, ValidationError{
				Type:    AnomalyLengthMismatch,
				Message: fmt.Sprintf("%s reply has no ack byte", FormatOpcode(p.Opcode())),
				Details: map[string]interface{}{"length": p.Len()},
			})
		}

	// Exchange and page commands are acknowledged by echoing the opcode.
	case CmdStartExchange, CmdEndExchange, CmdEndPrint, CmdCalibrateGap:

	default:
		errors = append(errors, ValidationError{
			Type:    AnomalyUnknownOpcode,
			Message: fmt.Sprintf("unknown reply opcode 0x%02X", p.Opcode()),
			Details: map[string]interface{}{"opcode": p.Opcode(), "length": p.Len()},
		})
	}

	return errors
}
