// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The open-niim authors

package niimbot

import "fmt"

// EncodePacket encodes a packet to wire format:
//
//	[0x55 0x55] [opcode] [len] [body...] [xor] [0xAA 0xAA]
//
// where xor is the XOR fold of opcode, length and body. Encoding is a pure
// function of the packet: the same packet always yields an identical frame.
// Bodies longer than MaxBodySize are rejected with ErrFramingViolation.
func EncodePacket(p *Packet) ([]byte, error) {
	if len(p.body) > MaxBodySize {
		return nil, fmt.Errorf("%w: body is %d bytes (max %d)", ErrFramingViolation, len(p.body), MaxBodySize)
	}

	frame := make([]byte, 0, len(p.body)+FrameOverhead)
	frame = append(frame, StartByte, StartByte, p.opcode, uint8(len(p.body)))
	frame = append(frame, p.body...)

	// Checksum covers opcode, length and body.
	sum, err := Checksum(frame[2:])
	if err != nil {
		return nil, err
	}

	frame = append(frame, sum, EndByte, EndByte)
	return frame, nil
}

// MustEncodePacket encodes a packet and panics on error. Intended for
// catalogue commands with fixed bodies, which cannot fail.
func MustEncodePacket(p *Packet) []byte {
	frame, err := EncodePacket(p)
	if err != nil {
		panic(fmt.Sprintf("niimbot: encode error: %v", err))
	}
	return frame
}
