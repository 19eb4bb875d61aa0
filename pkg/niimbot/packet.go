// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The open-niim authors

package niimbot

import "time"

// Packet represents a Niimbot protocol packet: an opcode plus an
// operation-specific body of 0-255 bytes. Outbound packets are built by the
// command constructors in commands.go; inbound packets are produced by the
// Decoder. A packet is immutable once built and is consumed exactly once.
type Packet struct {
	opcode    uint8
	body      []byte
	timestamp time.Time
}

// NewPacket creates a packet with the given opcode and body. The body is
// copied so later mutation of the caller's slice cannot change the packet.
func NewPacket(opcode uint8, body []byte) *Packet {
	b := make([]byte, len(body))
	copy(b, body)
	return &Packet{
		opcode:    opcode,
		body:      b,
		timestamp: time.Now(),
	}
}

// Opcode returns the packet's operation code.
func (p *Packet) Opcode() uint8 {
	return p.opcode
}

// Body returns the packet's body bytes.
func (p *Packet) Body() []byte {
	return p.body
}

// Len returns the body length in bytes.
func (p *Packet) Len() int {
	return len(p.body)
}

// Timestamp returns the packet's build or decode time.
func (p *Packet) Timestamp() time.Time {
	return p.timestamp
}

// IsError returns true for the device's command-rejected reply.
func (p *Packet) IsError() bool {
	return p.opcode == ReplyError
}

// IsNotSupported returns true for the device's not-implemented reply.
func (p *Packet) IsNotSupported() bool {
	return p.opcode == ReplyNotSupported
}
