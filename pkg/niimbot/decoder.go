// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The open-niim authors

package niimbot

import (
	"fmt"
	"time"
)

// Decoder implements the inbound packet decoder state machine. Bytes are fed
// one at a time; a completed, checksum-verified packet is returned once its
// trailing end markers arrive. Garbage between frames is skipped silently
// while hunting for the start markers.
type Decoder struct {
	state  int
	opcode uint8
	length uint8
	body   []byte
	sum    uint8
}

// NewDecoder creates a new protocol decoder.
func NewDecoder() *Decoder {
	return &Decoder{state: stateIdle}
}

// Reset returns the decoder to the idle state, discarding any partial frame.
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.opcode = 0
	d.length = 0
	d.body = nil
	d.sum = 0
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed packet, or nil while the frame is incomplete.
// Returns an error when a frame fails validation; the decoder resyncs on the
// next start marker.
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	switch d.state {
	case stateIdle:
		if b == StartByte {
			d.state = stateStart2
		}
		return nil, nil

	case stateStart2:
		if b != StartByte {
			d.state = stateIdle
			return nil, nil
		}
		d.state = stateOpcode
		return nil, nil

	case stateOpcode:
		// A longer run of 0x55 still counts as the start sequence.
		if b == StartByte {
			return nil, nil
		}
		d.opcode = b
		d.state = stateLength
		return nil, nil

	case stateLength:
		d.length = b
		d.body = make([]byte, 0, b)
		if b == 0 {
			d.state = stateChecksum
		} else {
			d.state = stateBody
		}
		return nil, nil

	case stateBody:
		d.body = append(d.body, b)
		if len(d.body) >= int(d.length) {
			d.state = stateChecksum
		}
		return nil, nil

	case stateChecksum:
		d.sum = b
		d.state = stateEnd1
		return nil, nil

	case stateEnd1:
		if b != EndByte {
			d.Reset()
			return nil, fmt.Errorf("missing end marker: got 0x%02X after checksum", b)
		}
		d.state = stateEnd2
		return nil, nil

	case stateEnd2:
		if b != EndByte {
			d.Reset()
			return nil, fmt.Errorf("truncated end marker: got 0x%02X", b)
		}

		payload := make([]byte, 0, 2+len(d.body))
		payload = append(payload, d.opcode, d.length)
		payload = append(payload, d.body...)
		want, err := Checksum(payload)
		if err != nil {
			d.Reset()
			return nil, err
		}
		if d.sum != want {
			err := fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrChecksumMismatch, want, d.sum)
			d.Reset()
			return nil, err
		}

		packet := &Packet{
			opcode:    d.opcode,
			body:      d.body,
			timestamp: time.Now(),
		}
		d.Reset()
		return packet, nil

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid decoder state: %d", d.state)
	}
}
