// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The open-niim authors

package niimbot

import (
	"encoding/binary"
	"fmt"
)

// Structured decoding for the printer's reply packets. The engine never
// gates print progress on these (pacing is delay-based); they exist as an
// extension point so callers can observe device state.

// StatusReply is the answer to a get-print-status request.
type StatusReply struct {
	Page      uint16
	Progress1 uint8
	Progress2 uint8
}

// DecodeStatusReply decodes a print-status reply packet (0xB3).
func DecodeStatusReply(p *Packet) (StatusReply, error) {
	if p.Opcode() != ReplyStatus {
		return StatusReply{}, fmt.Errorf("not a status reply: opcode 0x%02X", p.Opcode())
	}
	body := p.Body()
	if len(body) < 4 {
		return StatusReply{}, fmt.Errorf("status reply too short: %d bytes", len(body))
	}
	return StatusReply{
		Page:      binary.BigEndian.Uint16(body),
		Progress1: body[2],
		Progress2: body[3],
	}, nil
}

// HeartbeatReply is the printer's answer to a heartbeat. Firmware revisions
// answer with different body lengths; fields absent from a given variant are
// nil.
type HeartbeatReply struct {
	ClosingState  *uint8 // lid closed/open
	PowerLevel    *uint8 // battery level, 1-4
	PaperState    *uint8
	RFIDReadState *uint8
}

// DecodeHeartbeatReply decodes a heartbeat reply packet (0xDC). The field
// layout is keyed on the body length; known variants are 9, 10, 13, 19 and
// 20 bytes.
func DecodeHeartbeatReply(p *Packet) (HeartbeatReply, error) {
	if p.Opcode() != ReplyHeartbeat {
		return HeartbeatReply{}, fmt.Errorf("not a heartbeat reply: opcode 0x%02X", p.Opcode())
	}

	body := p.Body()
	var hb HeartbeatReply
	switch len(body) {
	case 20:
		hb.PaperState = u8ptr(body[18])
		hb.RFIDReadState = u8ptr(body[19])
	case 19:
		hb.ClosingState = u8ptr(body[15])
		hb.PowerLevel = u8ptr(body[16])
		hb.PaperState = u8ptr(body[17])
		hb.RFIDReadState = u8ptr(body[18])
	case 13:
		hb.ClosingState = u8ptr(body[9])
		hb.PowerLevel = u8ptr(body[10])
		hb.PaperState = u8ptr(body[11])
		hb.RFIDReadState = u8ptr(body[12])
	case 10:
		hb.ClosingState = u8ptr(body[8])
		hb.PowerLevel = u8ptr(body[9])
		hb.RFIDReadState = u8ptr(body[8])
	case 9:
		hb.ClosingState = u8ptr(body[8])
	default:
		return HeartbeatReply{}, fmt.Errorf("unknown heartbeat variant: %d bytes", len(body))
	}
	return hb, nil
}

func u8ptr(v uint8) *uint8 { return &v }

// RFIDTag describes the tag embedded in original Niimbot label rolls.
type RFIDTag struct {
	UUID        string // 8 tag bytes, hex encoded
	Barcode     string
	Serial      string
	TotalLength uint16 // roll length in mm
	UsedLength  uint16
	Type        uint8
}

// DecodeRFIDReply decodes a label-RFID reply packet (0x1A). Returns
// (nil, nil) when no tag is present (blank or third-party rolls).
func DecodeRFIDReply(p *Packet) (*RFIDTag, error) {
	if p.Opcode() != ReplyRFID {
		return nil, fmt.Errorf("not an RFID reply: opcode 0x%02X", p.Opcode())
	}

	body := p.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("empty RFID reply")
	}
	if body[0] == 0 {
		return nil, nil
	}

	idx := 0
	if len(body) < idx+8 {
		return nil, fmt.Errorf("RFID reply truncated at uuid")
	}
	uuid := fmt.Sprintf("%x", body[idx:idx+8])
	idx += 8

	barcode, idx, err := readLenPrefixed(body, idx, "barcode")
	if err != nil {
		return nil, err
	}
	serial, idx, err := readLenPrefixed(body, idx, "serial")
	if err != nil {
		return nil, err
	}

	if len(body) < idx+5 {
		return nil, fmt.Errorf("RFID reply truncated at lengths")
	}
	total := binary.BigEndian.Uint16(body[idx:])
	idx += 2
	used := binary.BigEndian.Uint16(body[idx:])
	idx += 2

	return &RFIDTag{
		UUID:        uuid,
		Barcode:     barcode,
		Serial:      serial,
		TotalLength: total,
		UsedLength:  used,
		Type:        body[idx],
	}, nil
}

// readLenPrefixed reads a single-byte-length-prefixed string field.
func readLenPrefixed(body []byte, idx int, field string) (string, int, error) {
	if len(body) < idx+1 {
		return "", 0, fmt.Errorf("RFID reply truncated at %s length", field)
	}
	n := int(body[idx])
	idx++
	if len(body) < idx+n {
		return "", 0, fmt.Errorf("RFID reply truncated at %s", field)
	}
	return string(body[idx : idx+n]), idx + n, nil
}
