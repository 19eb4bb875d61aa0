// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The open-niim authors

package niimbot

// Command builder functions create Packet structs ready for encoding.
// Opcodes and body shapes are a compatibility contract with the printer
// firmware and are reproduced byte for byte.

// NewCalibrateGap creates a calibrate-label-gap packet (0x8E). The printer
// feeds paper until it relearns the gap between labels.
func NewCalibrateGap() *Packet {
	return NewPacket(CmdCalibrateGap, []byte{0x01})
}

// NewHeartbeat creates a heartbeat packet (0xDC). The printer answers with a
// status snapshot; see DecodeHeartbeatReply.
func NewHeartbeat() *Packet {
	return NewPacket(CmdHeartbeat, []byte{0x04})
}

// NewGetStatus creates a get-print-status packet (0xA3). The printer answers
// with page and progress counters; see DecodeStatusReply.
func NewGetStatus() *Packet {
	return NewPacket(CmdGetStatus, []byte{0x01})
}

// NewGetRFID creates a get-label-RFID packet (0x1A), reading the tag embedded
// in original label rolls; see DecodeRFIDReply.
func NewGetRFID() *Packet {
	return NewPacket(CmdGetRFID, []byte{0x01})
}

// NewSetLabelType creates a set-label-type packet (0x23) selecting gap-cut
// label stock.
func NewSetLabelType() *Packet {
	return NewPacket(CmdSetLabelType, []byte{LabelTypeGap})
}

// NewSetDensity creates a set-print-density packet (0x21).
// Valid levels are MinDensity through MaxDensity.
func NewSetDensity(level uint8) *Packet {
	return NewPacket(CmdSetDensity, []byte{level})
}

// NewStartExchange creates a start-print-data-exchange packet (0x01),
// opening the bulk transfer phase of a print job.
func NewStartExchange() *Packet {
	return NewPacket(CmdStartExchange, []byte{0x00, 0x01})
}

// NewSetDimensions creates a set-print-dimensions packet (0x13) for the
// label size in dots.
func NewSetDimensions(width, height uint8) *Packet {
	return NewPacket(CmdSetDimensions, []byte{0x00, width, 0x01, height, 0x00, 0x01})
}

// NewEndExchange creates an end-print-data-exchange packet (0xE3), closing
// the bulk transfer phase.
func NewEndExchange() *Packet {
	return NewPacket(CmdEndExchange, []byte{0x01})
}

// NewEndPrint creates an end-print packet (0xF3), finishing the page.
func NewEndPrint() *Packet {
	return NewPacket(CmdEndPrint, []byte{0x01})
}

// NewPrintLine creates a print-line packet (0x85) carrying one row bitmap.
// startPos is the row offset from the top of the label, thickness the number
// of dot rows the bitmap is repeated for. The bitmap is packed MSB first,
// one bit per dot, and must fit MaxRowBitmap bytes.
func NewPrintLine(startPos, thickness uint8, bitmap []byte) *Packet {
	body := make([]byte, 0, lineHeaderSize+len(bitmap))
	body = append(body, 0x00, startPos, 0x80, 0x32, 0x00, thickness)
	body = append(body, bitmap...)
	return NewPacket(CmdPrintLine, body)
}

// NewPrintWhitespace creates a print-whitespace packet (0x84), advancing
// thickness blank dot rows at startPos without transferring a bitmap.
func NewPrintWhitespace(startPos, thickness uint8) *Packet {
	return NewPacket(CmdPrintWhitespace, []byte{0x00, startPos, thickness})
}
