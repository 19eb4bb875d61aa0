// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The open-niim authors

// Package niimbot implements the Niimbot label printer wire protocol.
//
// Niimbot printers (B1 family and relatives) speak a simple binary command
// protocol over a serial-style link: each command is a framed packet with an
// opcode, a short body and an XOR checksum. This package provides packet
// encoding/decoding, the command catalogue, structured reply decoding, and a
// print-session engine that sequences configuration, line-by-line image
// transfer and teardown over any byte transport.
package niimbot

import "time"

// Protocol framing bytes. Both markers appear twice on the wire:
// a frame is 0x55 0x55 <opcode> <len> <body> <xor> 0xAA 0xAA.
const (
	StartByte = 0x55
	EndByte   = 0xAA
)

// Packet size limits
const (
	MaxBodySize   = 255 // length field is a single byte
	FrameOverhead = 7   // 2 start + opcode + length + checksum + 2 end
	MaxFrameSize  = MaxBodySize + FrameOverhead

	// Print-line bodies carry a 6-byte row header before the bitmap.
	lineHeaderSize = 6
	MaxRowBitmap   = MaxBodySize - lineHeaderSize
)

// Command opcodes (host → printer)
const (
	CmdStartExchange   = 0x01 // open print-data exchange
	CmdSetDimensions   = 0x13
	CmdGetRFID         = 0x1A
	CmdSetDensity      = 0x21
	CmdSetLabelType    = 0x23
	CmdPrintWhitespace = 0x84
	CmdPrintLine       = 0x85
	CmdCalibrateGap    = 0x8E
	CmdGetStatus       = 0xA3
	CmdHeartbeat       = 0xDC
	CmdEndExchange     = 0xE3
	CmdEndPrint        = 0xF3
)

// Reply opcodes (printer → host). Acknowledgment replies echo the request
// opcode offset by replyOffset; heartbeat and RFID replies reuse the request
// opcode unchanged.
const (
	replyOffset = 0x10

	ReplySetDensity   = CmdSetDensity + replyOffset   // 0x31
	ReplySetLabelType = CmdSetLabelType + replyOffset // 0x33
	ReplyStatus       = CmdGetStatus + replyOffset    // 0xB3
	ReplyHeartbeat    = CmdHeartbeat                  // 0xDC
	ReplyRFID         = CmdGetRFID                    // 0x1A

	ReplyError        = 0xDB // device rejected the last command
	ReplyNotSupported = 0x00 // device does not implement the command
)

// Label types for CmdSetLabelType
const (
	LabelTypeGap = 0x01 // die-cut labels separated by a transparent gap
)

// Density limits for CmdSetDensity
const (
	MinDensity = 1
	MaxDensity = 5
)

// Session defaults. All of these are configuration, never hard-wired into
// the engine; see Config.
const (
	DefaultDensity     = 3
	DefaultLabelWidth  = 240
	DefaultLabelHeight = 128

	DefaultSendInterval      = 500 * time.Millisecond
	DefaultSettleDelay       = 1000 * time.Millisecond
	DefaultHeartbeatInterval = 1000 * time.Millisecond

	DefaultConnectAttempts   = 5
	DefaultConnectBackoff    = 1 * time.Second
	DefaultConnectBackoffMax = 30 * time.Second

	DefaultMaxSendRetries = 8
	DefaultInboundBuffer  = 32
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateStart2
	stateOpcode
	stateLength
	stateBody
	stateChecksum
	stateEnd1
	stateEnd2
)
