// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The open-niim authors

package niimbot

import (
	"bytes"
	"errors"
	"testing"
)

// Golden wire frames for the full command catalogue. These bytes are a
// compatibility contract with the printer firmware; a mismatch here means
// the device will ignore or reject the command.
func TestCommandCatalogue_GoldenFrames(t *testing.T) {
	tests := []struct {
		name string
		pkt  *Packet
		want []byte
	}{
		{
			name: "calibrate gap",
			pkt:  NewCalibrateGap(),
			want: []byte{0x55, 0x55, 0x8E, 0x01, 0x01, 0x8E, 0xAA, 0xAA},
		},
		{
			name: "heartbeat",
			pkt:  NewHeartbeat(),
			want: []byte{0x55, 0x55, 0xDC, 0x01, 0x04, 0xD9, 0xAA, 0xAA},
		},
		{
			name: "get status",
			pkt:  NewGetStatus(),
			want: []byte{0x55, 0x55, 0xA3, 0x01, 0x01, 0xA3, 0xAA, 0xAA},
		},
		{
			name: "get RFID",
			pkt:  NewGetRFID(),
			want: []byte{0x55, 0x55, 0x1A, 0x01, 0x01, 0x1A, 0xAA, 0xAA},
		},
		{
			name: "set label type",
			pkt:  NewSetLabelType(),
			want: []byte{0x55, 0x55, 0x23, 0x01, 0x01, 0x23, 0xAA, 0xAA},
		},
		{
			name: "set density 3",
			pkt:  NewSetDensity(3),
			want: []byte{0x55, 0x55, 0x21, 0x01, 0x03, 0x23, 0xAA, 0xAA},
		},
		{
			name: "start exchange",
			pkt:  NewStartExchange(),
			want: []byte{0x55, 0x55, 0x01, 0x02, 0x00, 0x01, 0x02, 0xAA, 0xAA},
		},
		{
			name: "set dimensions 240x128",
			pkt:  NewSetDimensions(240, 128),
			want: []byte{0x55, 0x55, 0x13, 0x06, 0x00, 0xF0, 0x01, 0x80, 0x00, 0x01, 0x65, 0xAA, 0xAA},
		},
		{
			name: "end exchange",
			pkt:  NewEndExchange(),
			want: []byte{0x55, 0x55, 0xE3, 0x01, 0x01, 0xE3, 0xAA, 0xAA},
		},
		{
			name: "end print",
			pkt:  NewEndPrint(),
			want: []byte{0x55, 0x55, 0xF3, 0x01, 0x01, 0xF3, 0xAA, 0xAA},
		},
		{
			name: "print line",
			pkt:  NewPrintLine(5, 1, []byte{0xFF, 0x00, 0xAB}),
			want: []byte{
				0x55, 0x55, 0x85, 0x09,
				0x00, 0x05, 0x80, 0x32, 0x00, 0x01, // row header
				0xFF, 0x00, 0xAB, // bitmap
				0x6E, 0xAA, 0xAA,
			},
		},
		{
			name: "print whitespace",
			pkt:  NewPrintWhitespace(16, 8),
			want: []byte{0x55, 0x55, 0x84, 0x03, 0x00, 0x10, 0x08, 0x9F, 0xAA, 0xAA},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodePacket(tt.pkt)
			if err != nil {
				t.Fatalf("EncodePacket failed: %v", err)
			}
			if !bytes.Equal(frame, tt.want) {
				t.Errorf("frame mismatch:\n got %X\nwant %X", frame, tt.want)
			}
		})
	}
}

func TestNewSetDensity_Levels(t *testing.T) {
	for level := uint8(MinDensity); level <= MaxDensity; level++ {
		p := NewSetDensity(level)
		if p.Opcode() != CmdSetDensity {
			t.Fatalf("opcode for density %d: got 0x%02X, want 0x%02X", level, p.Opcode(), CmdSetDensity)
		}
		if p.Len() != 1 || p.Body()[0] != level {
			t.Errorf("body for density %d: got %X, want [%02X]", level, p.Body(), level)
		}
	}
}

func TestNewSetDimensions_Layout(t *testing.T) {
	tests := []struct {
		name          string
		width, height uint8
		want          []byte
	}{
		{name: "typical", width: 240, height: 128, want: []byte{0x00, 0xF0, 0x01, 0x80, 0x00, 0x01}},
		{name: "minimum", width: 1, height: 1, want: []byte{0x00, 0x01, 0x01, 0x01, 0x00, 0x01}},
		{name: "maximum", width: 255, height: 255, want: []byte{0x00, 0xFF, 0x01, 0xFF, 0x00, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewSetDimensions(tt.width, tt.height)
			if !bytes.Equal(p.Body(), tt.want) {
				t.Errorf("body mismatch: got %X, want %X", p.Body(), tt.want)
			}
		})
	}
}

func TestNewPrintLine_BodyLayout(t *testing.T) {
	bitmap := []byte{0xAA, 0x55, 0xAA}
	p := NewPrintLine(42, 2, bitmap)

	if p.Len() != lineHeaderSize+len(bitmap) {
		t.Fatalf("body length: got %d, want %d", p.Len(), lineHeaderSize+len(bitmap))
	}

	body := p.Body()
	wantHeader := []byte{0x00, 42, 0x80, 0x32, 0x00, 2}
	if !bytes.Equal(body[:lineHeaderSize], wantHeader) {
		t.Errorf("row header mismatch: got %X, want %X", body[:lineHeaderSize], wantHeader)
	}
	if !bytes.Equal(body[lineHeaderSize:], bitmap) {
		t.Errorf("bitmap mismatch: got %X, want %X", body[lineHeaderSize:], bitmap)
	}
}

func TestNewPrintLine_BitmapBoundary(t *testing.T) {
	// MaxRowBitmap fills the body exactly; one more byte breaks framing.
	if _, err := EncodePacket(NewPrintLine(0, 1, make([]byte, MaxRowBitmap))); err != nil {
		t.Errorf("bitmap of %d bytes should encode, got error: %v", MaxRowBitmap, err)
	}

	_, err := EncodePacket(NewPrintLine(0, 1, make([]byte, MaxRowBitmap+1)))
	if !errors.Is(err, ErrFramingViolation) {
		t.Errorf("expected ErrFramingViolation for oversize bitmap, got %v", err)
	}
}
