package niimbot

import (
	"bytes"
	"errors"
	"testing"
)

// feedFrame drives data through a fresh decoder byte by byte and returns the
// last completed packet.
func feedFrame(t *testing.T, data []byte) *Packet {
	t.Helper()
	d := NewDecoder()
	var pkt *Packet
	for i, b := range data {
		p, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("decode error at byte %d: %v", i, err)
		}
		if p != nil {
			pkt = p
		}
	}
	return pkt
}

func TestEncodePacket_GoldenStatusFrame(t *testing.T) {
	// End-to-end golden vector: get-print-status, opcode 0xA3, body [0x01].
	// Checksum is 0xA3 ^ 0x01 ^ 0x01 = 0xA3.
	frame, err := EncodePacket(NewGetStatus())
	if err != nil {
		t.Fatalf("EncodePacket failed: %v", err)
	}

	want := []byte{0x55, 0x55, 0xA3, 0x01, 0x01, 0xA3, 0xAA, 0xAA}
	if !bytes.Equal(frame, want) {
		t.Errorf("status frame mismatch:\n got %X\nwant %X", frame, want)
	}
}

func TestChecksum(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  uint8
	}{
		{
			name:  "golden vector",
			input: []byte{0x01, 0x02, 0x03},
			want:  0x00,
		},
		{
			name:  "single byte is itself",
			input: []byte{0x7F},
			want:  0x7F,
		},
		{
			name:  "pair cancels",
			input: []byte{0xAB, 0xAB},
			want:  0x00,
		},
		{
			name:  "status payload",
			input: []byte{0xA3, 0x01, 0x01},
			want:  0xA3,
		},
		{
			name:  "heartbeat payload",
			input: []byte{0xDC, 0x01, 0x04},
			want:  0xD9,
		},
		{
			name:  "zeros stay zero",
			input: []byte{0x00, 0x00, 0x00, 0x00},
			want:  0x00,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Checksum(tt.input)
			if err != nil {
				t.Fatalf("Checksum failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Checksum(%X) = 0x%02X, want 0x%02X", tt.input, got, tt.want)
			}
		})
	}
}

func TestChecksum_EmptyPayload(t *testing.T) {
	_, err := Checksum(nil)
	if !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("expected ErrEmptyPayload for empty input, got %v", err)
	}
}

func TestChecksum_FoldProperty(t *testing.T) {
	// The checksum of any payload equals the byte-by-byte XOR fold.
	payloads := [][]byte{
		{0x01},
		{0x55, 0xAA},
		{0x85, 0x09, 0x00, 0x05, 0x80, 0x32, 0x00, 0x01, 0xFF},
		{0xFF, 0xFE, 0xFD, 0xFC, 0x00, 0x10},
	}

	for _, p := range payloads {
		var want uint8
		for _, b := range p {
			want ^= b
		}
		got, err := Checksum(p)
		if err != nil {
			t.Fatalf("Checksum(%X) failed: %v", p, err)
		}
		if got != want {
			t.Errorf("Checksum(%X) = 0x%02X, want fold 0x%02X", p, got, want)
		}
	}
}

func TestEncodePacket_FrameLength(t *testing.T) {
	// A frame is always body length plus FrameOverhead.
	for _, n := range []int{0, 1, 16, 128, MaxBodySize} {
		frame, err := EncodePacket(NewPacket(0x85, make([]byte, n)))
		if err != nil {
			t.Fatalf("EncodePacket failed for %d byte body: %v", n, err)
		}
		if len(frame) != n+FrameOverhead {
			t.Errorf("frame length for %d byte body: got %d, want %d", n, len(frame), n+FrameOverhead)
		}
	}
}

func TestEncodePacket_Idempotent(t *testing.T) {
	p := NewPrintLine(12, 1, []byte{0xDE, 0xAD, 0xBE, 0xEF})

	first, err := EncodePacket(p)
	if err != nil {
		t.Fatalf("first encode failed: %v", err)
	}
	second, err := EncodePacket(p)
	if err != nil {
		t.Fatalf("second encode failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("re-encoding differs:\n first %X\nsecond %X", first, second)
	}
}

func TestEncodePacket_BodyBoundary(t *testing.T) {
	// 255 bytes is the largest encodable body; 256 must be rejected.
	if _, err := EncodePacket(NewPacket(0x85, make([]byte, MaxBodySize))); err != nil {
		t.Errorf("body of %d bytes should encode, got error: %v", MaxBodySize, err)
	}

	_, err := EncodePacket(NewPacket(0x85, make([]byte, MaxBodySize+1)))
	if !errors.Is(err, ErrFramingViolation) {
		t.Errorf("expected ErrFramingViolation for %d byte body, got %v", MaxBodySize+1, err)
	}
}

func TestMustEncodePacket_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustEncodePacket should panic on oversized body")
		}
	}()
	MustEncodePacket(NewPacket(0x85, make([]byte, MaxBodySize+1)))
}

func TestEncodePacket_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		pkt  *Packet
	}{
		{name: "heartbeat", pkt: NewHeartbeat()},
		{name: "get status", pkt: NewGetStatus()},
		{name: "set density", pkt: NewSetDensity(5)},
		{name: "start exchange", pkt: NewStartExchange()},
		{name: "set dimensions", pkt: NewSetDimensions(240, 128)},
		{name: "print line", pkt: NewPrintLine(0, 1, []byte{0xFF, 0x81, 0x00, 0x7E})},
		{name: "print whitespace", pkt: NewPrintWhitespace(100, 24)},
		{name: "empty body", pkt: NewPacket(0x40, nil)},
		{name: "max body", pkt: NewPacket(0x85, bytes.Repeat([]byte{0x5A}, MaxBodySize))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodePacket(tt.pkt)
			if err != nil {
				t.Fatalf("EncodePacket failed: %v", err)
			}

			decoded := feedFrame(t, frame)
			if decoded == nil {
				t.Fatal("decoder did not produce a packet")
			}
			if decoded.Opcode() != tt.pkt.Opcode() {
				t.Errorf("opcode mismatch: got 0x%02X, want 0x%02X", decoded.Opcode(), tt.pkt.Opcode())
			}
			if !bytes.Equal(decoded.Body(), tt.pkt.Body()) {
				t.Errorf("body mismatch:\n got %X\nwant %X", decoded.Body(), tt.pkt.Body())
			}
		})
	}
}

func TestDecoder_GarbageResync(t *testing.T) {
	// Line noise before a frame must be skipped without losing the frame.
	frame := MustEncodePacket(NewGetStatus())
	data := append([]byte{0x00, 0x13, 0xAA, 0x55, 0x01}, frame...)

	d := NewDecoder()
	var decoded *Packet
	for _, b := range data {
		p, err := d.DecodeByte(b)
		if err != nil {
			// A garbage prefix may abort one partial frame; the decoder
			// must still resync on the real one.
			continue
		}
		if p != nil {
			decoded = p
		}
	}

	if decoded == nil {
		t.Fatal("decoder did not resync after garbage prefix")
	}
	if decoded.Opcode() != CmdGetStatus {
		t.Errorf("opcode after resync: got 0x%02X, want 0x%02X", decoded.Opcode(), CmdGetStatus)
	}
}

func TestDecoder_RepeatedStartBytes(t *testing.T) {
	// A longer run of 0x55 still counts as one start sequence.
	frame := MustEncodePacket(NewHeartbeat())
	data := append([]byte{StartByte, StartByte, StartByte}, frame...)

	decoded := feedFrame(t, data)
	if decoded == nil {
		t.Fatal("decoder did not produce a packet after repeated start bytes")
	}
	if decoded.Opcode() != CmdHeartbeat {
		t.Errorf("opcode mismatch: got 0x%02X, want 0x%02X", decoded.Opcode(), CmdHeartbeat)
	}
}

func TestDecoder_ChecksumMismatch(t *testing.T) {
	frame := MustEncodePacket(NewGetStatus())
	frame[len(frame)-3] ^= 0xFF // corrupt the checksum byte

	d := NewDecoder()
	var decodeErr error
	for _, b := range frame {
		p, err := d.DecodeByte(b)
		if err != nil {
			decodeErr = err
		}
		if p != nil {
			t.Fatal("corrupted frame should not decode to a packet")
		}
	}

	if !errors.Is(decodeErr, ErrChecksumMismatch) {
		t.Errorf("expected ErrChecksumMismatch, got %v", decodeErr)
	}

	// The decoder must be reusable after the failure.
	good := feedFrameOn(t, d, MustEncodePacket(NewHeartbeat()))
	if good == nil || good.Opcode() != CmdHeartbeat {
		t.Error("decoder did not recover after checksum mismatch")
	}
}

func TestDecoder_BadEndMarker(t *testing.T) {
	frame := MustEncodePacket(NewGetStatus())
	frame[len(frame)-1] = 0x00 // break the trailing end marker

	d := NewDecoder()
	var decodeErr error
	for _, b := range frame {
		p, err := d.DecodeByte(b)
		if err != nil {
			decodeErr = err
		}
		if p != nil {
			t.Fatal("frame with broken end marker should not decode")
		}
	}
	if decodeErr == nil {
		t.Error("expected an error for broken end marker, got nil")
	}

	good := feedFrameOn(t, d, MustEncodePacket(NewGetStatus()))
	if good == nil || good.Opcode() != CmdGetStatus {
		t.Error("decoder did not recover after broken end marker")
	}
}

func TestDecoder_SplitDelivery(t *testing.T) {
	// Transports deliver frames in arbitrary chunks; the decoder is fed byte
	// by byte, so a split mid-frame must be invisible.
	frame := MustEncodePacket(NewSetDimensions(240, 128))

	d := NewDecoder()
	var decoded *Packet
	for _, chunk := range [][]byte{frame[:3], frame[3:9], frame[9:]} {
		for _, b := range chunk {
			p, err := d.DecodeByte(b)
			if err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if p != nil {
				decoded = p
			}
		}
	}

	if decoded == nil {
		t.Fatal("split frame did not decode")
	}
	if decoded.Opcode() != CmdSetDimensions {
		t.Errorf("opcode mismatch: got 0x%02X, want 0x%02X", decoded.Opcode(), CmdSetDimensions)
	}
}

func TestDecoder_BackToBackFrames(t *testing.T) {
	// Two frames in one buffer decode to two packets.
	data := append(MustEncodePacket(NewGetStatus()), MustEncodePacket(NewHeartbeat())...)

	d := NewDecoder()
	var opcodes []uint8
	for _, b := range data {
		p, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if p != nil {
			opcodes = append(opcodes, p.Opcode())
		}
	}

	if len(opcodes) != 2 || opcodes[0] != CmdGetStatus || opcodes[1] != CmdHeartbeat {
		t.Errorf("back-to-back decode: got opcodes %X, want [A3 DC]", opcodes)
	}
}

func TestNewPacket_CopiesBody(t *testing.T) {
	body := []byte{0x01, 0x02}
	p := NewPacket(0x85, body)
	body[0] = 0xFF

	if p.Body()[0] != 0x01 {
		t.Error("packet body aliases the caller's slice")
	}
}

// feedFrameOn is feedFrame against an existing decoder, for recovery tests.
func feedFrameOn(t *testing.T, d *Decoder, data []byte) *Packet {
	t.Helper()
	var pkt *Packet
	for i, b := range data {
		p, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("decode error at byte %d: %v", i, err)
		}
		if p != nil {
			pkt = p
		}
	}
	return pkt
}
