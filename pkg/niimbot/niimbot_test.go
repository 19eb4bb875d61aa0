// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The open-niim authors

package niimbot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// ============================================================
// Transmission Queue
// ============================================================

func TestTxQueue_FIFO(t *testing.T) {
	c1 := MustEncodePacket(NewPrintLine(0, 1, []byte{0x01}))
	c2 := MustEncodePacket(NewPrintLine(1, 1, []byte{0x02}))
	c3 := MustEncodePacket(NewPrintLine(2, 1, []byte{0x03}))

	q := NewTxQueue()
	q.Enqueue(c1)
	q.Enqueue(c2)
	q.Enqueue(c3)

	if q.Len() != 3 {
		t.Fatalf("queue length: got %d, want 3", q.Len())
	}

	for i, want := range [][]byte{c1, c2, c3} {
		got, ok := q.Next()
		if !ok {
			t.Fatalf("dequeue %d: queue reported empty", i)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("dequeue %d out of order:\n got %X\nwant %X", i, got, want)
		}
	}

	if _, ok := q.Next(); ok {
		t.Error("drained queue should report empty")
	}
	if q.Len() != 0 {
		t.Errorf("drained queue length: got %d, want 0", q.Len())
	}
}

func TestTxQueue_EmptyIsNotAnError(t *testing.T) {
	q := NewTxQueue()
	frame, ok := q.Next()
	if ok || frame != nil {
		t.Errorf("empty queue Next() = (%v, %v), want (nil, false)", frame, ok)
	}
}

func TestTxQueue_Reset(t *testing.T) {
	q := NewTxQueue()
	q.Enqueue(MustEncodePacket(NewHeartbeat()))
	q.Enqueue(MustEncodePacket(NewHeartbeat()))
	q.Reset()

	if q.Len() != 0 {
		t.Errorf("queue length after reset: got %d, want 0", q.Len())
	}
	if _, ok := q.Next(); ok {
		t.Error("reset queue should report empty")
	}
}

func TestTxQueue_InterleavedEnqueueDequeue(t *testing.T) {
	q := NewTxQueue()
	q.Enqueue([]byte{0x01})
	q.Enqueue([]byte{0x02})

	first, _ := q.Next()
	q.Enqueue([]byte{0x03})
	second, _ := q.Next()
	third, _ := q.Next()

	if first[0] != 0x01 || second[0] != 0x02 || third[0] != 0x03 {
		t.Errorf("interleaved order: got [%X %X %X], want [01 02 03]", first, second, third)
	}
}

// ============================================================
// Reply Decoding
// ============================================================

func TestDecodeStatusReply(t *testing.T) {
	p := NewPacket(ReplyStatus, []byte{0x00, 0x02, 0x40, 0x33})

	status, err := DecodeStatusReply(p)
	if err != nil {
		t.Fatalf("DecodeStatusReply failed: %v", err)
	}
	if status.Page != 2 {
		t.Errorf("page: got %d, want 2", status.Page)
	}
	if status.Progress1 != 0x40 {
		t.Errorf("progress1: got 0x%02X, want 0x40", status.Progress1)
	}
	if status.Progress2 != 0x33 {
		t.Errorf("progress2: got 0x%02X, want 0x33", status.Progress2)
	}
}

func TestDecodeStatusReply_PageBigEndian(t *testing.T) {
	p := NewPacket(ReplyStatus, []byte{0x01, 0x2C, 0x00, 0x00})
	status, err := DecodeStatusReply(p)
	if err != nil {
		t.Fatalf("DecodeStatusReply failed: %v", err)
	}
	if status.Page != 300 {
		t.Errorf("page: got %d, want 300", status.Page)
	}
}

func TestDecodeStatusReply_Errors(t *testing.T) {
	tests := []struct {
		name string
		pkt  *Packet
	}{
		{name: "wrong opcode", pkt: NewPacket(CmdHeartbeat, []byte{0x00, 0x01, 0x00, 0x00})},
		{name: "short body", pkt: NewPacket(ReplyStatus, []byte{0x00, 0x01})},
		{name: "empty body", pkt: NewPacket(ReplyStatus, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeStatusReply(tt.pkt); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestDecodeHeartbeatReply_Variants(t *testing.T) {
	// Firmware revisions answer with different body lengths; the field
	// positions are keyed on the length.
	mkBody := func(n int) []byte {
		body := make([]byte, n)
		for i := range body {
			body[i] = uint8(0x10 + i)
		}
		return body
	}

	tests := []struct {
		name        string
		bodyLen     int
		wantClosing *int
		wantPower   *int
		wantPaper   *int
		wantRFID    *int
	}{
		{name: "20 byte variant", bodyLen: 20, wantPaper: intp(0x22), wantRFID: intp(0x23)},
		{name: "19 byte variant", bodyLen: 19, wantClosing: intp(0x1F), wantPower: intp(0x20), wantPaper: intp(0x21), wantRFID: intp(0x22)},
		{name: "13 byte variant", bodyLen: 13, wantClosing: intp(0x19), wantPower: intp(0x1A), wantPaper: intp(0x1B), wantRFID: intp(0x1C)},
		{name: "10 byte variant", bodyLen: 10, wantClosing: intp(0x18), wantPower: intp(0x19), wantRFID: intp(0x18)},
		{name: "9 byte variant", bodyLen: 9, wantClosing: intp(0x18)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hb, err := DecodeHeartbeatReply(NewPacket(ReplyHeartbeat, mkBody(tt.bodyLen)))
			if err != nil {
				t.Fatalf("DecodeHeartbeatReply failed: %v", err)
			}
			checkField(t, "closing", hb.ClosingState, tt.wantClosing)
			checkField(t, "power", hb.PowerLevel, tt.wantPower)
			checkField(t, "paper", hb.PaperState, tt.wantPaper)
			checkField(t, "rfid", hb.RFIDReadState, tt.wantRFID)
		})
	}
}

func TestDecodeHeartbeatReply_UnknownVariant(t *testing.T) {
	_, err := DecodeHeartbeatReply(NewPacket(ReplyHeartbeat, make([]byte, 7)))
	if err == nil {
		t.Error("expected error for unknown body length, got nil")
	}
}

func TestDecodeHeartbeatReply_WrongOpcode(t *testing.T) {
	_, err := DecodeHeartbeatReply(NewPacket(ReplyStatus, make([]byte, 13)))
	if err == nil {
		t.Error("expected error for wrong opcode, got nil")
	}
}

func TestDecodeRFIDReply(t *testing.T) {
	body := []byte{
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, // uuid
		0x02, 'A', 'B', // barcode
		0x02, 'X', 'Y', // serial
		0x01, 0x40, // total length 320
		0x00, 0x0F, // used length 15
		0x01, // type
	}

	tag, err := DecodeRFIDReply(NewPacket(ReplyRFID, body))
	if err != nil {
		t.Fatalf("DecodeRFIDReply failed: %v", err)
	}
	if tag == nil {
		t.Fatal("expected a tag, got nil")
	}
	if tag.UUID != "0102030405060708" {
		t.Errorf("uuid: got %q, want %q", tag.UUID, "0102030405060708")
	}
	if tag.Barcode != "AB" {
		t.Errorf("barcode: got %q, want %q", tag.Barcode, "AB")
	}
	if tag.Serial != "XY" {
		t.Errorf("serial: got %q, want %q", tag.Serial, "XY")
	}
	if tag.TotalLength != 320 {
		t.Errorf("total length: got %d, want 320", tag.TotalLength)
	}
	if tag.UsedLength != 15 {
		t.Errorf("used length: got %d, want 15", tag.UsedLength)
	}
	if tag.Type != 1 {
		t.Errorf("type: got %d, want 1", tag.Type)
	}
}

func TestDecodeRFIDReply_NoTag(t *testing.T) {
	// Blank and third-party rolls answer with a zero lead byte.
	tag, err := DecodeRFIDReply(NewPacket(ReplyRFID, []byte{0x00}))
	if err != nil {
		t.Fatalf("DecodeRFIDReply failed: %v", err)
	}
	if tag != nil {
		t.Errorf("expected nil tag for no-tag reply, got %+v", tag)
	}
}

func TestDecodeRFIDReply_Truncated(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{name: "empty", body: nil},
		{name: "cut in uuid", body: []byte{0x01, 0x02, 0x03}},
		{name: "missing barcode length", body: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{name: "cut in barcode", body: []byte{1, 2, 3, 4, 5, 6, 7, 8, 0x05, 'A'}},
		{name: "missing roll lengths", body: []byte{1, 2, 3, 4, 5, 6, 7, 8, 0x01, 'A', 0x01, 'B'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeRFIDReply(NewPacket(ReplyRFID, tt.body)); err == nil {
				t.Error("expected error for truncated reply, got nil")
			}
		})
	}
}

// ============================================================
// Validation
// ============================================================

func TestValidatePacket(t *testing.T) {
	tests := []struct {
		name      string
		pkt       *Packet
		wantCount int
		wantType  AnomalyType
	}{
		{
			name:      "clean status reply",
			pkt:       NewPacket(ReplyStatus, []byte{0x00, 0x01, 0x00, 0x00}),
			wantCount: 0,
		},
		{
			name:      "short status reply",
			pkt:       NewPacket(ReplyStatus, []byte{0x00}),
			wantCount: 1,
			wantType:  AnomalyLengthMismatch,
		},
		{
			name:      "clean heartbeat variant",
			pkt:       NewPacket(ReplyHeartbeat, make([]byte, 13)),
			wantCount: 0,
		},
		{
			name:      "unknown heartbeat variant",
			pkt:       NewPacket(ReplyHeartbeat, make([]byte, 5)),
			wantCount: 1,
			wantType:  AnomalyLengthMismatch,
		},
		{
			name:      "density ack",
			pkt:       NewPacket(ReplySetDensity, []byte{0x01}),
			wantCount: 0,
		},
		{
			name:      "label type ack",
			pkt:       NewPacket(ReplySetLabelType, []byte{0x01}),
			wantCount: 0,
		},
		{
			name:      "empty density ack",
			pkt:       NewPacket(ReplySetDensity, nil),
			wantCount: 1,
			wantType:  AnomalyLengthMismatch,
		},
		{
			name:      "device error",
			pkt:       NewPacket(ReplyError, []byte{0x01}),
			wantCount: 1,
			wantType:  AnomalyDeviceError,
		},
		{
			name:      "not supported",
			pkt:       NewPacket(ReplyNotSupported, []byte{0x00}),
			wantCount: 1,
			wantType:  AnomalyNotSupported,
		},
		{
			name:      "start exchange echo",
			pkt:       NewPacket(CmdStartExchange, []byte{0x00}),
			wantCount: 0,
		},
		{
			name:      "end print echo",
			pkt:       NewPacket(CmdEndPrint, []byte{0x01}),
			wantCount: 0,
		},
		{
			name:      "no-tag RFID reply",
			pkt:       NewPacket(ReplyRFID, []byte{0x00}),
			wantCount: 0,
		},
		{
			name:      "truncated RFID reply",
			pkt:       NewPacket(ReplyRFID, []byte{0x01, 0x02}),
			wantCount: 1,
			wantType:  AnomalyLengthMismatch,
		},
		{
			name:      "unknown opcode",
			pkt:       NewPacket(0x77, []byte{0x01}),
			wantCount: 1,
			wantType:  AnomalyUnknownOpcode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verrs := ValidatePacket(tt.pkt)
			if verrs == nil {
				t.Fatal("ValidatePacket returned nil slice")
			}
			if len(verrs) != tt.wantCount {
				t.Fatalf("anomaly count: got %d (%v), want %d", len(verrs), verrs, tt.wantCount)
			}
			if tt.wantCount > 0 && verrs[0].Type != tt.wantType {
				t.Errorf("anomaly type: got %d, want %d", verrs[0].Type, tt.wantType)
			}
		})
	}
}

func TestPacket_ErrorPredicates(t *testing.T) {
	if !NewPacket(ReplyError, []byte{0x01}).IsError() {
		t.Error("0xDB packet should report IsError")
	}
	if NewPacket(ReplyStatus, []byte{0, 0, 0, 0}).IsError() {
		t.Error("status packet should not report IsError")
	}
	if !NewPacket(ReplyNotSupported, []byte{0x00}).IsNotSupported() {
		t.Error("0x00 packet should report IsNotSupported")
	}
}

// ============================================================
// Formatting
// ============================================================

func TestFormatOpcode(t *testing.T) {
	tests := []struct {
		opcode uint8
		want   string
	}{
		{CmdHeartbeat, "HEARTBEAT"},
		{CmdGetStatus, "GET_STATUS"},
		{CmdPrintLine, "PRINT_LINE"},
		{ReplyStatus, "STATUS_REPLY"},
		{ReplyError, "DEVICE_ERROR"},
	}
	for _, tt := range tests {
		if got := FormatOpcode(tt.opcode); got != tt.want {
			t.Errorf("FormatOpcode(0x%02X) = %q, want %q", tt.opcode, got, tt.want)
		}
	}

	if got := FormatOpcode(0x77); got != "UNKNOWN" {
		t.Errorf("FormatOpcode(0x77) = %q, want UNKNOWN", got)
	}
}

func TestFormatBytes(t *testing.T) {
	got := FormatBytes([]byte{0x55, 0x0A, 0xFF})
	if !strings.Contains(got, "55") || !strings.Contains(got, "0A") || !strings.Contains(got, "FF") {
		t.Errorf("FormatBytes output missing hex pairs: %q", got)
	}
}

func TestFormatPacket_NotEmpty(t *testing.T) {
	pkts := []*Packet{
		NewHeartbeat(),
		NewPacket(ReplyStatus, []byte{0x00, 0x01, 0x10, 0x20}),
		NewPacket(ReplyError, []byte{0x01}),
		NewPacket(0x77, nil),
	}
	for _, p := range pkts {
		if FormatPacket(p) == "" {
			t.Errorf("FormatPacket returned empty string for opcode 0x%02X", p.Opcode())
		}
	}
}

// ============================================================
// Statistics
// ============================================================

func TestStatistics_Counters(t *testing.T) {
	s := NewStatistics()

	s.RecordSend(8)
	s.RecordSend(13)
	s.RecordSendFailure()
	s.RecordEnqueue(5)
	s.RecordInboundDrop()

	if s.FramesSent != 2 {
		t.Errorf("FramesSent: got %d, want 2", s.FramesSent)
	}
	if s.BytesSent != 21 {
		t.Errorf("BytesSent: got %d, want 21", s.BytesSent)
	}
	if s.SendFailures != 1 {
		t.Errorf("SendFailures: got %d, want 1", s.SendFailures)
	}
	if s.FramesEnqueued != 5 {
		t.Errorf("FramesEnqueued: got %d, want 5", s.FramesEnqueued)
	}
	if s.InboundDropped != 1 {
		t.Errorf("InboundDropped: got %d, want 1", s.InboundDropped)
	}
}

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()

	// Valid reply
	clean := NewPacket(ReplyStatus, []byte{0x00, 0x01, 0x00, 0x00})
	s.Update(clean, nil, ValidatePacket(clean))

	// Checksum failure from the decoder
	s.Update(nil, fmt.Errorf("frame: %w", ErrChecksumMismatch), nil)

	// Other decode failure
	s.Update(nil, errors.New("missing end marker"), nil)

	// Device error reply
	devErr := NewPacket(ReplyError, []byte{0x01})
	s.Update(devErr, nil, ValidatePacket(devErr))

	// Unknown opcode reply
	unknown := NewPacket(0x66, nil)
	s.Update(unknown, nil, ValidatePacket(unknown))

	if s.RepliesDecoded != 3 {
		t.Errorf("RepliesDecoded: got %d, want 3", s.RepliesDecoded)
	}
	if s.ValidReplies != 1 {
		t.Errorf("ValidReplies: got %d, want 1", s.ValidReplies)
	}
	if s.ChecksumErrors != 1 {
		t.Errorf("ChecksumErrors: got %d, want 1", s.ChecksumErrors)
	}
	if s.DecodeErrors != 1 {
		t.Errorf("DecodeErrors: got %d, want 1", s.DecodeErrors)
	}
	if s.DeviceErrors != 1 {
		t.Errorf("DeviceErrors: got %d, want 1", s.DeviceErrors)
	}
	if s.UnknownReplies != 1 {
		t.Errorf("UnknownReplies: got %d, want 1", s.UnknownReplies)
	}
}

func TestStatistics_StringAndReset(t *testing.T) {
	s := NewStatistics()
	s.RecordSend(8)
	s.Update(nil, errors.New("x"), nil)

	report := s.String()
	if !strings.Contains(report, "Frames Sent") || !strings.Contains(report, "Decode Errors") {
		t.Errorf("report missing expected lines:\n%s", report)
	}

	s.Reset()
	if s.FramesSent != 0 || s.DecodeErrors != 0 {
		t.Error("counters should be zero after Reset")
	}
}

// ============================================================
// Backoff
// ============================================================

func TestBackoff_GrowthAndCap(t *testing.T) {
	b := NewBackoff(10*time.Millisecond, 80*time.Millisecond)

	// Each Next() jitters ±20% around the current base, then doubles it.
	bases := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		80 * time.Millisecond,
		80 * time.Millisecond, // capped
	}
	for i, base := range bases {
		d := b.Next()
		lo := time.Duration(float64(base) * 0.79)
		hi := time.Duration(float64(base) * 1.21)
		if d < lo || d > hi {
			t.Errorf("Next() %d = %v, want within [%v, %v]", i, d, lo, hi)
		}
	}
}

func TestBackoff_Reset(t *testing.T) {
	b := NewBackoff(10*time.Millisecond, 80*time.Millisecond)
	b.Next()
	b.Next()
	b.Reset()

	if b.Current() != 10*time.Millisecond {
		t.Errorf("Current after Reset: got %v, want 10ms", b.Current())
	}
}

func TestBackoff_SleepCancelled(t *testing.T) {
	b := NewBackoff(10*time.Second, 10*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := b.Sleep(ctx)
	if err == nil {
		t.Error("Sleep with cancelled context should return an error")
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep did not return promptly on cancellation")
	}
}

// ============================================================
// Trace Capture
// ============================================================

func TestTrace_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewTraceWriter(&buf)

	out := MustEncodePacket(NewHeartbeat())
	in := []byte{0x55, 0x55, 0xDC}

	if err := w.Record(DirOut, out); err != nil {
		t.Fatalf("Record out failed: %v", err)
	}
	if err := w.Record(DirIn, in); err != nil {
		t.Fatalf("Record in failed: %v", err)
	}

	records, err := ReadTrace(&buf)
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("record count: got %d, want 2", len(records))
	}

	if records[0].Dir != DirOut || !bytes.Equal(records[0].Data, out) {
		t.Errorf("record 0 mismatch: dir=%d data=%X", records[0].Dir, records[0].Data)
	}
	if records[1].Dir != DirIn || !bytes.Equal(records[1].Data, in) {
		t.Errorf("record 1 mismatch: dir=%d data=%X", records[1].Dir, records[1].Data)
	}
	if records[0].At == 0 || records[0].Time().IsZero() {
		t.Error("record timestamp missing")
	}
}

func TestTrace_RecordCopiesData(t *testing.T) {
	var buf bytes.Buffer
	w := NewTraceWriter(&buf)

	data := []byte{0x01, 0x02}
	if err := w.Record(DirIn, data); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	data[0] = 0xFF

	records, err := ReadTrace(&buf)
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if records[0].Data[0] != 0x01 {
		t.Error("trace record aliases the caller's buffer")
	}
}

func TestReadTrace_Empty(t *testing.T) {
	records, err := ReadTrace(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("ReadTrace on empty stream failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("record count for empty stream: got %d, want 0", len(records))
	}
}

// ============================================================
// Helpers
// ============================================================

func intp(v int) *int { return &v }

// checkField compares an optional heartbeat field against an expected value,
// where nil means the variant does not carry the field.
func checkField(t *testing.T, name string, got *uint8, want *int) {
	t.Helper()
	if want == nil {
		if got != nil {
			t.Errorf("%s: got %d, want absent", name, *got)
		}
		return
	}
	if got == nil {
		t.Errorf("%s: got absent, want %d", name, *want)
		return
	}
	if int(*got) != *want {
		t.Errorf("%s: got 0x%02X, want 0x%02X", name, *got, *want)
	}
}
