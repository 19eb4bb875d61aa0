// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The open-niim authors

package niimbot

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Trace direction markers
const (
	DirOut uint8 = 0 // host → printer
	DirIn  uint8 = 1 // printer → host
)

// TraceRecord is one captured chunk of link traffic. Outbound records hold a
// complete frame; inbound records hold raw transport chunks as they arrived,
// so a replayed trace exercises the decoder exactly like the live link did.
type TraceRecord struct {
	Dir  uint8  `cbor:"1,keyasint"`
	At   int64  `cbor:"2,keyasint"` // unix microseconds
	Data []byte `cbor:"3,keyasint"`
}

// Time returns the capture timestamp.
func (r TraceRecord) Time() time.Time {
	return time.UnixMicro(r.At)
}

// TraceWriter captures link traffic as a stream of CBOR records. Safe for
// concurrent use.
type TraceWriter struct {
	mu  sync.Mutex
	enc *cbor.Encoder
}

// NewTraceWriter creates a trace writer emitting CBOR records to w.
func NewTraceWriter(w io.Writer) *TraceWriter {
	return &TraceWriter{enc: cbor.NewEncoder(w)}
}

// Record appends one traffic record. The data is copied.
func (t *TraceWriter) Record(dir uint8, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enc.Encode(TraceRecord{Dir: dir, At: time.Now().UnixMicro(), Data: buf}); err != nil {
		return fmt.Errorf("trace record: %w", err)
	}
	return nil
}

// ReadTrace decodes all records from a captured trace stream.
func ReadTrace(r io.Reader) ([]TraceRecord, error) {
	dec := cbor.NewDecoder(r)
	var records []TraceRecord
	for {
		var rec TraceRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return records, fmt.Errorf("trace decode at record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
}
