// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The open-niim authors

package niimbot

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks link traffic and error rates. It has no internal
// locking: a Statistics value is owned by a single control context (the
// session loop, or a monitor goroutine). The session exposes snapshot copies
// for cross-goroutine readers.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Outbound counters
	FramesSent     uint64
	BytesSent      uint64
	FramesEnqueued uint64
	SendFailures   uint64

	// Inbound counters
	RepliesDecoded   uint64
	ValidReplies     uint64
	DecodeErrors     uint64
	ChecksumErrors   uint64
	DeviceErrors     uint64
	UnknownReplies   uint64
	MalformedReplies uint64
	InboundDropped   uint64

	// Rates (calculated)
	SendRate  float64 // frames/sec
	ReplyRate float64 // replies/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// RecordSend records a successfully transmitted frame.
func (s *Statistics) RecordSend(frameLen int) {
	s.FramesSent++
	s.BytesSent += uint64(frameLen)
	s.LastUpdateTime = time.Now()
}

// RecordSendFailure records a transport send failure.
func (s *Statistics) RecordSendFailure() {
	s.SendFailures++
	s.LastUpdateTime = time.Now()
}

// RecordEnqueue records frames inserted into the transmission queue.
func (s *Statistics) RecordEnqueue(n int) {
	s.FramesEnqueued += uint64(n)
}

// RecordInboundDrop records an inbound chunk dropped on channel overflow.
func (s *Statistics) RecordInboundDrop() {
	s.InboundDropped++
}

// Update updates inbound statistics for a decoded packet and its errors.
func (s *Statistics) Update(packet *Packet, decodeErr error, validationErrors []ValidationError) {
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrChecksumMismatch) {
			s.ChecksumErrors++
		} else {
			s.DecodeErrors++
		}
		return
	}

	s.RepliesDecoded++

	if len(validationErrors) == 0 {
		s.ValidReplies++
		return
	}
	for _, err := range validationErrors {
		switch err.Type {
		case AnomalyDeviceError, AnomalyNotSupported:
			s.DeviceErrors++
		case AnomalyUnknownOpcode:
			s.UnknownReplies++
		case AnomalyLengthMismatch:
			s.MalformedReplies++
		}
	}
}

// CalculateRates calculates send and reply rates.
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.SendRate = float64(s.FramesSent) / elapsed
		s.ReplyRate = float64(s.RepliesDecoded) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Link Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Frames Sent:     %8d (%d bytes)\n", s.FramesSent, s.BytesSent)
	result += fmt.Sprintf("Frames Enqueued: %8d\n", s.FramesEnqueued)
	if s.SendFailures > 0 {
		result += fmt.Sprintf("Send Failures:   %8d\n", s.SendFailures)
	}
	result += fmt.Sprintf("Replies Decoded: %8d\n", s.RepliesDecoded)
	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d\n", s.ChecksumErrors)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
	}
	if s.DeviceErrors > 0 {
		result += fmt.Sprintf("Device Errors:   %8d\n", s.DeviceErrors)
	}
	if s.UnknownReplies > 0 {
		result += fmt.Sprintf("Unknown Replies: %8d\n", s.UnknownReplies)
	}
	if s.MalformedReplies > 0 {
		result += fmt.Sprintf("Malformed:       %8d\n", s.MalformedReplies)
	}
	if s.InboundDropped > 0 {
		result += fmt.Sprintf("Inbound Dropped: %8d\n", s.InboundDropped)
	}
	result += fmt.Sprintf("Send Rate:       %8.1f frames/sec\n", s.SendRate)
	result += fmt.Sprintf("Reply Rate:      %8.1f replies/sec\n", s.ReplyRate)
	result += "===================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	now := time.Now()
	*s = Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}
