// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The open-niim authors

package cmd

import (
	"fmt"
	"time"

	"github.com/open-niim/niimctl/pkg/niimbot"
)

// replyReader decodes inbound frames on a single goroutine so one-shot
// commands can wait for a specific reply without racing over the stream.
type replyReader struct {
	packets chan *niimbot.Packet
	errs    chan error
}

func newReplyReader(conn Connection) *replyReader {
	r := &replyReader{
		packets: make(chan *niimbot.Packet, 16),
		errs:    make(chan error, 1),
	}

	go func() {
		decoder := niimbot.NewDecoder()
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				r.errs <- err
				return
			}

			for i := 0; i < n; i++ {
				packet, decodeErr := decoder.DecodeByte(buf[i])
				if decodeErr != nil {
					// Ignore decode errors, the decoder resyncs itself
					continue
				}
				if packet != nil {
					select {
					case r.packets <- packet:
					default:
						// Drop when nobody is draining
					}
				}
			}
		}
	}()

	return r
}

// awaitAny returns the next reply of any opcode, or nil after the timeout.
func (r *replyReader) awaitAny(timeout time.Duration) (*niimbot.Packet, error) {
	select {
	case packet := <-r.packets:
		return packet, nil
	case err := <-r.errs:
		return nil, err
	case <-time.After(timeout):
		return nil, nil
	}
}

// await blocks until a reply with the wanted opcode arrives. Error replies
// from the printer abort the wait, other opcodes are skipped.
func (r *replyReader) await(opcode uint8, timeout time.Duration) (*niimbot.Packet, error) {
	deadline := time.After(timeout)
	for {
		select {
		case packet := <-r.packets:
			if packet.IsError() {
				return nil, fmt.Errorf("printer error: body %s", niimbot.FormatBytes(packet.Body()))
			}
			if packet.Opcode() != opcode {
				continue
			}
			return packet, nil

		case err := <-r.errs:
			return nil, err

		case <-deadline:
			return nil, fmt.Errorf("no reply within %v", timeout)
		}
	}
}
