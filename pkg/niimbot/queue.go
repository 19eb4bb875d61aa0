// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The open-niim authors

package niimbot

// TxQueue is the outbound transmission queue: a strict FIFO of encoded
// frames awaiting dispatch. Insertion order is send order; nothing is
// reordered, deduplicated or dropped except by consumption. Capacity is
// bounded only by memory.
//
// The queue has no internal locking. Per the session's concurrency model it
// is owned by a single control context; the receive path never touches it.
type TxQueue struct {
	frames [][]byte
}

// NewTxQueue creates an empty transmission queue.
func NewTxQueue() *TxQueue {
	return &TxQueue{}
}

// Enqueue appends a frame to the back of the queue.
func (q *TxQueue) Enqueue(frame []byte) {
	q.frames = append(q.frames, frame)
}

// Next removes and returns the frame at the front of the queue. The second
// return value is false when the queue is empty; emptiness is a state-machine
// signal, not an error.
func (q *TxQueue) Next() ([]byte, bool) {
	if len(q.frames) == 0 {
		return nil, false
	}
	frame := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	return frame, true
}

// Len returns the number of pending frames.
func (q *TxQueue) Len() int {
	return len(q.frames)
}

// Reset discards all pending frames.
func (q *TxQueue) Reset() {
	q.frames = nil
}
