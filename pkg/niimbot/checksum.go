// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The open-niim authors

package niimbot

// Checksum computes the XOR fold of the given payload: the XOR of every byte
// in order. The payload covered by a frame checksum is opcode, length and
// body, which is never empty; an empty input returns ErrEmptyPayload.
func Checksum(data []byte) (uint8, error) {
	if len(data) == 0 {
		return 0, ErrEmptyPayload
	}
	var sum uint8
	for _, b := range data {
		sum ^= b
	}
	return sum, nil
}
