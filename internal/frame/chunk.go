// go-i2cboot
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-i2cboot.
//
// go-i2cboot is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-i2cboot is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-i2cboot; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package frame

import (
	"errors"
	"fmt"
)

// Chunk errors
var (
	ErrChunkSize   = errors.New("chunk has wrong length")
	ErrPayloadSize = errors.New("payload exceeds chunk data size")
)

// Chunk is one numbered unit of a firmware image as sent on the bus.
type Chunk struct {
	Payload  []byte
	Sequence byte // 1-based
	Total    byte
}

// WireSize returns the number of bytes of one chunk on the wire.
func WireSize(dataSize int) int {
	return HeaderSize + dataSize
}

// Decode parses a received buffer. The payload aliases buf.
func Decode(buf []byte, dataSize int) (Chunk, error) {
	if len(buf) != WireSize(dataSize) {
		return Chunk{}, fmt.Errorf("%w: got %d bytes, want %d", ErrChunkSize, len(buf), WireSize(dataSize))
	}
	return Chunk{
		Sequence: buf[SequenceOffset],
		Total:    buf[TotalOffset],
		Payload:  buf[HeaderSize:],
	}, nil
}

// Encode returns the wire form of the chunk. Payloads shorter than
// dataSize are padded with ErasedByte.
func (c Chunk) Encode(dataSize int) ([]byte, error) {
	if len(c.Payload) > dataSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadSize, len(c.Payload), dataSize)
	}
	buf := make([]byte, WireSize(dataSize))
	buf[SequenceOffset] = c.Sequence
	buf[TotalOffset] = c.Total
	n := copy(buf[HeaderSize:], c.Payload)
	for i := HeaderSize + n; i < len(buf); i++ {
		buf[i] = ErasedByte
	}
	return buf, nil
}

// Offset returns the byte offset of a chunk's payload from the start of
// the image (the header address).
func Offset(sequence byte, dataSize int) uint32 {
	if sequence == 0 {
		return 0
	}
	return uint32(sequence-1) * uint32(dataSize)
}

// IsLast reports whether the chunk completes the transfer.
func (c Chunk) IsLast() bool {
	return c.Sequence == c.Total
}
