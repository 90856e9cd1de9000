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

// Package frame provides the chunk wire format shared by the bootloader
// receiver and the host-side sender
package frame

// Wire layout: [sequence:1][total:1][payload:dataSize]
const (
	SequenceOffset = 0
	TotalOffset    = 1
	HeaderSize     = 2
)

// Payload sizing
const (
	DefaultDataSize = 2048 // Payload bytes per chunk agreed by both ends
	MaxChunks       = 255  // Sequence and total are single bytes
)

// AckByte answers a read addressed to a listening bootloader.
// Hosts use it as a liveness probe.
const AckByte = 0x79

// ErasedByte is the value of an erased flash cell and the padding used
// for partial chunks.
const ErasedByte = 0xFF
