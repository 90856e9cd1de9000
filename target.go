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

package i2cboot

import (
	"context"

	"periph.io/x/conn/v3/physic"
)

// BusEvent is what the bus peripheral observed while in target mode.
type BusEvent int

const (
	// EventNone means nothing happened before the wait returned
	EventNone BusEvent = iota
	// EventReadAddressed means a controller wants to read from us
	EventReadAddressed
	// EventWriteGeneral is a write to the general call address
	EventWriteGeneral
	// EventWriteAddressed is a write to our claimed address
	EventWriteAddressed
)

func (e BusEvent) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventReadAddressed:
		return "read-addressed"
	case EventWriteGeneral:
		return "write-general"
	case EventWriteAddressed:
		return "write-addressed"
	default:
		return "unknown"
	}
}

// Target is the bus peripheral in target (listening) role.
type Target interface {
	// SetAddress sets the 7-bit address the peripheral answers to
	SetAddress(addr uint16) error

	// SetFrequency sets the bus clock the peripheral expects
	SetFrequency(f physic.Frequency) error

	// Receive blocks until the next bus event or until ctx ends
	Receive(ctx context.Context) (BusEvent, error)

	// Read reads the data of the current write transaction into buf
	Read(buf []byte) (int, error)

	// Write answers the current read transaction
	Write(buf []byte) error
}
