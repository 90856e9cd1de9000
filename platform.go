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

// ResetCause classifies the last reset.
type ResetCause int

const (
	// ResetOther is any cause not listed below
	ResetOther ResetCause = iota
	// ResetPowerOn is a power-on or brown-out reset
	ResetPowerOn
	// ResetPin is an external reset pin
	ResetPin
	// ResetSoftware is a reset requested by code, e.g. by the application
	// before handing over to the bootloader for an update
	ResetSoftware
	// ResetWatchdog is an independent or window watchdog reset
	ResetWatchdog
)

func (c ResetCause) String() string {
	switch c {
	case ResetPowerOn:
		return "power-on"
	case ResetPin:
		return "pin"
	case ResetSoftware:
		return "software"
	case ResetWatchdog:
		return "watchdog"
	default:
		return "other"
	}
}

// Platform is the CPU-level collaborator.
type Platform interface {
	// ResetCause reports why the CPU last reset
	ResetCause() ResetCause

	// UniqueID returns the device's hardware identifier
	UniqueID() uint32

	// SystemReset resets the CPU. On hardware it does not return.
	SystemReset()

	// StartApplication relocates the vector table to addr, loads the
	// initial stack pointer and branches to the reset vector. On hardware
	// it does not return.
	StartApplication(addr uint32)
}
