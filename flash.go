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
	"errors"
	"fmt"
)

// Flash is the persistent byte-addressable store the bootloader owns.
// Erase and Program must be bracketed by Init and Deinit. Read is always
// safe.
type Flash interface {
	// Init opens a flash session
	Init() error

	// Deinit closes the flash session
	Deinit() error

	// Erase erases length bytes at addr. Both must be sector aligned for
	// the sectors they cover.
	Erase(addr, length uint32) error

	// Program writes buf at addr. The destination must be erased.
	Program(buf []byte, addr uint32) error

	// Read copies len(buf) bytes from addr into buf
	Read(buf []byte, addr uint32) error

	// SectorSize returns the erase granularity of the sector containing
	// addr, or 0 if addr is not backed by flash
	SectorSize(addr uint32) uint32
}

// SectorBase rounds addr down to the start of its sector.
func SectorBase(f Flash, addr uint32) (uint32, error) {
	size := f.SectorSize(addr)
	if size == 0 {
		return 0, &FlashError{Op: "sector", Addr: addr, Err: ErrOutOfRange}
	}
	return addr - addr%size, nil
}

// SectorSpan returns the smallest sector-aligned range covering
// [addr, addr+length). Sector sizes are looked up one sector at a time,
// so regions with mixed sector sizes are handled.
func SectorSpan(f Flash, addr, length uint32) (start, size uint32, err error) {
	start, err = SectorBase(f, addr)
	if err != nil {
		return 0, 0, err
	}
	end := uint64(addr) + uint64(length)
	cur := uint64(start)
	for cur < end {
		s := f.SectorSize(uint32(cur))
		if s == 0 {
			return 0, 0, &FlashError{Op: "sector", Addr: uint32(cur), Err: ErrOutOfRange}
		}
		cur += uint64(s)
	}
	return start, uint32(cur - uint64(start)), nil
}

// withSession runs fn inside an Init/Deinit pair. Deinit always runs.
func withSession(f Flash, fn func() error) (err error) {
	if err := f.Init(); err != nil {
		return &FlashError{Op: "init", Err: err}
	}
	defer func() {
		if derr := f.Deinit(); derr != nil {
			err = errors.Join(err, &FlashError{Op: "deinit", Err: derr})
		}
	}()
	return fn()
}

func eraseFlash(f Flash, addr, length uint32) error {
	debugf("erase 0x%08X (+%d)", addr, length)
	if err := checkAligned(f, addr, length); err != nil {
		return err
	}
	if err := f.Erase(addr, length); err != nil {
		return &FlashError{Op: "erase", Addr: addr, Len: length, Err: err}
	}
	return nil
}

func programFlash(f Flash, buf []byte, addr uint32) error {
	if err := f.Program(buf, addr); err != nil {
		return &FlashError{Op: "program", Addr: addr, Len: uint32(len(buf)), Err: err}
	}
	return nil
}

func readFlash(f Flash, buf []byte, addr uint32) error {
	if err := f.Read(buf, addr); err != nil {
		return &FlashError{Op: "read", Addr: addr, Len: uint32(len(buf)), Err: err}
	}
	return nil
}

// checkAligned reports ErrNotAligned unless [addr, addr+length) starts and
// ends on sector boundaries.
func checkAligned(f Flash, addr, length uint32) error {
	start, size, err := SectorSpan(f, addr, length)
	if err != nil {
		return err
	}
	if start != addr || size != length {
		return &FlashError{
			Op:   "erase",
			Addr: addr,
			Len:  length,
			Err:  fmt.Errorf("%w: covering span is 0x%08X (+%d)", ErrNotAligned, start, size),
		}
	}
	return nil
}
