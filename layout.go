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
	"fmt"
)

// Range is a half-open address range [Start, End).
type Range struct {
	Start uint32
	End   uint32
}

// Len returns the size of the range.
func (r Range) Len() uint32 {
	return r.End - r.Start
}

// Contains reports whether addr lies inside r.
func (r Range) Contains(addr uint32) bool {
	return addr >= r.Start && addr < r.End
}

// Overlaps reports whether r and o share at least one byte.
func (r Range) Overlaps(o Range) bool {
	return r.Start < o.End && o.Start < r.End
}

func (r Range) String() string {
	return fmt.Sprintf("0x%08X-0x%08X", r.Start, r.End)
}

// Slot is one header+image pair. The header sits at HeaderAddr, the
// application's vector table at AppAddr, and the image may grow up to
// Limit (exclusive).
type Slot struct {
	Name       string
	HeaderAddr uint32
	AppAddr    uint32
	Limit      uint32
}

// HeaderRegion returns the range reserved for the image header.
func (s Slot) HeaderRegion() Range {
	return Range{Start: s.HeaderAddr, End: s.AppAddr}
}

// AppRegion returns the range the application image may occupy.
func (s Slot) AppRegion() Range {
	return Range{Start: s.AppAddr, End: s.Limit}
}

// Region returns the full slot, header included.
func (s Slot) Region() Range {
	return Range{Start: s.HeaderAddr, End: s.Limit}
}

// MaxTransferSize is the largest number of bytes a transfer may write,
// counted from the header address.
func (s Slot) MaxTransferSize() uint32 {
	return s.Limit - s.HeaderAddr
}

// MaxAppSize is the largest application image the slot can hold.
func (s Slot) MaxAppSize() uint32 {
	return s.Limit - s.AppAddr
}

// Layout holds the board's fixed flash map.
type Layout struct {
	// Slots lists image slots in boot priority order. Slots[0] receives
	// transfers.
	Slots []Slot
	// FlashBase is the first flash address; the bootloader lives in
	// [FlashBase, BootloaderEnd).
	FlashBase     uint32
	BootloaderEnd uint32
	// StatusAddr holds the update-pending record.
	StatusAddr uint32
	// FlashEnd is one past the last usable flash address.
	FlashEnd uint32
}

// DefaultLayout returns the single-slot map of a 128 KiB STM32L4 part
// with 2 KiB pages.
func DefaultLayout() Layout {
	return Layout{
		FlashBase:     0x08000000,
		BootloaderEnd: 0x08009000,
		Slots: []Slot{{
			Name:       "primary",
			HeaderAddr: 0x08009000,
			AppAddr:    0x08009400,
			Limit:      0x0801F800,
		}},
		StatusAddr: 0x0801FF00,
		FlashEnd:   0x08020000,
	}
}

// DualBankLayout returns a 256 KiB map with an update slot tried first and
// a factory slot used as fallback.
func DualBankLayout() Layout {
	return Layout{
		FlashBase:     0x08000000,
		BootloaderEnd: 0x08009000,
		Slots: []Slot{
			{
				Name:       "update",
				HeaderAddr: 0x08020000,
				AppAddr:    0x08020400,
				Limit:      0x0803F800,
			},
			{
				Name:       "factory",
				HeaderAddr: 0x08009000,
				AppAddr:    0x08009400,
				Limit:      0x08020000,
			},
		},
		StatusAddr: 0x0803FF00,
		FlashEnd:   0x08040000,
	}
}

// Primary returns the slot that receives transfers.
func (l Layout) Primary() Slot {
	if len(l.Slots) == 0 {
		return Slot{}
	}
	return l.Slots[0]
}

// StatusSector returns the sector holding the update-pending record.
func (l Layout) StatusSector(f Flash) (Range, error) {
	start, size, err := SectorSpan(f, l.StatusAddr, 1)
	if err != nil {
		return Range{}, err
	}
	return Range{Start: start, End: start + size}, nil
}

// Validate checks that the regions are ordered, inside flash, do not
// overlap, and that every range the bootloader erases is sector aligned.
func (l Layout) Validate(f Flash) error {
	if len(l.Slots) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidLayout, ErrNoValidSlot)
	}
	flashRange := Range{Start: l.BootloaderEnd, End: l.FlashEnd}
	if l.FlashBase > l.BootloaderEnd || l.BootloaderEnd >= l.FlashEnd {
		return fmt.Errorf("%w: bootloader 0x%08X-0x%08X outside flash end 0x%08X",
			ErrInvalidLayout, l.FlashBase, l.BootloaderEnd, l.FlashEnd)
	}

	status, err := l.StatusSector(f)
	if err != nil {
		return fmt.Errorf("%w: status record: %w", ErrInvalidLayout, err)
	}
	if status.Start < flashRange.Start || status.End > flashRange.End {
		return fmt.Errorf("%w: status sector %s outside %s", ErrInvalidLayout, status, flashRange)
	}

	for i, s := range l.Slots {
		if s.AppAddr < s.HeaderAddr+HeaderSize || s.Limit <= s.AppAddr {
			return fmt.Errorf("%w: slot %s regions out of order", ErrInvalidLayout, s.Name)
		}
		if s.HeaderAddr < flashRange.Start || s.Limit > flashRange.End {
			return fmt.Errorf("%w: slot %s %s outside %s", ErrInvalidLayout, s.Name, s.Region(), flashRange)
		}
		if base, err := SectorBase(f, s.HeaderAddr); err != nil || base != s.HeaderAddr {
			return fmt.Errorf("%w: slot %s header 0x%08X not sector aligned", ErrInvalidLayout, s.Name, s.HeaderAddr)
		}
		if s.Limit < l.FlashEnd {
			if base, err := SectorBase(f, s.Limit); err != nil || base != s.Limit {
				return fmt.Errorf("%w: slot %s limit 0x%08X not sector aligned", ErrInvalidLayout, s.Name, s.Limit)
			}
		}
		if s.Region().Overlaps(status) {
			return fmt.Errorf("%w: slot %s %s overlaps status sector %s", ErrInvalidLayout, s.Name, s.Region(), status)
		}
		for _, o := range l.Slots[i+1:] {
			if s.Region().Overlaps(o.Region()) {
				return fmt.Errorf("%w: slots %s and %s overlap", ErrInvalidLayout, s.Name, o.Name)
			}
		}
	}
	return nil
}
