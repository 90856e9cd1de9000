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
	"hash/crc32"

	"github.com/ZaparooProject/go-i2cboot/internal/frame"
)

// crcBlockSize is how many image bytes are read per CRC step.
const crcBlockSize = 256

// Validator checks stored images. All checks are reads only.
type Validator struct {
	flash Flash
	slots []Slot
}

// NewValidator creates a validator over slots in priority order.
func NewValidator(f Flash, slots ...Slot) *Validator {
	return &Validator{flash: f, slots: slots}
}

// IsMagicValid reports whether the slot's header carries HeaderMagic.
func (v *Validator) IsMagicValid(slot Slot) bool {
	h, err := ReadHeader(v.flash, slot)
	return err == nil && h.HasValidMagic()
}

// IsCRCValid reports whether the CRC-32 over header.Size bytes from the
// application base matches the header.
func (v *Validator) IsCRCValid(slot Slot) bool {
	h, err := ReadHeader(v.flash, slot)
	if err != nil {
		return false
	}
	return v.checkCRC(slot, h) == nil
}

// Check runs both checks on one slot and returns its header.
func (v *Validator) Check(slot Slot) (ImageHeader, error) {
	h, err := ReadHeader(v.flash, slot)
	if err != nil {
		return ImageHeader{}, err
	}
	if !h.HasValidMagic() {
		return h, &ValidationError{Slot: slot.Name, Err: ErrBadMagic}
	}
	if err := v.checkCRC(slot, h); err != nil {
		return h, err
	}
	return h, nil
}

// Validate returns the first slot that passes. When none does, the error
// of the highest priority slot is returned.
func (v *Validator) Validate() (Slot, ImageHeader, error) {
	if len(v.slots) == 0 {
		return Slot{}, ImageHeader{}, &ValidationError{Err: ErrNoValidSlot}
	}

	var first error
	for _, slot := range v.slots {
		h, err := v.Check(slot)
		if err == nil {
			debugf("slot %s valid: version %s, %d bytes", slot.Name, h.Version, h.Size)
			return slot, h, nil
		}
		debugf("slot %s rejected: %v", slot.Name, err)
		if first == nil {
			first = err
		}
		// read failures are not a reason to try the next slot
		if errors.Is(err, ErrFlashFault) {
			return Slot{}, ImageHeader{}, err
		}
	}
	return Slot{}, ImageHeader{}, first
}

func (v *Validator) checkCRC(slot Slot, h ImageHeader) error {
	if h.Size > uint64(slot.MaxAppSize()) {
		return &ValidationError{Slot: slot.Name, Err: ErrImageTooLarge}
	}

	buf := frame.GetBuffer(crcBlockSize)
	defer frame.PutBuffer(buf)

	var crc uint32
	addr := slot.AppAddr
	for remaining := uint32(h.Size); remaining > 0; {
		n := min(remaining, crcBlockSize)
		block := buf[:n]
		if err := readFlash(v.flash, block, addr); err != nil {
			return err
		}
		crc = crc32.Update(crc, crc32.IEEETable, block)
		addr += n
		remaining -= n
	}

	if crc != h.CRC32 {
		debugf("slot %s crc 0x%08X, header says 0x%08X", slot.Name, crc, h.CRC32)
		return &ValidationError{Slot: slot.Name, Err: ErrCRCMismatch}
	}
	return nil
}
