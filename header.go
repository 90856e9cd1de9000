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
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// HeaderMagic marks a header describing a complete, committed image.
const HeaderMagic uint32 = 0xDEADBEEF

// HeaderSize is the packed on-flash size of ImageHeader.
const HeaderSize = 22

// Packed little-endian field offsets
const (
	magicOffset = 0
	sizeOffset  = 4
	crcOffset   = 12
	majorOffset = 16
	minorOffset = 18
	fixOffset   = 20
)

// Version is the application's semantic version.
type Version struct {
	Major uint16
	Minor uint16
	Fix   uint16
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Fix)
}

// ParseVersion parses "major.minor.fix".
func ParseVersion(s string) (Version, error) {
	var v Version
	if _, err := fmt.Sscanf(s, "%d.%d.%d", &v.Major, &v.Minor, &v.Fix); err != nil {
		return Version{}, fmt.Errorf("%w: version %q: %w", ErrInvalidParameter, s, err)
	}
	return v, nil
}

// ImageHeader describes the application image stored right after it.
type ImageHeader struct {
	Size    uint64
	Magic   uint32
	CRC32   uint32
	Version Version
}

// NewImageHeader builds a committed header for app.
func NewImageHeader(app []byte, version Version) ImageHeader {
	return ImageHeader{
		Magic:   HeaderMagic,
		Size:    uint64(len(app)),
		CRC32:   Checksum(app),
		Version: version,
	}
}

// Checksum computes the ANSI CRC-32 (IEEE 802.3 polynomial, reflected,
// initial and final XOR 0xFFFFFFFF) used in image headers.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// HasValidMagic reports whether the header carries HeaderMagic.
func (h ImageHeader) HasValidMagic() bool {
	return h.Magic == HeaderMagic
}

// MarshalBinary encodes the header in its packed on-flash form.
func (h ImageHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[magicOffset:], h.Magic)
	binary.LittleEndian.PutUint64(buf[sizeOffset:], h.Size)
	binary.LittleEndian.PutUint32(buf[crcOffset:], h.CRC32)
	binary.LittleEndian.PutUint16(buf[majorOffset:], h.Version.Major)
	binary.LittleEndian.PutUint16(buf[minorOffset:], h.Version.Minor)
	binary.LittleEndian.PutUint16(buf[fixOffset:], h.Version.Fix)
	return buf, nil
}

// UnmarshalBinary decodes a packed header. Extra trailing bytes are
// ignored.
func (h *ImageHeader) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: header needs %d bytes, got %d", ErrInvalidParameter, HeaderSize, len(data))
	}
	h.Magic = binary.LittleEndian.Uint32(data[magicOffset:])
	h.Size = binary.LittleEndian.Uint64(data[sizeOffset:])
	h.CRC32 = binary.LittleEndian.Uint32(data[crcOffset:])
	h.Version = Version{
		Major: binary.LittleEndian.Uint16(data[majorOffset:]),
		Minor: binary.LittleEndian.Uint16(data[minorOffset:]),
		Fix:   binary.LittleEndian.Uint16(data[fixOffset:]),
	}
	return nil
}

// ReadHeader reads the header of slot into an owned value.
func ReadHeader(f Flash, slot Slot) (ImageHeader, error) {
	buf := make([]byte, HeaderSize)
	if err := readFlash(f, buf, slot.HeaderAddr); err != nil {
		return ImageHeader{}, err
	}
	var h ImageHeader
	if err := h.UnmarshalBinary(buf); err != nil {
		return ImageHeader{}, err
	}
	return h, nil
}

// VectorTable holds the first two words of a Cortex-M vector table.
type VectorTable struct {
	InitialSP   uint32
	ResetVector uint32
}

// ReadVectorTable reads the application's initial stack pointer and reset
// vector from the start of its image.
func ReadVectorTable(f Flash, appAddr uint32) (VectorTable, error) {
	var buf [8]byte
	if err := readFlash(f, buf[:], appAddr); err != nil {
		return VectorTable{}, err
	}
	return VectorTable{
		InitialSP:   binary.LittleEndian.Uint32(buf[0:]),
		ResetVector: binary.LittleEndian.Uint32(buf[4:]),
	}, nil
}
