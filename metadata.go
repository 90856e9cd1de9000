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
	"bytes"
	"encoding/binary"
	"fmt"
)

// RecordFormat selects how the update-pending record is stored.
type RecordFormat int

const (
	// FormatStatusByte stores a single status byte
	FormatStatusByte RecordFormat = iota
	// FormatMetadataBlock stores a magic word plus device identity fields
	FormatMetadataBlock
)

func (f RecordFormat) String() string {
	switch f {
	case FormatStatusByte:
		return "status-byte"
	case FormatMetadataBlock:
		return "metadata-block"
	default:
		return "unknown"
	}
}

// Status byte values
const (
	StatusUpToDate byte = 0x97 // update applied, do not re-enter update mode
	StatusPending  byte = 0x00
)

// Metadata block magic values
const (
	MagicUpToDate uint32 = 0x4F4B4F4B
	MagicPending  uint32 = 0x55504454
)

// Metadata block layout
const (
	metaMagicOffset = 0
	metaGroupOffset = 4
	metaTypeOffset  = 8
	metaNameOffset  = 24
	typeTagLen      = 16
	nameLen         = 32

	// MetadataBlockSize is the packed size of the metadata block.
	MetadataBlockSize = metaNameOffset + nameLen
)

// Identity holds device identity fields that survive updates.
type Identity struct {
	TypeTag string
	Name    string
	GroupID uint32
}

// Record is the decoded update-pending record.
type Record struct {
	Identity Identity
	Pending  bool
}

// MetadataStore reads and writes the update-pending record. It never
// caches: every call goes to flash.
type MetadataStore struct {
	flash  Flash
	addr   uint32
	format RecordFormat
}

// NewMetadataStore creates a store for the record at addr.
func NewMetadataStore(f Flash, addr uint32, format RecordFormat) *MetadataStore {
	return &MetadataStore{flash: f, addr: addr, format: format}
}

// Format returns the record format in use.
func (s *MetadataStore) Format() RecordFormat {
	return s.format
}

func (s *MetadataStore) recordSize() int {
	if s.format == FormatMetadataBlock {
		return MetadataBlockSize
	}
	return 1
}

// Load reads and decodes the record.
func (s *MetadataStore) Load() (Record, error) {
	buf := make([]byte, s.recordSize())
	err := withSession(s.flash, func() error {
		return readFlash(s.flash, buf, s.addr)
	})
	if err != nil {
		return Record{Pending: true}, err
	}
	return s.decode(buf), nil
}

// NeedsUpdate reports whether the next boot must enter update mode. Any
// value other than the up-to-date sentinel counts as pending, so an
// erased or torn record never lets unvalidated code through. On error
// the result is true.
func (s *MetadataStore) NeedsUpdate() (bool, error) {
	rec, err := s.Load()
	if err != nil {
		return true, err
	}
	return rec.Pending, nil
}

// SetPending rewrites the record with the given pending flag, keeping the
// identity fields.
func (s *MetadataStore) SetPending(pending bool) error {
	return s.update(func(r *Record) {
		r.Pending = pending
	})
}

// SetIdentity rewrites the identity fields, keeping the pending flag.
// Identity is only stored by FormatMetadataBlock.
func (s *MetadataStore) SetIdentity(id Identity) error {
	if s.format != FormatMetadataBlock {
		return fmt.Errorf("%w: %s records carry no identity", ErrInvalidParameter, s.format)
	}
	if len(id.TypeTag) > typeTagLen || len(id.Name) > nameLen {
		return fmt.Errorf("%w: identity fields limited to %d/%d bytes", ErrInvalidParameter, typeTagLen, nameLen)
	}
	return s.update(func(r *Record) {
		r.Identity = id
	})
}

// update performs the read-modify-write cycle. The whole sector holding
// the record is read, patched in RAM, erased and programmed back, so any
// co-located data is rewritten rather than lost.
func (s *MetadataStore) update(mutate func(*Record)) error {
	return withSession(s.flash, func() error {
		base, size, err := SectorSpan(s.flash, s.addr, uint32(s.recordSize()))
		if err != nil {
			return err
		}

		sector := make([]byte, size)
		if err := readFlash(s.flash, sector, base); err != nil {
			return err
		}

		off := s.addr - base
		field := sector[off : off+uint32(s.recordSize())]
		rec := s.decode(field)
		mutate(&rec)
		s.encode(rec, field)

		if err := eraseFlash(s.flash, base, size); err != nil {
			return err
		}
		n := len(sector)
		for n > 0 && sector[n-1] == 0xFF {
			n--
		}
		if n == 0 {
			return nil
		}
		return programFlash(s.flash, sector[:n], base)
	})
}

func (s *MetadataStore) decode(buf []byte) Record {
	if s.format == FormatStatusByte {
		return Record{Pending: buf[0] != StatusUpToDate}
	}
	return Record{
		Pending: binary.LittleEndian.Uint32(buf[metaMagicOffset:]) != MagicUpToDate,
		Identity: Identity{
			GroupID: binary.LittleEndian.Uint32(buf[metaGroupOffset:]),
			TypeTag: decodeField(buf[metaTypeOffset : metaTypeOffset+typeTagLen]),
			Name:    decodeField(buf[metaNameOffset : metaNameOffset+nameLen]),
		},
	}
}

func (s *MetadataStore) encode(rec Record, buf []byte) {
	if s.format == FormatStatusByte {
		buf[0] = StatusUpToDate
		if rec.Pending {
			buf[0] = StatusPending
		}
		return
	}
	magic := MagicUpToDate
	if rec.Pending {
		magic = MagicPending
	}
	binary.LittleEndian.PutUint32(buf[metaMagicOffset:], magic)
	binary.LittleEndian.PutUint32(buf[metaGroupOffset:], rec.Identity.GroupID)
	encodeField(buf[metaTypeOffset:metaTypeOffset+typeTagLen], rec.Identity.TypeTag)
	encodeField(buf[metaNameOffset:metaNameOffset+nameLen], rec.Identity.Name)
}

// decodeField reads a NUL padded string. Erased (0xFF) bytes also end it.
func decodeField(b []byte) string {
	if i := bytes.IndexAny(b, "\x00\xff"); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func encodeField(dst []byte, s string) {
	clear(dst)
	copy(dst, s)
}
