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

// Package firmware prepares application images for transfer: it loads raw
// or Intel HEX files, prepends the image header and splits the result into
// bus chunks.
package firmware

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	i2cboot "github.com/ZaparooProject/go-i2cboot"
	"github.com/ZaparooProject/go-i2cboot/internal/frame"
	"github.com/marcinbor85/gohex"
)

// Image errors
var (
	ErrEmptyImage    = errors.New("firmware image is empty")
	ErrTooManyChunks = errors.New("firmware image needs too many chunks")
)

// Load reads an application from a .hex file or a raw binary. For HEX
// files the returned base is the lowest address in the file; for raw
// binaries it is 0.
func Load(path string) (app []byte, base uint32, err error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the operator
	if err != nil {
		return nil, 0, fmt.Errorf("open firmware: %w", err)
	}
	defer func() { _ = f.Close() }()

	if strings.EqualFold(filepath.Ext(path), ".hex") {
		return LoadHex(f)
	}
	app, err = io.ReadAll(f)
	if err != nil {
		return nil, 0, fmt.Errorf("read firmware: %w", err)
	}
	if len(app) == 0 {
		return nil, 0, ErrEmptyImage
	}
	return app, 0, nil
}

// LoadHex parses Intel HEX and flattens it into one binary. Gaps between
// segments are filled with the erased value.
func LoadHex(r io.Reader) (app []byte, base uint32, err error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, 0, fmt.Errorf("parse intel hex: %w", err)
	}

	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, 0, ErrEmptyImage
	}
	base = segments[0].Address
	end := base
	for _, s := range segments {
		base = min(base, s.Address)
		end = max(end, s.Address+uint32(len(s.Data)))
	}
	return mem.ToBinary(base, end-base, frame.ErasedByte), base, nil
}

// Build lays out header, padding and application exactly as the bootloader
// stores them from the slot's header address.
func Build(app []byte, version i2cboot.Version, slot i2cboot.Slot) ([]byte, i2cboot.ImageHeader, error) {
	if len(app) == 0 {
		return nil, i2cboot.ImageHeader{}, ErrEmptyImage
	}
	if uint64(len(app)) > uint64(slot.MaxAppSize()) {
		return nil, i2cboot.ImageHeader{}, fmt.Errorf("%w: %d bytes, slot %s holds %d",
			i2cboot.ErrImageTooLarge, len(app), slot.Name, slot.MaxAppSize())
	}

	header := i2cboot.NewImageHeader(app, version)
	raw, err := header.MarshalBinary()
	if err != nil {
		return nil, i2cboot.ImageHeader{}, err
	}

	gap := int(slot.AppAddr - slot.HeaderAddr)
	image := make([]byte, gap+len(app))
	copy(image, raw)
	for i := len(raw); i < gap; i++ {
		image[i] = frame.ErasedByte
	}
	copy(image[gap:], app)
	return image, header, nil
}

// Chunks splits a built image into encoded chunks of dataSize payload
// bytes. The last chunk is padded with the erased value.
func Chunks(image []byte, dataSize int) ([][]byte, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	if dataSize <= 0 {
		return nil, fmt.Errorf("%w: chunk data size %d", i2cboot.ErrInvalidParameter, dataSize)
	}
	count := (len(image) + dataSize - 1) / dataSize
	if count > frame.MaxChunks {
		return nil, fmt.Errorf("%w: %d chunks of %d bytes, limit %d", ErrTooManyChunks, count, dataSize, frame.MaxChunks)
	}

	chunks := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		end := min((i+1)*dataSize, len(image))
		c := frame.Chunk{
			Sequence: byte(i + 1),
			Total:    byte(count),
			Payload:  image[i*dataSize : end],
		}
		wire, err := c.Encode(dataSize)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, wire)
	}
	return chunks, nil
}

// WriteHex writes a built image as Intel HEX placed at addr, for
// programming the slot with an external flasher.
func WriteHex(w io.Writer, image []byte, addr uint32) error {
	mem := gohex.NewMemory()
	if err := mem.AddBinary(addr, image); err != nil {
		return fmt.Errorf("add binary: %w", err)
	}
	if err := mem.DumpIntelHex(w, 16); err != nil {
		return fmt.Errorf("dump intel hex: %w", err)
	}
	return nil
}
