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

package firmware

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	i2cboot "github.com/ZaparooProject/go-i2cboot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApp(n int) []byte {
	app := make([]byte, n)
	for i := range app {
		app[i] = byte(i % 251)
	}
	return app
}

func TestBuild(t *testing.T) {
	t.Parallel()

	slot := i2cboot.DefaultLayout().Primary()
	app := testApp(1000)
	image, header, err := Build(app, i2cboot.Version{Major: 1, Minor: 4}, slot)
	require.NoError(t, err)

	gap := int(slot.AppAddr - slot.HeaderAddr)
	require.Len(t, image, gap+len(app))
	assert.Equal(t, app, image[gap:])
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, gap-i2cboot.HeaderSize), image[i2cboot.HeaderSize:gap])

	var got i2cboot.ImageHeader
	require.NoError(t, got.UnmarshalBinary(image))
	assert.Equal(t, header, got)
	assert.True(t, got.HasValidMagic())
	assert.Equal(t, i2cboot.Checksum(app), got.CRC32)
	assert.Equal(t, uint64(1000), got.Size)
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()

	slot := i2cboot.DefaultLayout().Primary()
	_, _, err := Build(nil, i2cboot.Version{}, slot)
	require.ErrorIs(t, err, ErrEmptyImage)

	_, _, err = Build(make([]byte, slot.MaxAppSize()+1), i2cboot.Version{}, slot)
	require.ErrorIs(t, err, i2cboot.ErrImageTooLarge)
}

func TestChunks(t *testing.T) {
	t.Parallel()

	image := testApp(2*64 + 10)
	chunks, err := Chunks(image, 64)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	for i, c := range chunks {
		require.Len(t, c, 2+64)
		assert.Equal(t, byte(i+1), c[0])
		assert.Equal(t, byte(3), c[1])
	}
	assert.Equal(t, image[64:128], chunks[1][2:])
	assert.Equal(t, image[128:], chunks[2][2:12])
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 54), chunks[2][12:])
}

func TestChunks_Errors(t *testing.T) {
	t.Parallel()

	_, err := Chunks(nil, 64)
	require.ErrorIs(t, err, ErrEmptyImage)

	_, err = Chunks(testApp(10), 0)
	require.ErrorIs(t, err, i2cboot.ErrInvalidParameter)

	_, err = Chunks(testApp(256*4), 4)
	require.ErrorIs(t, err, ErrTooManyChunks)

	chunks, err := Chunks(testApp(255*4), 4)
	require.NoError(t, err)
	assert.Len(t, chunks, 255)
}

func TestHexRoundTrip(t *testing.T) {
	t.Parallel()

	app := testApp(700)
	var buf bytes.Buffer
	require.NoError(t, WriteHex(&buf, app, 0x08009400))

	got, base, err := LoadHex(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x08009400), base)
	assert.Equal(t, app, got)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	app := testApp(300)

	binPath := filepath.Join(dir, "app.bin")
	require.NoError(t, os.WriteFile(binPath, app, 0o600))
	got, base, err := Load(binPath)
	require.NoError(t, err)
	assert.Equal(t, app, got)
	assert.Zero(t, base)

	var hex bytes.Buffer
	require.NoError(t, WriteHex(&hex, app, 0x08009400))
	hexPath := filepath.Join(dir, "app.HEX")
	require.NoError(t, os.WriteFile(hexPath, hex.Bytes(), 0o600))
	got, base, err = Load(hexPath)
	require.NoError(t, err)
	assert.Equal(t, app, got)
	assert.Equal(t, uint32(0x08009400), base)

	emptyPath := filepath.Join(dir, "empty.bin")
	require.NoError(t, os.WriteFile(emptyPath, nil, 0o600))
	_, _, err = Load(emptyPath)
	require.ErrorIs(t, err, ErrEmptyImage)

	_, _, err = Load(filepath.Join(dir, "missing.bin"))
	require.Error(t, err)
}
