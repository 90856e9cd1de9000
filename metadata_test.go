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
	"testing"

	testutil "github.com/ZaparooProject/go-i2cboot/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testStatusAddr = 0x0801FF00

func newTestFlash() *testutil.VirtualFlash {
	return testutil.NewUniformFlash(0x08000000, 0x800, 64)
}

func TestMetadataStore_ErasedRecordIsPending(t *testing.T) {
	t.Parallel()

	for _, format := range []RecordFormat{FormatStatusByte, FormatMetadataBlock} {
		t.Run(format.String(), func(t *testing.T) {
			t.Parallel()
			store := NewMetadataStore(newTestFlash(), testStatusAddr, format)

			pending, err := store.NeedsUpdate()
			require.NoError(t, err)
			assert.True(t, pending)
		})
	}
}

func TestMetadataStore_SetPendingRoundTrip(t *testing.T) {
	t.Parallel()

	flash := newTestFlash()
	store := NewMetadataStore(flash, testStatusAddr, FormatStatusByte)

	require.NoError(t, store.SetPending(false))
	assert.Equal(t, []byte{StatusUpToDate}, flash.Bytes(testStatusAddr, 1))
	pending, err := store.NeedsUpdate()
	require.NoError(t, err)
	assert.False(t, pending)

	require.NoError(t, store.SetPending(true))
	assert.Equal(t, []byte{StatusPending}, flash.Bytes(testStatusAddr, 1))
	pending, err = store.NeedsUpdate()
	require.NoError(t, err)
	assert.True(t, pending)

	assert.False(t, flash.IsOpen(), "session must be closed after each write")
	erases := flash.OpsOfKind(testutil.OpErase)
	require.Len(t, erases, 2)
	for _, op := range erases {
		assert.Equal(t, uint32(0x0801F800), op.Addr)
		assert.Equal(t, uint32(0x800), op.Len)
	}
}

func TestMetadataStore_ForeignValueIsPending(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value byte
	}{
		{name: "zero", value: 0x00},
		{name: "erased", value: 0xFF},
		{name: "garbage", value: 0x42},
		{name: "one bit off", value: StatusUpToDate ^ 0x01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			flash := newTestFlash()
			flash.Load(testStatusAddr, []byte{tt.value})
			pending, err := NewMetadataStore(flash, testStatusAddr, FormatStatusByte).NeedsUpdate()
			require.NoError(t, err)
			assert.True(t, pending)
		})
	}
}

func TestMetadataStore_PreservesSectorNeighbours(t *testing.T) {
	t.Parallel()

	flash := newTestFlash()
	before := []byte("calibration")
	after := []byte{0x01, 0x02, 0x03}
	flash.Load(0x0801F800, before)
	flash.Load(testStatusAddr+1, after)

	store := NewMetadataStore(flash, testStatusAddr, FormatStatusByte)
	require.NoError(t, store.SetPending(false))

	assert.Equal(t, before, flash.Bytes(0x0801F800, uint32(len(before))))
	assert.Equal(t, after, flash.Bytes(testStatusAddr+1, uint32(len(after))))
}

func TestMetadataStore_KeepsTrailingHighBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		trailing []byte
	}{
		{name: "status byte last", trailing: nil},
		{name: "replacement character", trailing: []byte{0xEF, 0xBF, 0xBD}},
		{name: "high byte", trailing: []byte{0x80}},
		{name: "erased byte inside", trailing: []byte{0xFF, 0xFE}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			flash := newTestFlash()
			if len(tt.trailing) > 0 {
				flash.Load(testStatusAddr+1, tt.trailing)
			}

			store := NewMetadataStore(flash, testStatusAddr, FormatStatusByte)
			require.NoError(t, store.SetPending(false))

			assert.Equal(t, []byte{StatusUpToDate}, flash.Bytes(testStatusAddr, 1))
			if len(tt.trailing) > 0 {
				assert.Equal(t, tt.trailing, flash.Bytes(testStatusAddr+1, uint32(len(tt.trailing))))
			}
			pending, err := store.NeedsUpdate()
			require.NoError(t, err)
			assert.False(t, pending)
		})
	}
}

func TestMetadataStore_PowerLossAfterEraseReadsPending(t *testing.T) {
	t.Parallel()

	for _, format := range []RecordFormat{FormatStatusByte, FormatMetadataBlock} {
		t.Run(format.String(), func(t *testing.T) {
			t.Parallel()
			flash := newTestFlash()
			store := NewMetadataStore(flash, testStatusAddr, format)
			require.NoError(t, store.SetPending(false))
			pending, err := store.NeedsUpdate()
			require.NoError(t, err)
			require.False(t, pending)

			flash.CutPowerAfterNextErase()
			err = store.SetPending(false)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFlashFault)

			flash.PowerCycle()
			pending, err = store.NeedsUpdate()
			require.NoError(t, err)
			assert.True(t, pending)
		})
	}
}

func TestMetadataStore_EraseFault(t *testing.T) {
	t.Parallel()

	flash := newTestFlash()
	flash.FailEraseAt(1)
	err := NewMetadataStore(flash, testStatusAddr, FormatStatusByte).SetPending(false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFlashFault)
	assert.ErrorIs(t, err, testutil.ErrInjectedFault)
	assert.False(t, flash.IsOpen())
}

func TestMetadataStore_BlockKeepsIdentity(t *testing.T) {
	t.Parallel()

	flash := newTestFlash()
	store := NewMetadataStore(flash, testStatusAddr, FormatMetadataBlock)
	id := Identity{GroupID: 7, TypeTag: "lamp", Name: "hallway"}

	require.NoError(t, store.SetIdentity(id))
	require.NoError(t, store.SetPending(false))

	rec, err := store.Load()
	require.NoError(t, err)
	assert.False(t, rec.Pending)
	assert.Equal(t, id, rec.Identity)

	require.NoError(t, store.SetPending(true))
	rec, err = store.Load()
	require.NoError(t, err)
	assert.True(t, rec.Pending)
	assert.Equal(t, id, rec.Identity)
}

func TestMetadataStore_SetIdentityErrors(t *testing.T) {
	t.Parallel()

	err := NewMetadataStore(newTestFlash(), testStatusAddr, FormatStatusByte).
		SetIdentity(Identity{Name: "x"})
	require.ErrorIs(t, err, ErrInvalidParameter)

	long := Identity{Name: "a name that is far too long to fit the field"}
	err = NewMetadataStore(newTestFlash(), testStatusAddr, FormatMetadataBlock).SetIdentity(long)
	require.ErrorIs(t, err, ErrInvalidParameter)
}
