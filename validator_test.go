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
	"testing"

	testutil "github.com/ZaparooProject/go-i2cboot/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeImage stores a committed header and app in slot.
func writeImage(t *testing.T, flash *testutil.VirtualFlash, slot Slot, app []byte) ImageHeader {
	t.Helper()
	h := NewImageHeader(app, Version{Major: 1, Minor: 2, Fix: 3})
	raw, err := h.MarshalBinary()
	require.NoError(t, err)
	flash.Load(slot.HeaderAddr, raw)
	flash.Load(slot.AppAddr, app)
	return h
}

func testApp(n int) []byte {
	app := make([]byte, n)
	for i := range app {
		app[i] = byte(i*7 + 3)
	}
	return app
}

func TestValidator_AcceptsFreshImage(t *testing.T) {
	t.Parallel()

	flash := newTestFlash()
	slot := DefaultLayout().Primary()
	want := writeImage(t, flash, slot, testApp(5000))

	v := NewValidator(flash, slot)
	assert.True(t, v.IsMagicValid(slot))
	assert.True(t, v.IsCRCValid(slot))

	got, h, err := v.Validate()
	require.NoError(t, err)
	assert.Equal(t, slot, got)
	assert.Equal(t, want, h)
	assert.Empty(t, flash.Ops(), "validation must not write")
}

func TestValidator_MagicIgnoresOtherHeaderBytes(t *testing.T) {
	t.Parallel()

	slot := DefaultLayout().Primary()
	for i := 4; i < HeaderSize; i++ {
		flash := newTestFlash()
		writeImage(t, flash, slot, testApp(64))
		b := flash.Bytes(slot.HeaderAddr+uint32(i), 1)
		flash.Load(slot.HeaderAddr+uint32(i), []byte{^b[0]})

		assert.True(t, NewValidator(flash, slot).IsMagicValid(slot), "byte %d", i)
	}
}

func TestValidator_Rejections(t *testing.T) {
	t.Parallel()

	slot := DefaultLayout().Primary()
	tests := []struct {
		corrupt   func(*testutil.VirtualFlash)
		wantErr   error
		name      string
		wantMagic bool
		wantCRC   bool
	}{
		{
			name:    "erased",
			corrupt: func(f *testutil.VirtualFlash) { f.Load(slot.HeaderAddr, bytes.Repeat([]byte{0xFF}, HeaderSize)) },
			wantErr: ErrBadMagic,
		},
		{
			name:    "magic byte flipped",
			corrupt: func(f *testutil.VirtualFlash) { f.Load(slot.HeaderAddr, []byte{0xEE}) },
			wantErr: ErrBadMagic,
			wantCRC: true,
		},
		{
			name:      "image byte flipped",
			corrupt:   func(f *testutil.VirtualFlash) { f.Load(slot.AppAddr+100, []byte{0x00}) },
			wantErr:   ErrCRCMismatch,
			wantMagic: true,
		},
		{
			name:      "crc field changed",
			corrupt:   func(f *testutil.VirtualFlash) { f.Load(slot.HeaderAddr+12, []byte{0x00, 0x00}) },
			wantErr:   ErrCRCMismatch,
			wantMagic: true,
		},
		{
			name: "size beyond slot",
			corrupt: func(f *testutil.VirtualFlash) {
				f.Load(slot.HeaderAddr+4, []byte{0x00, 0x00, 0x10, 0x00})
			},
			wantErr:   ErrImageTooLarge,
			wantMagic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			flash := newTestFlash()
			writeImage(t, flash, slot, testApp(1000))
			tt.corrupt(flash)

			v := NewValidator(flash, slot)
			assert.Equal(t, tt.wantMagic, v.IsMagicValid(slot))
			assert.Equal(t, tt.wantCRC, v.IsCRCValid(slot))

			_, _, err := v.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrValidationFault)
			assert.True(t, IsFatal(err))
		})
	}
}

func TestValidator_SlotFallback(t *testing.T) {
	t.Parallel()

	layout := DualBankLayout()
	update, factory := layout.Slots[0], layout.Slots[1]
	flash := testutil.NewUniformFlash(0x08000000, 0x800, 128)
	writeImage(t, flash, factory, testApp(300))

	v := NewValidator(flash, layout.Slots...)
	got, _, err := v.Validate()
	require.NoError(t, err)
	assert.Equal(t, factory.Name, got.Name)

	writeImage(t, flash, update, testApp(700))
	got, h, err := v.Validate()
	require.NoError(t, err)
	assert.Equal(t, update.Name, got.Name)
	assert.Equal(t, uint64(700), h.Size)
}

func TestValidator_ReportsHighestPrioritySlot(t *testing.T) {
	t.Parallel()

	layout := DualBankLayout()
	flash := testutil.NewUniformFlash(0x08000000, 0x800, 128)

	_, _, err := NewValidator(flash, layout.Slots...).Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "update", verr.Slot)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestValidator_NoSlots(t *testing.T) {
	t.Parallel()

	_, _, err := NewValidator(newTestFlash()).Validate()
	assert.ErrorIs(t, err, ErrNoValidSlot)
}

func TestValidator_ZeroSizeImage(t *testing.T) {
	t.Parallel()

	flash := newTestFlash()
	slot := DefaultLayout().Primary()
	writeImage(t, flash, slot, nil)

	assert.True(t, NewValidator(flash, slot).IsCRCValid(slot))
}
