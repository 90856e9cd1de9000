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

package uart

import (
	"context"
	"errors"
	"testing"

	"github.com/ZaparooProject/go-i2cboot/detection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
)

func fakePorts() []*enumerator.PortDetails {
	return []*enumerator.PortDetails{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "A10K1Z"},
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "1366", PID: "0105"},
		{Name: "/dev/ttyACM1", IsUSB: true, VID: "cafe", PID: "4010", Product: "Dev board"},
	}
}

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		opts  *detection.Options
		name  string
		want  []string
		names []string
	}{
		{
			name:  "safe mode skips built-in and blocked ports",
			opts:  detection.DefaultOptions(),
			want:  []string{"/dev/ttyUSB0", "/dev/ttyACM1"},
			names: []string{"FTDI FT232R", "Dev board"},
		},
		{
			name:  "full mode lists built-in ports",
			opts:  &detection.Options{Mode: detection.Full, Blocklist: detection.DefaultBlocklist()},
			want:  []string{"/dev/ttyS0", "/dev/ttyUSB0", "/dev/ttyACM1"},
			names: []string{"serial port /dev/ttyS0", "FTDI FT232R", "Dev board"},
		},
		{
			name:  "empty blocklist",
			opts:  &detection.Options{Mode: detection.Safe},
			want:  []string{"/dev/ttyUSB0", "/dev/ttyACM0", "/dev/ttyACM1"},
			names: []string{"FTDI FT232R", "serial port /dev/ttyACM0", "Dev board"},
		},
		{
			name: "ignored path",
			opts: &detection.Options{
				Mode:        detection.Safe,
				Blocklist:   detection.DefaultBlocklist(),
				IgnorePaths: []string{"/dev/ttyUSB0"},
			},
			want:  []string{"/dev/ttyACM1"},
			names: []string{"Dev board"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := &detector{list: func() ([]*enumerator.PortDetails, error) { return fakePorts(), nil }}

			devices, err := d.Detect(context.Background(), tt.opts)
			require.NoError(t, err)
			var paths, names []string
			for _, dev := range devices {
				paths = append(paths, dev.Path)
				names = append(names, dev.Name)
			}
			assert.Equal(t, tt.want, paths)
			assert.Equal(t, tt.names, names)
		})
	}
}

func TestDetect_Metadata(t *testing.T) {
	t.Parallel()

	d := &detector{list: func() ([]*enumerator.PortDetails, error) { return fakePorts(), nil }}
	devices, err := d.Detect(context.Background(), detection.DefaultOptions())
	require.NoError(t, err)
	require.NotEmpty(t, devices)

	ftdi := devices[0]
	assert.Equal(t, detection.Medium, ftdi.Confidence)
	assert.Equal(t, "0403:6001", ftdi.Metadata["vidpid"])
	assert.Equal(t, "A10K1Z", ftdi.Metadata["serial"])
	assert.Equal(t, detection.Low, devices[1].Confidence)
	assert.Equal(t, "CAFE:4010", devices[1].Metadata["vidpid"])
}

func TestDetect_Errors(t *testing.T) {
	t.Parallel()

	errEnum := errors.New("enumeration failed")
	d := &detector{list: func() ([]*enumerator.PortDetails, error) { return nil, errEnum }}
	_, err := d.Detect(context.Background(), detection.DefaultOptions())
	require.ErrorIs(t, err, errEnum)

	d = &detector{list: func() ([]*enumerator.PortDetails, error) { return nil, nil }}
	_, err = d.Detect(context.Background(), detection.DefaultOptions())
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Detect(ctx, detection.DefaultOptions())
	require.ErrorIs(t, err, detection.ErrDetectionTimeout)
}
