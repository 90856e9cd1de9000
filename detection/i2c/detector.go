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

// Package i2c finds bootloaders listening on the host's I2C buses.
package i2c

import (
	"context"
	"fmt"

	i2cboot "github.com/ZaparooProject/go-i2cboot"
	"github.com/ZaparooProject/go-i2cboot/detection"
	"github.com/ZaparooProject/go-i2cboot/internal/frame"
)

const (
	// FirstAddress and LastAddress bound the scan; the rest of the 7-bit
	// space is reserved.
	FirstAddress = 0x08
	LastAddress  = 0x77
)

// Prober reads one byte from a device on an open bus.
type Prober interface {
	Probe(addr uint16) (byte, error)
}

type detector struct{}

// New returns the I2C detector.
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

func (*detector) Transport() string {
	return "i2c"
}

func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	buses, err := listBuses()
	if err != nil {
		return nil, err
	}
	if len(buses) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	var devices []detection.DeviceInfo
	for _, bus := range buses {
		if detection.IsPathIgnored(bus, opts.IgnorePaths) {
			continue
		}
		if opts.Mode == detection.Passive {
			devices = append(devices, detection.DeviceInfo{
				Transport:  "i2c",
				Path:       bus,
				Name:       "I2C bus " + bus,
				Confidence: detection.Low,
				Metadata:   map[string]string{"bus": bus},
			})
			continue
		}

		found, err := ScanPath(ctx, bus, opts)
		devices = append(devices, found...)
		if err != nil {
			return devices, err
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// ScanPath opens the bus device at busPath and scans it.
func ScanPath(ctx context.Context, busPath string, opts *detection.Options) ([]detection.DeviceInfo, error) {
	bus, err := openBus(busPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = bus.Close() }()
	return ScanBus(ctx, bus, busPath, opts)
}

// ScanBus probes every address on one bus. A device that answers with the
// bootloader's ack byte is reported; other responders are only reported
// in Full mode.
func ScanBus(ctx context.Context, p Prober, busPath string, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if opts == nil {
		opts = detection.DefaultOptions()
	}
	arb := i2cboot.DefaultArbitrationConfig()

	var devices []detection.DeviceInfo
	for addr := uint16(FirstAddress); addr <= LastAddress; addr++ {
		select {
		case <-ctx.Done():
			return devices, detection.ErrDetectionTimeout
		default:
		}

		path := fmt.Sprintf("%s:0x%02X", busPath, addr)
		if detection.IsPathIgnored(path, opts.IgnorePaths) {
			continue
		}

		b, err := p.Probe(addr)
		if err != nil {
			continue
		}

		device := detection.DeviceInfo{
			Transport: "i2c",
			Path:      path,
			Metadata: map[string]string{
				"bus":     busPath,
				"address": fmt.Sprintf("0x%02X", addr),
				"reply":   fmt.Sprintf("0x%02X", b),
			},
		}
		switch {
		case b == frame.AckByte && addr >= arb.BaseAddress && addr <= arb.LastAddress():
			device.Name = fmt.Sprintf("bootloader at %s address 0x%02X", busPath, addr)
			device.Confidence = detection.High
		case b == frame.AckByte:
			device.Name = fmt.Sprintf("bootloader at %s address 0x%02X (outside claim range)", busPath, addr)
			device.Confidence = detection.Medium
		case opts.Mode == detection.Full:
			device.Name = fmt.Sprintf("I2C device at %s address 0x%02X", busPath, addr)
			device.Confidence = detection.Low
		default:
			continue
		}
		devices = append(devices, device)
	}
	return devices, nil
}
