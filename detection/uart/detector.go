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

// Package uart finds USB serial adapters that may carry a bootloader's
// debug console.
package uart

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/go-i2cboot/detection"
	"go.bug.st/serial/enumerator"
)

// knownBridges lists USB serial bridges commonly wired to a debug UART.
var knownBridges = map[string]string{
	"0403:6001": "FTDI FT232R",
	"0403:6014": "FTDI FT232H",
	"10C4:EA60": "Silicon Labs CP210x",
	"1A86:7523": "WCH CH340",
	"0483:374B": "ST-LINK/V2-1 VCP",
	"0483:374E": "STLINK-V3 VCP",
}

type detector struct {
	list func() ([]*enumerator.PortDetails, error)
}

// New returns the serial console detector.
func New() detection.Detector {
	return &detector{list: enumerator.GetDetailedPortsList}
}

func init() {
	detection.RegisterDetector(New())
}

func (*detector) Transport() string {
	return "uart"
}

func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, detection.ErrDetectionTimeout
	}

	ports, err := d.list()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, port := range ports {
		if device, ok := classify(port, opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func classify(port *enumerator.PortDetails, opts *detection.Options) (detection.DeviceInfo, bool) {
	if detection.IsPathIgnored(port.Name, opts.IgnorePaths) {
		return detection.DeviceInfo{}, false
	}

	device := detection.DeviceInfo{
		Transport:  "uart",
		Path:       port.Name,
		Name:       "serial port " + port.Name,
		Confidence: detection.Low,
		Metadata:   map[string]string{},
	}

	if !port.IsUSB {
		// Built-in UARTs are only listed when asked for everything
		return device, opts.Mode == detection.Full
	}

	vidpid := detection.VIDPID(port.VID, port.PID)
	if detection.IsBlocked(vidpid, opts.Blocklist) {
		return detection.DeviceInfo{}, false
	}

	device.Metadata["vidpid"] = vidpid
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	if port.Product != "" {
		device.Metadata["product"] = port.Product
		device.Name = port.Product
	}
	if bridge, ok := knownBridges[vidpid]; ok {
		device.Name = bridge
		device.Confidence = detection.Medium
	}
	return device, true
}
