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

/*
Package i2cboot implements a second-stage bootloader that receives
application firmware over I2C, and the host-side pieces that feed it.

On every reset the bootloader checks why the CPU restarted. After a
software reset it reads the update-pending record; when an update is
pending it claims a bus address, switches to target mode and programs the
chunks a host writes to it. It then validates the image header (magic
number and CRC-32) and either starts the application or marks an update
pending and resets.

Features:
  - Address arbitration so several devices can update on one bus
  - Chunked transfer with a two-byte sequence/total header
  - Single-byte or block update-pending records
  - Ordered slot fallback for dual-bank layouts
  - Host sender, bus scanner and console monitor for Linux hosts

Device side:

	d, err := i2cboot.New(flash, platform, controller, target,
	    i2cboot.WithIdleTimeout(30*time.Second),
	)
	if err != nil {
	    log.Fatal(err)
	}

	// Starts the application or resets; only returns on real hardware
	// when the platform hooks return.
	decision, err := d.Run(ctx)

Host side:

	import (
	    "github.com/ZaparooProject/go-i2cboot/firmware"
	    "github.com/ZaparooProject/go-i2cboot/transport/i2c"
	)

	app, _, err := firmware.Load("app.hex")
	image, _, err := firmware.Build(app, version, i2cboot.DefaultLayout().Primary())
	chunks, err := firmware.Chunks(image, 2048)

	sender, err := i2c.New("/dev/i2c-1")
	defer sender.Close()
	err = sender.SendImage(ctx, 0x17, chunks, nil)

Error Handling:

Faults are grouped by kind and can be inspected:

	if errors.Is(err, i2cboot.ErrValidationFault) {
	    // Image rejected, the device will ask for an update again
	}

	switch i2cboot.GetErrorType(err) {
	case i2cboot.ErrorTypeFlash:
	    // ...
	}

Thread Safety:

A Dispatcher runs one boot at a time and is not safe for concurrent use.
The host Sender may be shared as long as callers do not interleave
chunks for the same address.
*/
package i2cboot
