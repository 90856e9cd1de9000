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
	"fmt"
	"time"
)

// Option is a functional option for configuring a Dispatcher
type Option func(*Dispatcher) error

// WithLayout sets the flash layout
func WithLayout(layout Layout) Option {
	return func(d *Dispatcher) error {
		if len(layout.Slots) == 0 {
			return fmt.Errorf("%w: layout has no slots", ErrInvalidParameter)
		}
		d.config.Layout = layout
		return nil
	}
}

// WithRecordFormat selects the update-pending record format
func WithRecordFormat(format RecordFormat) Option {
	return func(d *Dispatcher) error {
		switch format {
		case FormatStatusByte, FormatMetadataBlock:
			d.config.RecordFormat = format
			return nil
		default:
			return fmt.Errorf("%w: record format %d", ErrInvalidParameter, format)
		}
	}
}

// WithArbitrationConfig sets the address claiming configuration
func WithArbitrationConfig(config *ArbitrationConfig) Option {
	return func(d *Dispatcher) error {
		if config == nil || config.AddressSpace == 0 {
			return fmt.Errorf("%w: arbitration config", ErrInvalidParameter)
		}
		d.config.Arbitration = config
		return nil
	}
}

// WithTransferConfig sets the chunk receiver configuration
func WithTransferConfig(config *TransferConfig) Option {
	return func(d *Dispatcher) error {
		if config == nil || config.DataSize <= 0 {
			return fmt.Errorf("%w: transfer config", ErrInvalidParameter)
		}
		d.config.Transfer = config
		return nil
	}
}

// WithIdleTimeout sets how long a transfer waits for bus activity
func WithIdleTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) error {
		if timeout < 0 {
			return fmt.Errorf("%w: negative idle timeout", ErrInvalidParameter)
		}
		d.config.Transfer.IdleTimeout = timeout
		return nil
	}
}

// WithProgressCallback sets a callback invoked after every programmed chunk
func WithProgressCallback(cb ProgressCallback) Option {
	return func(d *Dispatcher) error {
		d.config.Transfer.Progress = cb
		return nil
	}
}
