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

// Package polling watches a bus for bootloaders coming and going.
package polling

import "time"

// Config controls how often a bus is scanned.
type Config struct {
	// PollInterval is the scan period while devices are present or were
	// seen recently
	PollInterval time.Duration
	// IdleInterval is the scan period after IdleAfter without any device
	IdleInterval time.Duration
	IdleAfter    time.Duration
	// RemovalTimeout is how long a device may go unseen before it is
	// reported gone
	RemovalTimeout time.Duration
}

// DefaultConfig returns the default polling configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval:   100 * time.Millisecond,
		IdleInterval:   500 * time.Millisecond,
		IdleAfter:      5 * time.Second,
		RemovalTimeout: time.Second,
	}
}
