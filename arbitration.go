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
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// ArbitrationConfig controls address claiming on a shared bus.
type ArbitrationConfig struct {
	// MaxStartupDelay bounds the id-derived delay before probing
	MaxStartupDelay time.Duration
	// RecheckBackoff is the base delay between rechecks
	RecheckBackoff time.Duration
	// Frequency is the bus clock used both for probing and listening
	Frequency physic.Frequency
	// Rechecks re-probes a free candidate this many times before claiming
	// it. Zero keeps the single-probe behavior.
	Rechecks int
	// BaseAddress is the first usable 7-bit address
	BaseAddress uint16
	// AddressSpace is the number of usable addresses from BaseAddress
	AddressSpace uint16
}

// DefaultArbitrationConfig returns the default arbitration configuration
func DefaultArbitrationConfig() *ArbitrationConfig {
	return &ArbitrationConfig{
		BaseAddress:     0x10,
		AddressSpace:    95,
		MaxStartupDelay: time.Second,
		Frequency:       400 * physic.KiloHertz,
		RecheckBackoff:  5 * time.Millisecond,
	}
}

// LastAddress returns the highest address a claim may use.
func (c *ArbitrationConfig) LastAddress() uint16 {
	return c.BaseAddress + c.AddressSpace - 1
}

// Arbiter claims a free target address on a multi-drop bus. The scheme
// is best effort: two devices probing the same candidate at the same
// instant both see it free and both claim it. The id-derived start-up
// delay makes this unlikely and Rechecks narrows the window further, but
// neither removes it.
type Arbiter struct {
	bus    i2c.Bus
	target Target
	config *ArbitrationConfig
}

// NewArbiter creates an arbiter. bus is the peripheral in controller role
// and target is the same peripheral in listening role.
func NewArbiter(bus i2c.Bus, target Target, config *ArbitrationConfig) *Arbiter {
	if config == nil {
		config = DefaultArbitrationConfig()
	}
	return &Arbiter{bus: bus, target: target, config: config}
}

// CandidateAddress returns the first address tried for uniqueID.
func (a *Arbiter) CandidateAddress(uniqueID uint32) uint16 {
	return a.config.BaseAddress + uint16(uniqueID%uint32(a.config.AddressSpace))
}

// StartupDelay returns the id-derived delay before the first probe.
func (a *Arbiter) StartupDelay(uniqueID uint32) time.Duration {
	maxMs := uint32(a.config.MaxStartupDelay / time.Millisecond)
	if maxMs == 0 {
		return 0
	}
	return time.Duration(uniqueID%maxMs) * time.Millisecond
}

// Claim waits for the start-up delay, probes candidates upward from the
// derived address and listens on the first one nobody acknowledges.
func (a *Arbiter) Claim(ctx context.Context, uniqueID uint32) (uint16, error) {
	if a.config.AddressSpace == 0 {
		return 0, fmt.Errorf("%w: empty address space", ErrInvalidParameter)
	}

	delay := a.StartupDelay(uniqueID)
	debugf("arbitration: id 0x%08X, start-up delay %s", uniqueID, delay)
	if err := sleepContext(ctx, delay); err != nil {
		return 0, err
	}

	if a.config.Frequency > 0 {
		if err := a.bus.SetSpeed(a.config.Frequency); err != nil {
			debugf("arbitration: set speed: %v", err)
		}
	}

	// recheck jitter is seeded per device
	rnd := rand.New(rand.NewPCG(uint64(uniqueID), 0x9e3779b97f4a7c15))
	last := a.config.LastAddress()
	for addr := a.CandidateAddress(uniqueID); addr <= last; addr++ {
		if a.probe(addr) {
			debugf("arbitration: 0x%02X taken", addr)
			continue
		}
		free, err := a.recheck(ctx, addr, rnd)
		if err != nil {
			return 0, err
		}
		if !free {
			continue
		}
		if err := a.listen(addr); err != nil {
			return 0, err
		}
		logger.WithFields(logrus.Fields{"addr": fmt.Sprintf("0x%02X", addr)}).Info("Bus address claimed")
		return addr, nil
	}

	return 0, fmt.Errorf("%w: candidates 0x%02X-0x%02X all acknowledged",
		ErrArbitrationExhausted, a.CandidateAddress(uniqueID), last)
}

// probe reports whether someone acknowledges addr.
func (a *Arbiter) probe(addr uint16) bool {
	return a.bus.Tx(addr, []byte{}, nil) == nil
}

func (a *Arbiter) recheck(ctx context.Context, addr uint16, rnd *rand.Rand) (bool, error) {
	backoff := &RetryConfig{
		InitialBackoff:    a.config.RecheckBackoff,
		MaxBackoff:        20 * a.config.RecheckBackoff,
		BackoffMultiplier: 2,
		Jitter:            0.5,
	}
	for i := range a.config.Rechecks {
		if err := sleepContext(ctx, backoff.backoff(i, rnd.Float64)); err != nil {
			return false, err
		}
		if a.probe(addr) {
			debugf("arbitration: 0x%02X taken on recheck %d", addr, i+1)
			return false, nil
		}
	}
	return true, nil
}

func (a *Arbiter) listen(addr uint16) error {
	if err := a.target.SetAddress(addr); err != nil {
		return fmt.Errorf("set target address 0x%02X: %w", addr, err)
	}
	if a.config.Frequency > 0 {
		if err := a.target.SetFrequency(a.config.Frequency); err != nil {
			return fmt.Errorf("set target frequency: %w", err)
		}
	}
	return nil
}
