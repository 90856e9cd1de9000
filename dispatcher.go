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
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
)

// BootConfig holds the dispatcher configuration.
type BootConfig struct {
	// Arbitration configures address claiming
	Arbitration *ArbitrationConfig
	// Transfer configures the chunk receiver
	Transfer *TransferConfig
	// Layout is the board's flash map
	Layout Layout
	// RecordFormat selects the update-pending record format
	RecordFormat RecordFormat
}

// DefaultBootConfig returns the default boot configuration
func DefaultBootConfig() *BootConfig {
	return &BootConfig{
		Layout:       DefaultLayout(),
		RecordFormat: FormatStatusByte,
		Arbitration:  DefaultArbitrationConfig(),
		Transfer:     DefaultTransferConfig(),
	}
}

// Action is what the dispatcher decided to do with the CPU.
type Action int

const (
	// ActionReset resets the CPU so the next boot re-evaluates
	ActionReset Action = iota
	// ActionStartApplication jumps into the validated application
	ActionStartApplication
)

func (a Action) String() string {
	if a == ActionStartApplication {
		return "start-application"
	}
	return "reset"
}

// Decision is the outcome of one boot.
type Decision struct {
	// Err is the fault that led to ActionReset
	Err error
	// Transfer is set when an update was received
	Transfer *TransferResult
	Reason   string
	Slot     Slot
	Header   ImageHeader
	Vectors  VectorTable
	// Address is the application base for ActionStartApplication
	Address uint32
	// BusAddress is the address claimed for the update, if any
	BusAddress uint16
	Action     Action
	// Fatal is set when Err is a classified boot fault rather than an
	// interruption such as a cancelled context
	Fatal bool
}

// Dispatcher sequences one boot: optional update, validation, commit and
// hand-over to the application.
//
// Thread Safety: Dispatcher is NOT thread-safe. It owns the flash for the
// duration of Boot.
type Dispatcher struct {
	flash     Flash
	platform  Platform
	bus       i2c.Bus
	target    Target
	config    *BootConfig
	metadata  *MetadataStore
	validator *Validator
}

// New creates a dispatcher. bus and target are the same bus peripheral
// in controller and target role.
func New(f Flash, platform Platform, bus i2c.Bus, target Target, opts ...Option) (*Dispatcher, error) {
	if f == nil || platform == nil || bus == nil || target == nil {
		return nil, fmt.Errorf("%w: flash, platform, bus and target are required", ErrInvalidParameter)
	}
	d := &Dispatcher{
		flash:    f,
		platform: platform,
		bus:      bus,
		target:   target,
		config:   DefaultBootConfig(),
	}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	if err := d.config.Layout.Validate(f); err != nil {
		return nil, err
	}
	d.metadata = NewMetadataStore(f, d.config.Layout.StatusAddr, d.config.RecordFormat)
	d.validator = NewValidator(f, d.config.Layout.Slots...)
	return d, nil
}

// Config returns the active configuration.
func (d *Dispatcher) Config() *BootConfig {
	return d.config
}

// Metadata returns the update-pending record store.
func (d *Dispatcher) Metadata() *MetadataStore {
	return d.metadata
}

// Boot decides what to do with the CPU without doing it. Flash writes
// (transfer and record updates) happen here; the returned error is the
// fault behind an ActionReset decision.
func (d *Dispatcher) Boot(ctx context.Context) (*Decision, error) {
	cause := d.platform.ResetCause()
	logger.WithField("reset", cause).Info("Launching the bootloader")

	decision := &Decision{}
	if cause == ResetSoftware {
		if err := d.update(ctx, decision); err != nil {
			return d.fault(decision, "update failed", err)
		}
	}

	slot, header, err := d.validator.Validate()
	if err != nil {
		switch {
		case errors.Is(err, ErrBadMagic):
			logger.Info("Magic number invalid")
		case errors.Is(err, ErrCRCMismatch):
			logger.Info("CRC invalid")
		default:
			logger.WithError(err).Info("Image invalid")
		}
		if perr := d.metadata.SetPending(true); perr != nil {
			logger.WithError(perr).Warn("Could not mark update pending")
			err = errors.Join(err, perr)
		}
		return d.fault(decision, "validation failed", err)
	}
	decision.Slot, decision.Header = slot, header

	d.commit()

	vectors, err := ReadVectorTable(d.flash, slot.AppAddr)
	if err != nil {
		logger.WithError(err).Warn("Could not read vector table")
	}
	decision.Vectors = vectors
	decision.Action = ActionStartApplication
	decision.Address = slot.AppAddr
	decision.Reason = fmt.Sprintf("slot %s version %s valid", slot.Name, header.Version)
	logger.Infof("Starting the application at 0x%x", slot.AppAddr)
	return decision, nil
}

// Run boots and carries out the decision on the platform.
func (d *Dispatcher) Run(ctx context.Context) (*Decision, error) {
	decision, err := d.Boot(ctx)
	switch decision.Action {
	case ActionStartApplication:
		d.platform.StartApplication(decision.Address)
	default:
		d.platform.SystemReset()
	}
	return decision, err
}

// update receives a new image when the record says one is pending. A
// record that cannot be read counts as pending.
func (d *Dispatcher) update(ctx context.Context, decision *Decision) error {
	pending, err := d.metadata.NeedsUpdate()
	if err != nil {
		logger.WithError(err).Warn("Update record unreadable")
	}
	if !pending {
		logger.Info("No need update")
		return nil
	}
	logger.Info("Bootloader ready for firmware update")

	addr, err := NewArbiter(d.bus, d.target, d.config.Arbitration).Claim(ctx, d.platform.UniqueID())
	if err != nil {
		return err
	}
	decision.BusAddress = addr

	slot := d.config.Layout.Primary()
	result, err := NewReceiver(d.flash, d.target, slot, d.config.Transfer).Receive(ctx)
	decision.Transfer = result
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"chunks":  result.Chunks,
		"bytes":   result.Bytes,
		"elapsed": result.Elapsed,
	}).Info("Firmware received")
	return nil
}

// commit marks the record not pending. A failed commit is logged and the
// boot continues: the image already passed validation.
func (d *Dispatcher) commit() {
	pending, err := d.metadata.NeedsUpdate()
	if err == nil && !pending {
		return
	}
	if err := d.metadata.SetPending(false); err != nil {
		logger.WithError(err).Warn("Could not clear update flag")
	}
}

func (*Dispatcher) fault(decision *Decision, reason string, err error) (*Decision, error) {
	decision.Action = ActionReset
	decision.Reason = reason
	decision.Err = err
	decision.Fatal = IsFatal(err)
	entry := logger.WithFields(logrus.Fields{"kind": GetErrorType(err), "reason": reason}).WithError(err)
	if decision.Fatal {
		entry.Error("Resetting")
	} else {
		entry.Warn("Boot interrupted, resetting")
	}
	return decision, err
}
