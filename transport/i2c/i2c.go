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

// Package i2c sends firmware chunks to a bootloader over an I2C bus
package i2c

import (
	"context"
	"fmt"
	"time"

	i2cboot "github.com/ZaparooProject/go-i2cboot"
	"github.com/ZaparooProject/go-i2cboot/internal/frame"
	"github.com/ZaparooProject/go-i2cboot/internal/transport"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// Max clock frequency (400 kHz).
	maxClockFreq = 400 * physic.KiloHertz

	// Delay between ping attempts that read an idle bus.
	pingRetryDelay = 2 * time.Millisecond
)

// ChunkHook observes every chunk right before it is written.
type ChunkHook func(addr uint16, wire []byte)

// Option configures a Sender
type Option func(*Sender)

// WithRetryConfig sets the retry policy for NACKed chunk writes
func WithRetryConfig(config *i2cboot.RetryConfig) Option {
	return func(s *Sender) {
		s.retry = config
	}
}

// WithChunkHook sets a hook called before every chunk write
func WithChunkHook(hook ChunkHook) Option {
	return func(s *Sender) {
		s.hook = hook
	}
}

// WithAckByte sets the byte a bootloader answers liveness reads with
func WithAckByte(b byte) Option {
	return func(s *Sender) {
		s.ackByte = b
	}
}

// Sender writes chunks to bootloaders on one bus.
type Sender struct {
	bus     i2c.Bus
	closer  interface{ Close() error }
	retry   *i2cboot.RetryConfig
	hook    ChunkHook
	busName string
	ackByte byte
}

// New opens a named bus (e.g. "/dev/i2c-1" or "1") and returns a sender.
func New(busName string, opts ...Option) (*Sender, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, i2cboot.NewTransportError("open", busName, err, i2cboot.ErrorTypePermanent)
	}
	_ = bus.SetSpeed(maxClockFreq) // Ignore error, continue with default speed

	s := NewWithBus(bus, busName, opts...)
	s.closer = bus
	return s, nil
}

// NewWithBus wraps an already opened bus.
func NewWithBus(bus i2c.Bus, name string, opts ...Option) *Sender {
	s := &Sender{
		bus:     bus,
		busName: name,
		retry:   i2cboot.DefaultRetryConfig(),
		ackByte: frame.AckByte,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the bus if the sender opened it.
func (s *Sender) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *Sender) port(addr uint16) string {
	return fmt.Sprintf("%s@0x%02X", s.busName, addr)
}

// SendChunk writes one encoded chunk as a single transaction. A NACK is
// retried with backoff.
func (s *Sender) SendChunk(ctx context.Context, addr uint16, wire []byte) error {
	if len(wire) <= frame.HeaderSize {
		return fmt.Errorf("%w: chunk of %d bytes", i2cboot.ErrInvalidParameter, len(wire))
	}
	if s.hook != nil {
		s.hook(addr, wire)
	}
	return i2cboot.RetryWithConfig(ctx, s.retry, func() error {
		if err := s.bus.Tx(addr, wire, nil); err != nil {
			return i2cboot.NewTransportError("send chunk", s.port(addr), err, i2cboot.ErrorTypeTransient)
		}
		return nil
	})
}

// SendImage writes every chunk in order. progress, if set, is called after
// each chunk with the number sent so far.
func (s *Sender) SendImage(ctx context.Context, addr uint16, chunks [][]byte, progress func(sent, total int)) error {
	for i, wire := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.SendChunk(ctx, addr, wire); err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if progress != nil {
			progress(i+1, len(chunks))
		}
	}
	return nil
}

// Ping reads one byte from addr and checks it is the ack byte. An idle
// bus reads back 0xFF, so a few unexpected bytes are retried.
func (s *Sender) Ping(addr uint16) error {
	_, err := transport.WithRetry(transport.RetryConfig{
		Description: s.port(addr),
		MaxRetries:  3,
		RetryDelay:  pingRetryDelay,
	}, func() (byte, bool, error) {
		buf := frame.GetSmallBuffer(1)
		defer frame.PutBuffer(buf)

		if err := s.bus.Tx(addr, nil, buf); err != nil {
			return 0, false, i2cboot.NewTransportError("ping", s.port(addr), err, i2cboot.ErrorTypeTransient)
		}
		return buf[0], buf[0] != s.ackByte, nil
	})
	return err
}

// WaitReady pings addr until the bootloader answers or timeout passes.
func (s *Sender) WaitReady(ctx context.Context, addr uint16, timeout time.Duration) error {
	_, err := transport.TimeoutRetry(ctx, timeout, 10*time.Millisecond, func() (struct{}, bool, error) {
		if err := s.Ping(addr); err != nil {
			if i2cboot.IsRetryable(err) {
				return struct{}{}, true, nil
			}
			return struct{}{}, false, err
		}
		return struct{}{}, false, nil
	})
	if err != nil {
		return fmt.Errorf("bootloader at %s not ready: %w", s.port(addr), err)
	}
	return nil
}
