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
	"time"

	"github.com/ZaparooProject/go-i2cboot/internal/frame"
	"github.com/sirupsen/logrus"
)

// TransferState is the receiver's protocol state.
type TransferState int

const (
	// TransferIdle is listening, no chunk accepted yet
	TransferIdle TransferState = iota
	// TransferReceiving has accepted at least one chunk
	TransferReceiving
	// TransferDone has programmed the last chunk
	TransferDone
	// TransferFault is terminal for this boot
	TransferFault
)

func (s TransferState) String() string {
	switch s {
	case TransferIdle:
		return "idle"
	case TransferReceiving:
		return "receiving"
	case TransferDone:
		return "done"
	case TransferFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Progress reports one programmed chunk.
type Progress struct {
	Sequence byte
	Total    byte
	Addr     uint32
	Bytes    uint32
}

// ProgressCallback is called after every programmed chunk.
type ProgressCallback func(Progress)

// TransferConfig configures the chunk receiver.
type TransferConfig struct {
	Progress ProgressCallback
	// IdleTimeout ends the transfer when no bus event arrives in time.
	// Zero waits forever.
	IdleTimeout time.Duration
	// DataSize is the payload size of every chunk
	DataSize int
	// AckByte answers liveness reads
	AckByte byte
}

// DefaultTransferConfig returns the default transfer configuration
func DefaultTransferConfig() *TransferConfig {
	return &TransferConfig{
		DataSize:    frame.DefaultDataSize,
		AckByte:     frame.AckByte,
		IdleTimeout: 60 * time.Second,
	}
}

// TransferResult summarizes a completed transfer.
type TransferResult struct {
	Chunks  int
	Bytes   uint32
	Elapsed time.Duration
	Total   byte
}

// Receiver accepts a chunked image on the claimed address and writes it
// into a slot, starting at the slot's header address.
type Receiver struct {
	flash    Flash
	target   Target
	config   *TransferConfig
	slot     Slot
	state    TransferState
	total    byte
	expected byte
}

// NewReceiver creates a receiver writing into slot.
func NewReceiver(f Flash, target Target, slot Slot, config *TransferConfig) *Receiver {
	if config == nil {
		config = DefaultTransferConfig()
	}
	return &Receiver{flash: f, target: target, slot: slot, config: config}
}

// State returns the current protocol state.
func (r *Receiver) State() TransferState {
	return r.state
}

// Receive runs the protocol until the last chunk is programmed or a fault
// occurs. The flash session is open for the whole transfer and closed on
// every exit.
func (r *Receiver) Receive(ctx context.Context) (*TransferResult, error) {
	if r.config.DataSize <= 0 {
		return nil, fmt.Errorf("%w: chunk data size %d", ErrInvalidParameter, r.config.DataSize)
	}
	r.state, r.total, r.expected = TransferIdle, 0, 1

	start := time.Now()
	result := &TransferResult{}
	err := withSession(r.flash, func() error {
		return r.loop(ctx, result)
	})
	result.Elapsed = time.Since(start)
	if err != nil {
		r.state = TransferFault
		return result, err
	}
	return result, nil
}

func (r *Receiver) loop(ctx context.Context, result *TransferResult) error {
	buf := frame.GetBuffer(frame.WireSize(r.config.DataSize))
	defer frame.PutBuffer(buf)

	for {
		ev, err := r.wait(ctx)
		if err != nil {
			return err
		}

		switch ev {
		case EventReadAddressed:
			if err := r.target.Write([]byte{r.config.AckByte}); err != nil {
				debugf("ack write: %v", err)
			}
		case EventWriteGeneral:
			debugln("general call ignored")
		case EventWriteAddressed:
			n, err := r.target.Read(buf)
			if err != nil {
				return &ProtocolError{Sequence: r.expected, Total: r.total, Err: fmt.Errorf("%w: %w", ErrShortChunk, err)}
			}
			if n != len(buf) {
				return &ProtocolError{
					Sequence: r.expected,
					Total:    r.total,
					Err:      fmt.Errorf("%w: got %d of %d bytes", ErrShortChunk, n, len(buf)),
				}
			}
			chunk, err := frame.Decode(buf, r.config.DataSize)
			if err != nil {
				return &ProtocolError{Sequence: r.expected, Total: r.total, Err: fmt.Errorf("%w: %w", ErrShortChunk, err)}
			}
			if err := r.accept(chunk); err != nil {
				return err
			}
			result.Chunks++
			result.Total = chunk.Total
			result.Bytes += uint32(len(chunk.Payload))
			if r.state == TransferDone {
				return nil
			}
		case EventNone:
		}
	}
}

// wait returns the next bus event, turning an idle timeout into
// ErrTransferTimeout.
func (r *Receiver) wait(ctx context.Context) (BusEvent, error) {
	if r.config.IdleTimeout <= 0 {
		return r.target.Receive(ctx)
	}
	waitCtx, cancel := context.WithTimeout(ctx, r.config.IdleTimeout)
	defer cancel()

	ev, err := r.target.Receive(waitCtx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return EventNone, fmt.Errorf("%w: no bus activity for %s in state %s",
			ErrTransferTimeout, r.config.IdleTimeout, r.state)
	}
	return ev, err
}

func (r *Receiver) check(c frame.Chunk) error {
	fail := func(err error) error {
		return &ProtocolError{Sequence: c.Sequence, Total: c.Total, Expected: r.expected, Err: err}
	}
	switch {
	case c.Total == 0:
		return fail(ErrInvalidTotal)
	case r.state == TransferReceiving && c.Total != r.total:
		return fail(ErrTotalMismatch)
	case c.Sequence != r.expected, c.Sequence > c.Total:
		return fail(ErrUnexpectedSequence)
	}
	return nil
}

// accept validates and stores one chunk. The first chunk erases the span
// covering total chunks from the header address; every chunk is then
// programmed at its offset.
func (r *Receiver) accept(c frame.Chunk) error {
	if err := r.check(c); err != nil {
		return err
	}

	ds := uint32(r.config.DataSize)
	if c.Sequence == 1 {
		size := uint32(c.Total) * ds
		if size > r.slot.MaxTransferSize() {
			return &ProtocolError{
				Sequence: c.Sequence,
				Total:    c.Total,
				Err:      fmt.Errorf("%w: %d bytes, slot %s holds %d", ErrImageTooLarge, size, r.slot.Name, r.slot.MaxTransferSize()),
			}
		}
		start, span, err := SectorSpan(r.flash, r.slot.HeaderAddr, size)
		if err != nil {
			return err
		}
		if err := eraseFlash(r.flash, start, span); err != nil {
			return err
		}
		r.total = c.Total
		r.state = TransferReceiving
	}

	addr := r.slot.HeaderAddr + frame.Offset(c.Sequence, r.config.DataSize)
	if err := programFlash(r.flash, c.Payload, addr); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"sequence": c.Sequence,
		"total":    c.Total,
		"addr":     fmt.Sprintf("0x%08X", addr),
	}).Info("Chunk programmed")

	if r.config.Progress != nil {
		r.config.Progress(Progress{
			Sequence: c.Sequence,
			Total:    c.Total,
			Addr:     addr,
			Bytes:    uint32(c.Sequence) * ds,
		})
	}

	if c.IsLast() {
		r.state = TransferDone
		return nil
	}
	r.expected = c.Sequence + 1
	return nil
}
