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
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "nack retryable", err: ErrNACK, want: true},
		{name: "transport timeout retryable", err: ErrTransportTimeout, want: true},
		{name: "bad ack retryable", err: ErrBadAck, want: true},
		{name: "wrapped nack retryable", err: fmt.Errorf("send chunk 3: %w", ErrNACK), want: true},
		{name: "transient transport error", err: NewTransportError("tx", "/dev/i2c-1", errors.New("eremoteio"), ErrorTypeTransient), want: true},
		{name: "permanent transport error", err: NewTransportError("open", "/dev/i2c-1", errors.New("enoent"), ErrorTypePermanent), want: false},
		{name: "flash fault not retryable", err: &FlashError{Op: "erase", Err: errors.New("busy")}, want: false},
		{name: "protocol fault not retryable", err: &ProtocolError{Sequence: 2, Total: 3, Err: ErrUnexpectedSequence}, want: false},
		{name: "generic error not retryable", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetErrorType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		name string
		want ErrorType
	}{
		{name: "nil", err: nil, want: ErrorTypeUnknown},
		{name: "flash", err: &FlashError{Op: "program", Err: errors.New("not erased")}, want: ErrorTypeFlash},
		{name: "protocol", err: &ProtocolError{Err: ErrTotalMismatch}, want: ErrorTypeProtocol},
		{name: "validation", err: &ValidationError{Slot: "primary", Err: ErrCRCMismatch}, want: ErrorTypeValidation},
		{name: "arbitration", err: fmt.Errorf("claim: %w", ErrArbitrationExhausted), want: ErrorTypeArbitration},
		{name: "transfer timeout", err: ErrTransferTimeout, want: ErrorTypeTimeout},
		{name: "nack", err: ErrNACK, want: ErrorTypeTransient},
		{name: "transport error type wins", err: NewTransportError("tx", "bus", ErrNACK, ErrorTypePermanent), want: ErrorTypePermanent},
		{name: "unknown", err: errors.New("other"), want: ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := GetErrorType(tt.err); got != tt.want {
				t.Errorf("GetErrorType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	fatal := []error{
		&FlashError{Op: "erase", Err: errors.New("x")},
		&ProtocolError{Err: ErrShortChunk},
		&ValidationError{Err: ErrBadMagic},
		ErrArbitrationExhausted,
		ErrTransferTimeout,
	}
	for _, err := range fatal {
		if !IsFatal(err) {
			t.Errorf("IsFatal(%v) = false, want true", err)
		}
	}
	if IsFatal(ErrNACK) {
		t.Error("IsFatal(ErrNACK) = true, want false")
	}
	if IsFatal(nil) {
		t.Error("IsFatal(nil) = true, want false")
	}
}

func TestTypedErrorsUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("device busy")
	ferr := &FlashError{Op: "program", Addr: 0x08009000, Len: 2048, Err: cause}
	if !errors.Is(ferr, cause) || !errors.Is(ferr, ErrFlashFault) {
		t.Errorf("FlashError should match both its cause and ErrFlashFault")
	}
	if !strings.Contains(ferr.Error(), "0x08009000") {
		t.Errorf("FlashError message %q lacks address", ferr.Error())
	}

	perr := &ProtocolError{Sequence: 4, Total: 5, Expected: 3, Err: ErrUnexpectedSequence}
	if !errors.Is(perr, ErrUnexpectedSequence) || !errors.Is(perr, ErrProtocolFault) {
		t.Errorf("ProtocolError should match both its cause and ErrProtocolFault")
	}
	if !strings.Contains(perr.Error(), "expected 3") {
		t.Errorf("ProtocolError message %q lacks expected sequence", perr.Error())
	}

	verr := &ValidationError{Slot: "factory", Err: ErrBadMagic}
	if !errors.Is(verr, ErrBadMagic) || !errors.Is(verr, ErrValidationFault) {
		t.Errorf("ValidationError should match both its cause and ErrValidationFault")
	}
	if errors.Is(verr, ErrFlashFault) {
		t.Errorf("ValidationError must not match ErrFlashFault")
	}

	var terr *TransportError
	if !errors.As(fmt.Errorf("send: %w", NewNACKError("tx", "0x21")), &terr) || !terr.Retryable {
		t.Errorf("NACK error should be a retryable TransportError")
	}
}
