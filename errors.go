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
)

// Fault kinds. Every fault on the device side ends the boot attempt with
// a system reset.
var (
	ErrFlashFault           = errors.New("flash fault")
	ErrProtocolFault        = errors.New("protocol fault")
	ErrValidationFault      = errors.New("validation fault")
	ErrArbitrationExhausted = errors.New("no free bus address")
	ErrTransferTimeout      = errors.New("transfer timed out")
)

// Validation errors
var (
	ErrBadMagic      = errors.New("image magic invalid")
	ErrCRCMismatch   = errors.New("image crc mismatch")
	ErrImageTooLarge = errors.New("image larger than slot")
	ErrNoValidSlot   = errors.New("no image slot configured")
)

// Protocol errors
var (
	ErrUnexpectedSequence = errors.New("unexpected chunk sequence")
	ErrTotalMismatch      = errors.New("chunk total changed during transfer")
	ErrInvalidTotal       = errors.New("chunk total is zero")
	ErrShortChunk         = errors.New("short chunk")
)

// Flash and configuration errors
var (
	ErrNotAligned       = errors.New("range not sector aligned")
	ErrOutOfRange       = errors.New("address outside flash")
	ErrInvalidLayout    = errors.New("invalid flash layout")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Host-side transport errors
var (
	ErrNACK             = errors.New("not acknowledged")
	ErrTransportTimeout = errors.New("transport timeout")
	ErrBadAck           = errors.New("unexpected acknowledgement byte")
)

// ErrorType classifies errors for fault handling and retry decisions.
type ErrorType int

const (
	// ErrorTypeUnknown is an unclassified error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeFlash is an erase, program or read failure
	ErrorTypeFlash
	// ErrorTypeProtocol is a malformed or out-of-order chunk
	ErrorTypeProtocol
	// ErrorTypeValidation is a bad magic or CRC
	ErrorTypeValidation
	// ErrorTypeArbitration means no bus address could be claimed
	ErrorTypeArbitration
	// ErrorTypeTimeout is an expired wait
	ErrorTypeTimeout
	// ErrorTypeTransient is a host-side bus error worth retrying
	ErrorTypeTransient
	// ErrorTypePermanent is a host-side error that will not go away
	ErrorTypePermanent
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeFlash:
		return "flash"
	case ErrorTypeProtocol:
		return "protocol"
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeArbitration:
		return "arbitration"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// FlashError wraps a failed flash operation.
type FlashError struct {
	Err  error
	Op   string
	Addr uint32
	Len  uint32
}

func (e *FlashError) Error() string {
	return fmt.Sprintf("flash %s at 0x%08X (+%d): %v", e.Op, e.Addr, e.Len, e.Err)
}

func (e *FlashError) Unwrap() error {
	return e.Err
}

// Is makes every FlashError match ErrFlashFault.
func (*FlashError) Is(target error) bool {
	return target == ErrFlashFault
}

// ProtocolError describes a chunk the receiver refused.
type ProtocolError struct {
	Err      error
	Sequence byte
	Total    byte
	Expected byte
}

func (e *ProtocolError) Error() string {
	if e.Expected != 0 {
		return fmt.Sprintf("chunk %d/%d (expected %d): %v", e.Sequence, e.Total, e.Expected, e.Err)
	}
	return fmt.Sprintf("chunk %d/%d: %v", e.Sequence, e.Total, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Is makes every ProtocolError match ErrProtocolFault.
func (*ProtocolError) Is(target error) bool {
	return target == ErrProtocolFault
}

// ValidationError reports why an image slot was rejected.
type ValidationError struct {
	Err  error
	Slot string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("slot %s: %v", e.Slot, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is makes every ValidationError match ErrValidationFault.
func (*ValidationError) Is(target error) bool {
	return target == ErrValidationFault
}

// TransportError wraps a host-side bus error with retry information.
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Op, e.Port, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a TransportError, deriving Retryable from the
// error type.
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// NewNACKError reports that nobody acknowledged a transaction.
func NewNACKError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrNACK, ErrorTypeTransient)
}

// GetErrorType classifies err.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Type
	}

	switch {
	case errors.Is(err, ErrFlashFault):
		return ErrorTypeFlash
	case errors.Is(err, ErrProtocolFault):
		return ErrorTypeProtocol
	case errors.Is(err, ErrValidationFault):
		return ErrorTypeValidation
	case errors.Is(err, ErrArbitrationExhausted):
		return ErrorTypeArbitration
	case errors.Is(err, ErrTransferTimeout), errors.Is(err, ErrTransportTimeout):
		return ErrorTypeTimeout
	case errors.Is(err, ErrNACK), errors.Is(err, ErrBadAck):
		return ErrorTypeTransient
	default:
		return ErrorTypeUnknown
	}
}

// IsRetryable reports whether a host-side operation may be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	return errors.Is(err, ErrNACK) || errors.Is(err, ErrTransportTimeout) || errors.Is(err, ErrBadAck)
}

// IsFatal reports whether err must end the current boot attempt.
func IsFatal(err error) bool {
	switch GetErrorType(err) {
	case ErrorTypeFlash, ErrorTypeProtocol, ErrorTypeValidation, ErrorTypeArbitration, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}
