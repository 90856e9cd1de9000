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

// Package testing provides simulated hardware for bootloader tests
package testing

import (
	"errors"
	"fmt"
	"sync"
)

// Simulated device errors
var (
	ErrNoSession      = errors.New("flash session not open")
	ErrUnaligned      = errors.New("range not sector aligned")
	ErrNotErased      = errors.New("destination not erased")
	ErrOutOfRange     = errors.New("address out of range")
	ErrInjectedFault  = errors.New("injected device fault")
	ErrPoweredOff     = errors.New("device powered off")
	ErrSessionAlready = errors.New("flash session already open")
)

// OpKind identifies a recorded flash operation.
type OpKind string

// Operation kinds
const (
	OpErase   OpKind = "erase"
	OpProgram OpKind = "program"
)

// FlashOp is one recorded mutating operation.
type FlashOp struct {
	Kind OpKind
	Addr uint32
	Len  uint32
}

// Sector describes one erasable unit.
type Sector struct {
	Addr uint32
	Size uint32
}

// VirtualFlash simulates NOR flash: erase sets bytes to 0xFF, program can
// only clear bits, and erases must cover whole sectors. Sector sizes may
// vary across the address space.
type VirtualFlash struct {
	mem          []byte
	sectors      []Sector
	ops          []FlashOp
	base         uint32
	eraseCount   int
	programCount int
	failErase    int
	failProgram  int
	sessions     int
	mu           sync.Mutex
	open         bool
	cutPower     bool
	poweredOff   bool
}

// NewVirtualFlash creates a flash starting at base with consecutive
// sectors of the given sizes. Memory starts erased.
func NewVirtualFlash(base uint32, sectorSizes ...uint32) *VirtualFlash {
	vf := &VirtualFlash{base: base}
	addr := base
	for _, size := range sectorSizes {
		vf.sectors = append(vf.sectors, Sector{Addr: addr, Size: size})
		addr += size
	}
	vf.mem = make([]byte, addr-base)
	for i := range vf.mem {
		vf.mem[i] = 0xFF
	}
	return vf
}

// NewUniformFlash creates a flash of count sectors of equal size.
func NewUniformFlash(base, sectorSize uint32, count int) *VirtualFlash {
	sizes := make([]uint32, count)
	for i := range sizes {
		sizes[i] = sectorSize
	}
	return NewVirtualFlash(base, sizes...)
}

// Init opens a session.
func (vf *VirtualFlash) Init() error {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	if vf.poweredOff {
		return ErrPoweredOff
	}
	if vf.open {
		return ErrSessionAlready
	}
	vf.open = true
	vf.sessions++
	return nil
}

// Deinit closes the session.
func (vf *VirtualFlash) Deinit() error {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	vf.open = false
	return nil
}

// SectorSize returns the size of the sector containing addr, or 0 when
// addr is outside the device.
func (vf *VirtualFlash) SectorSize(addr uint32) uint32 {
	if s, ok := vf.sectorAt(addr); ok {
		return s.Size
	}
	return 0
}

// Erase erases [addr, addr+length). Both ends must fall on sector
// boundaries.
func (vf *VirtualFlash) Erase(addr, length uint32) error {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	if err := vf.checkWritable(); err != nil {
		return err
	}
	if err := vf.checkAligned(addr, length); err != nil {
		return err
	}
	vf.eraseCount++
	if vf.failErase != 0 && vf.eraseCount == vf.failErase {
		return fmt.Errorf("erase #%d: %w", vf.eraseCount, ErrInjectedFault)
	}
	off := addr - vf.base
	for i := off; i < off+length; i++ {
		vf.mem[i] = 0xFF
	}
	vf.ops = append(vf.ops, FlashOp{Kind: OpErase, Addr: addr, Len: length})
	if vf.cutPower {
		vf.cutPower = false
		vf.poweredOff = true
		vf.open = false
	}
	return nil
}

// Program writes buf at addr. Every target bit that must go from 0 to 1
// makes the operation fail.
func (vf *VirtualFlash) Program(buf []byte, addr uint32) error {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	if err := vf.checkWritable(); err != nil {
		return err
	}
	if err := vf.checkRange(addr, uint32(len(buf))); err != nil {
		return err
	}
	vf.programCount++
	if vf.failProgram != 0 && vf.programCount == vf.failProgram {
		return fmt.Errorf("program #%d: %w", vf.programCount, ErrInjectedFault)
	}
	off := addr - vf.base
	for i, b := range buf {
		if vf.mem[off+uint32(i)]&b != b {
			return fmt.Errorf("program 0x%08X: %w", addr+uint32(i), ErrNotErased)
		}
	}
	for i, b := range buf {
		vf.mem[off+uint32(i)] &= b
	}
	vf.ops = append(vf.ops, FlashOp{Kind: OpProgram, Addr: addr, Len: uint32(len(buf))})
	return nil
}

// Read copies len(buf) bytes at addr into buf. Reads need no session.
func (vf *VirtualFlash) Read(buf []byte, addr uint32) error {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	if err := vf.checkRange(addr, uint32(len(buf))); err != nil {
		return err
	}
	off := addr - vf.base
	copy(buf, vf.mem[off:off+uint32(len(buf))])
	return nil
}

// Load writes data directly, bypassing erase rules. For seeding tests.
func (vf *VirtualFlash) Load(addr uint32, data []byte) {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	off := addr - vf.base
	copy(vf.mem[off:], data)
}

// Bytes returns a copy of n bytes at addr.
func (vf *VirtualFlash) Bytes(addr, n uint32) []byte {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	off := addr - vf.base
	out := make([]byte, n)
	copy(out, vf.mem[off:off+n])
	return out
}

// FailEraseAt makes the n-th erase from now fail with ErrInjectedFault.
func (vf *VirtualFlash) FailEraseAt(n int) {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	vf.failErase = vf.eraseCount + n
}

// FailProgramAt makes the n-th program from now fail with ErrInjectedFault.
func (vf *VirtualFlash) FailProgramAt(n int) {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	vf.failProgram = vf.programCount + n
}

// CutPowerAfterNextErase simulates a power loss right after the next
// successful erase. Every later operation fails until PowerCycle.
func (vf *VirtualFlash) CutPowerAfterNextErase() {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	vf.cutPower = true
}

// PowerCycle restores power. Memory contents survive.
func (vf *VirtualFlash) PowerCycle() {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	vf.poweredOff = false
	vf.open = false
}

// Ops returns the recorded erase and program operations.
func (vf *VirtualFlash) Ops() []FlashOp {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	return append([]FlashOp(nil), vf.ops...)
}

// OpsOfKind returns the recorded operations of one kind.
func (vf *VirtualFlash) OpsOfKind(kind OpKind) []FlashOp {
	var out []FlashOp
	for _, op := range vf.Ops() {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// ResetOps clears the operation log.
func (vf *VirtualFlash) ResetOps() {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	vf.ops = nil
}

// IsOpen reports whether a session is currently open.
func (vf *VirtualFlash) IsOpen() bool {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	return vf.open
}

// Sessions returns how many sessions were opened.
func (vf *VirtualFlash) Sessions() int {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	return vf.sessions
}

func (vf *VirtualFlash) sectorAt(addr uint32) (Sector, bool) {
	for _, s := range vf.sectors {
		if addr >= s.Addr && addr-s.Addr < s.Size {
			return s, true
		}
	}
	return Sector{}, false
}

func (vf *VirtualFlash) checkWritable() error {
	if vf.poweredOff {
		return ErrPoweredOff
	}
	if !vf.open {
		return ErrNoSession
	}
	return nil
}

func (vf *VirtualFlash) checkRange(addr, length uint32) error {
	end := uint64(vf.base) + uint64(len(vf.mem))
	if addr < vf.base || uint64(addr)+uint64(length) > end {
		return fmt.Errorf("0x%08X+%d: %w", addr, length, ErrOutOfRange)
	}
	return nil
}

func (vf *VirtualFlash) checkAligned(addr, length uint32) error {
	if err := vf.checkRange(addr, length); err != nil {
		return err
	}
	s, ok := vf.sectorAt(addr)
	if !ok || s.Addr != addr || length == 0 {
		return fmt.Errorf("erase 0x%08X: %w", addr, ErrUnaligned)
	}
	end := addr + length
	for cur := addr; cur < end; {
		s, ok := vf.sectorAt(cur)
		if !ok {
			return fmt.Errorf("erase 0x%08X: %w", cur, ErrOutOfRange)
		}
		cur = s.Addr + s.Size
		if cur > end {
			return fmt.Errorf("erase end 0x%08X: %w", end, ErrUnaligned)
		}
	}
	return nil
}
