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
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
)

// ErrNoReadPending is returned by a simulated target asked to answer a
// read nobody requested.
var ErrNoReadPending = errors.New("no read transaction pending")

type scriptedEvent struct {
	reply chan []byte
	data  []byte
	kind  BusEvent
}

// MockTarget is a scripted Target. Events are returned in the order they
// were queued; once the script is exhausted Receive blocks until its
// context ends.
type MockTarget struct {
	ReceiveErr error
	ReadErr    error
	script     []scriptedEvent
	current    scriptedEvent
	replies    [][]byte
	frequency  physic.Frequency
	mu         sync.Mutex
	address    uint16
}

// NewMockTarget creates an empty scripted target.
func NewMockTarget() *MockTarget {
	return &MockTarget{}
}

// QueueEvent appends an event carrying data to the script.
func (m *MockTarget) QueueEvent(kind BusEvent, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptedEvent{kind: kind, data: append([]byte(nil), data...)})
}

// QueueChunk queues an addressed write carrying one encoded chunk.
func (m *MockTarget) QueueChunk(sequence, total byte, payload []byte, dataSize int) {
	wire := make([]byte, 2+dataSize)
	for i := range wire {
		wire[i] = 0xFF
	}
	wire[0], wire[1] = sequence, total
	copy(wire[2:], payload)
	m.QueueEvent(EventWriteAddressed, wire)
}

// Pending returns the number of events not yet received.
func (m *MockTarget) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.script)
}

// Replies returns everything written back to read requests.
func (m *MockTarget) Replies() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.replies...)
}

// Address returns the configured target address.
func (m *MockTarget) Address() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.address
}

// SetAddress implements Target.
func (m *MockTarget) SetAddress(addr uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.address = addr
	return nil
}

// SetFrequency implements Target.
func (m *MockTarget) SetFrequency(f physic.Frequency) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frequency = f
	return nil
}

// Receive implements Target.
func (m *MockTarget) Receive(ctx context.Context) (BusEvent, error) {
	m.mu.Lock()
	if m.ReceiveErr != nil {
		err := m.ReceiveErr
		m.mu.Unlock()
		return EventNone, err
	}
	if len(m.script) > 0 {
		m.current = m.script[0]
		m.script = m.script[1:]
		kind := m.current.kind
		m.mu.Unlock()
		return kind, nil
	}
	m.mu.Unlock()

	<-ctx.Done()
	return EventNone, ctx.Err()
}

// Read implements Target.
func (m *MockTarget) Read(buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	return copy(buf, m.current.data), nil
}

// Write implements Target.
func (m *MockTarget) Write(buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.kind != EventReadAddressed {
		return ErrNoReadPending
	}
	m.replies = append(m.replies, append([]byte(nil), buf...))
	return nil
}

// SimBus simulates a multi-drop bus. The bus itself is an i2c.Bus for a
// host controller; attached SimNodes are devices that can act both as
// controller and as target.
type SimBus struct {
	nodes []*SimNode
	// ReadTimeout bounds how long a read waits for the target to answer
	ReadTimeout time.Duration
	mu          sync.Mutex
	probes      int
}

// NewSimBus creates an empty bus.
func NewSimBus() *SimBus {
	return &SimBus{ReadTimeout: time.Second}
}

// Attach connects a new device with no address.
func (b *SimBus) Attach() *SimNode {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := &SimNode{bus: b, events: make(chan scriptedEvent, 256)}
	b.nodes = append(b.nodes, n)
	return n
}

// Probes returns how many zero-length writes were sent on the bus.
func (b *SimBus) Probes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.probes
}

func (*SimBus) String() string {
	return "simbus"
}

// Tx implements i2c.Bus for the host controller.
func (b *SimBus) Tx(addr uint16, w, r []byte) error {
	return b.transact(nil, addr, w, r)
}

// SetSpeed implements i2c.Bus.
func (*SimBus) SetSpeed(physic.Frequency) error {
	return nil
}

func (b *SimBus) transact(from *SimNode, addr uint16, w, r []byte) error {
	if addr == 0 {
		for _, n := range b.snapshot() {
			if n != from && len(w) > 0 {
				n.events <- scriptedEvent{kind: EventWriteGeneral, data: append([]byte(nil), w...)}
			}
		}
		return nil
	}

	target := b.lookup(addr, from)
	if len(w) == 0 && len(r) == 0 {
		b.mu.Lock()
		b.probes++
		b.mu.Unlock()
	}
	if target == nil {
		return NewNACKError("tx", fmt.Sprintf("%s@0x%02X", b, addr))
	}

	if len(w) > 0 {
		target.events <- scriptedEvent{kind: EventWriteAddressed, data: append([]byte(nil), w...)}
	}
	if len(r) > 0 {
		reply := make(chan []byte, 1)
		target.events <- scriptedEvent{kind: EventReadAddressed, reply: reply}
		select {
		case data := <-reply:
			copy(r, data)
		case <-time.After(b.ReadTimeout):
			return NewTransportError("tx", b.String(), ErrTransportTimeout, ErrorTypeTimeout)
		}
	}
	return nil
}

func (b *SimBus) snapshot() []*SimNode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*SimNode(nil), b.nodes...)
}

func (b *SimBus) lookup(addr uint16, from *SimNode) *SimNode {
	for _, n := range b.snapshot() {
		if n != from && n.Address() == addr {
			return n
		}
	}
	return nil
}

// SimNode is one device on a SimBus.
type SimNode struct {
	bus       *SimBus
	events    chan scriptedEvent
	current   scriptedEvent
	frequency physic.Frequency
	mu        sync.Mutex
	address   uint16
}

func (n *SimNode) String() string {
	return fmt.Sprintf("simnode@0x%02X", n.Address())
}

// Address returns the node's target address, 0 when unclaimed.
func (n *SimNode) Address() uint16 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.address
}

// Tx implements i2c.Bus for the node in controller role.
func (n *SimNode) Tx(addr uint16, w, r []byte) error {
	return n.bus.transact(n, addr, w, r)
}

// SetSpeed implements i2c.Bus.
func (n *SimNode) SetSpeed(f physic.Frequency) error {
	return n.SetFrequency(f)
}

// SetAddress implements Target.
func (n *SimNode) SetAddress(addr uint16) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.address = addr
	return nil
}

// SetFrequency implements Target.
func (n *SimNode) SetFrequency(f physic.Frequency) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.frequency = f
	return nil
}

// Receive implements Target.
func (n *SimNode) Receive(ctx context.Context) (BusEvent, error) {
	select {
	case ev := <-n.events:
		n.current = ev
		return ev.kind, nil
	case <-ctx.Done():
		return EventNone, ctx.Err()
	}
}

// Read implements Target.
func (n *SimNode) Read(buf []byte) (int, error) {
	return copy(buf, n.current.data), nil
}

// Write implements Target.
func (n *SimNode) Write(buf []byte) error {
	if n.current.reply == nil {
		return ErrNoReadPending
	}
	n.current.reply <- append([]byte(nil), buf...)
	n.current.reply = nil
	return nil
}

// MockPlatform records resets and application starts.
type MockPlatform struct {
	starts []uint32
	Cause  ResetCause
	ID     uint32
	mu     sync.Mutex
	resets int
}

// NewMockPlatform creates a platform reporting cause and id.
func NewMockPlatform(cause ResetCause, id uint32) *MockPlatform {
	return &MockPlatform{Cause: cause, ID: id}
}

// ResetCause implements Platform.
func (p *MockPlatform) ResetCause() ResetCause {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Cause
}

// UniqueID implements Platform.
func (p *MockPlatform) UniqueID() uint32 {
	return p.ID
}

// SystemReset implements Platform.
func (p *MockPlatform) SystemReset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
}

// StartApplication implements Platform.
func (p *MockPlatform) StartApplication(addr uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts = append(p.starts, addr)
}

// Resets returns how many times SystemReset was called.
func (p *MockPlatform) Resets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}

// Starts returns the addresses passed to StartApplication.
func (p *MockPlatform) Starts() []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint32(nil), p.starts...)
}

// SetCause changes the reported reset cause, e.g. between simulated boots.
func (p *MockPlatform) SetCause(cause ResetCause) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Cause = cause
}
