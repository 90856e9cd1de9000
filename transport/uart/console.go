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

// Package uart follows a bootloader's debug console over a serial port.
package uart

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	i2cboot "github.com/ZaparooProject/go-i2cboot"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the console speed of the reference boards
	DefaultBaudRate = 115200

	// ReadyMarker is printed when the bootloader starts accepting chunks
	ReadyMarker = "Bootloader ready for firmware update"

	// StartMarker is printed right before control passes to the application
	StartMarker = "Starting the application"

	// maxLine bounds a single console line
	maxLine = 4096
)

// ErrClosed is returned by WaitFor once the console has gone away.
var ErrClosed = errors.New("console closed")

// Monitor collects console lines in the background.
type Monitor struct {
	port    io.ReadCloser
	changed chan struct{}
	err     error
	name    string
	lines   []string
	mu      sync.Mutex
	closed  bool
}

// Open opens a serial port at the given baud rate and starts reading it.
func Open(portName string, baud int) (*Monitor, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, i2cboot.NewTransportError("open", portName, err, i2cboot.ErrorTypePermanent)
	}
	return NewMonitor(port, portName), nil
}

// NewMonitor starts reading lines from r. The monitor owns r and closes it.
func NewMonitor(r io.ReadCloser, name string) *Monitor {
	m := &Monitor{
		port:    r,
		name:    name,
		changed: make(chan struct{}),
	}
	go m.read()
	return m
}

func (m *Monitor) read() {
	scanner := bufio.NewScanner(m.port)
	scanner.Buffer(make([]byte, 0, 256), maxLine)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		i2cboot.Logger().WithField("port", m.name).Debug(line)

		m.mu.Lock()
		m.lines = append(m.lines, line)
		m.notify()
		m.mu.Unlock()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = scanner.Err()
	m.closed = true
	m.notify()
}

// notify wakes every waiter. m.mu must be held.
func (m *Monitor) notify() {
	close(m.changed)
	m.changed = make(chan struct{})
}

// Lines returns a copy of every line read so far.
func (m *Monitor) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}

// Mark returns a position for WaitFor that skips lines already read.
func (m *Monitor) Mark() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lines)
}

// WaitFor blocks until a line at or after position from contains text and
// returns that line with the position after it.
func (m *Monitor) WaitFor(ctx context.Context, from int, text string) (string, int, error) {
	for {
		m.mu.Lock()
		for i := max(from, 0); i < len(m.lines); i++ {
			if strings.Contains(m.lines[i], text) {
				line := m.lines[i]
				m.mu.Unlock()
				return line, i + 1, nil
			}
		}
		from = len(m.lines)
		closed, err, changed := m.closed, m.err, m.changed
		m.mu.Unlock()

		if closed {
			if err != nil {
				return "", from, fmt.Errorf("%w: %s: %w", ErrClosed, m.name, err)
			}
			return "", from, fmt.Errorf("%w: %s", ErrClosed, m.name)
		}

		select {
		case <-ctx.Done():
			return "", from, fmt.Errorf("waiting for %q on %s: %w", text, m.name, ctx.Err())
		case <-changed:
		}
	}
}

// Close stops the monitor and releases the port.
func (m *Monitor) Close() error {
	if err := m.port.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", m.name, err)
	}
	return nil
}
