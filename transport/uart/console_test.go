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

package uart

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipeMonitor(t *testing.T) (*Monitor, *io.PipeWriter) {
	t.Helper()
	pr, pw := io.Pipe()
	m := NewMonitor(pr, "pipe")
	t.Cleanup(func() {
		_ = pw.Close()
		_ = m.Close()
	})
	return m, pw
}

func TestMonitor_WaitFor(t *testing.T) {
	t.Parallel()

	m, pw := newPipeMonitor(t)
	go func() {
		_, _ = io.WriteString(pw, "level=info msg=\"Launching the bootloader\"\r\n\r\n")
		_, _ = io.WriteString(pw, "level=info msg=\""+ReadyMarker+"\"\r\n")
		_, _ = io.WriteString(pw, "level=info msg=\""+StartMarker+" at 0x8009400\"\n")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	line, next, err := m.WaitFor(ctx, 0, ReadyMarker)
	require.NoError(t, err)
	assert.Contains(t, line, ReadyMarker)
	assert.Equal(t, 2, next)

	line, next, err = m.WaitFor(ctx, next, StartMarker)
	require.NoError(t, err)
	assert.Equal(t, "level=info msg=\"Starting the application at 0x8009400\"", line)
	assert.Equal(t, 3, next)

	assert.Len(t, m.Lines(), 3)
	assert.Equal(t, 3, m.Mark())
}

func TestMonitor_WaitForSkipsOldLines(t *testing.T) {
	t.Parallel()

	m, pw := newPipeMonitor(t)
	_, err := io.WriteString(pw, ReadyMarker+"\n")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, mark, err := m.WaitFor(ctx, 0, ReadyMarker)
	require.NoError(t, err)

	short, cancelShort := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancelShort()
	_, _, err = m.WaitFor(short, mark, ReadyMarker)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMonitor_EndOfStream(t *testing.T) {
	t.Parallel()

	m, pw := newPipeMonitor(t)
	go func() {
		_, _ = io.WriteString(pw, "no markers here\n")
		_ = pw.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _, err := m.WaitFor(ctx, 0, StartMarker)
	require.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, []string{"no markers here"}, m.Lines())
}

func TestMonitor_CloseUnblocksWaiters(t *testing.T) {
	t.Parallel()

	m, _ := newPipeMonitor(t)
	errCh := make(chan error, 1)
	go func() {
		_, _, err := m.WaitFor(context.Background(), 0, StartMarker)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, m.Close())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, err, io.ErrClosedPipe)
	case <-time.After(time.Second):
		t.Fatal("WaitFor did not return after Close")
	}
}

func TestOpen_MissingPort(t *testing.T) {
	t.Parallel()

	_, err := Open("/dev/does-not-exist-i2cboot", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/does-not-exist-i2cboot")
}
