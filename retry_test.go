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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
		RetryTimeout:      time.Second,
	}
}

func TestRetryWithConfig_SucceedsAfterNACK(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), fastRetryConfig(), func() error {
		calls++
		if calls < 3 {
			return NewNACKError("tx", "0x21")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithConfig_StopsOnPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	perm := errors.New("bus gone")
	err := RetryWithConfig(context.Background(), fastRetryConfig(), func() error {
		calls++
		return perm
	})
	require.ErrorIs(t, err, perm)
	assert.Equal(t, 1, calls)
}

func TestRetryWithConfig_Exhausted(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), fastRetryConfig(), func() error {
		calls++
		return ErrNACK
	})
	require.ErrorIs(t, err, ErrNACK)
	assert.Contains(t, err.Error(), "retries exhausted")
	assert.Equal(t, 3, calls)
}

func TestRetryWithConfig_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetryConfig()
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour

	err := RetryWithConfig(ctx, cfg, func() error {
		cancel()
		return ErrNACK
	})
	require.ErrorIs(t, err, ErrNACK)
	assert.Contains(t, err.Error(), "cancelled")
}

func TestRetryConfigBackoff(t *testing.T) {
	t.Parallel()

	cfg := &RetryConfig{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond, BackoffMultiplier: 2}
	assert.Equal(t, 10*time.Millisecond, cfg.backoff(0, nil))
	assert.Equal(t, 20*time.Millisecond, cfg.backoff(1, nil))
	assert.Equal(t, 40*time.Millisecond, cfg.backoff(2, nil))
	assert.Equal(t, 50*time.Millisecond, cfg.backoff(3, nil))

	cfg.Jitter = 0.5
	assert.Equal(t, 15*time.Millisecond, cfg.backoff(0, func() float64 { return 1 }))
	assert.Equal(t, 5*time.Millisecond, cfg.backoff(0, func() float64 { return 0 }))
}
