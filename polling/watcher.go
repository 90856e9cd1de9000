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

package polling

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-i2cboot/detection"
)

// ScanFunc returns the devices visible right now.
type ScanFunc func(ctx context.Context) ([]detection.DeviceInfo, error)

// Callbacks are invoked from the polling goroutine.
type Callbacks struct {
	OnAppeared func(device detection.DeviceInfo)
	OnGone     func(device detection.DeviceInfo)
}

// Metrics tracks operational metrics for a Watcher
type Metrics struct {
	PollCycles      int64         // Total number of scans
	PollErrors      int64         // Scans that failed
	Appeared        int64         // Devices reported as new
	LastPollLatency time.Duration // Duration of the last scan
}

type seen struct {
	lastSeen time.Time
	info     detection.DeviceInfo
}

// Watcher scans a bus periodically and reports devices that appear or
// disappear.
type Watcher struct {
	scan      ScanFunc
	config    *Config
	callbacks Callbacks
	present   map[string]*seen
	mu        sync.Mutex
	// Atomic counters for metrics
	pollCycles      int64
	pollErrors      int64
	appeared        int64
	lastPollLatency int64 // in nanoseconds
	// Adaptive polling state
	currentInterval int64 // in nanoseconds
	lastDetection   int64 // Unix nanoseconds
}

// NewWatcher creates a watcher for one scan function.
func NewWatcher(scan ScanFunc, config *Config, callbacks Callbacks) *Watcher {
	if config == nil {
		config = DefaultConfig()
	}
	return &Watcher{
		scan:            scan,
		config:          config,
		callbacks:       callbacks,
		present:         make(map[string]*seen),
		currentInterval: config.PollInterval.Nanoseconds(),
		lastDetection:   time.Now().UnixNano(),
	}
}

// Run polls until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		w.Poll(ctx)
		timer.Reset(w.CurrentInterval())
	}
}

// Poll runs a single scan and updates the device set.
func (w *Watcher) Poll(ctx context.Context) {
	start := time.Now()
	devices, err := w.scan(ctx)
	atomic.AddInt64(&w.pollCycles, 1)
	atomic.StoreInt64(&w.lastPollLatency, time.Since(start).Nanoseconds())
	if err != nil && !errors.Is(err, detection.ErrNoDevicesFound) {
		// A failed scan says nothing about presence
		atomic.AddInt64(&w.pollErrors, 1)
		return
	}

	var appeared, gone []detection.DeviceInfo
	w.mu.Lock()
	for _, d := range devices {
		entry, ok := w.present[d.Path]
		if !ok {
			entry = &seen{}
			w.present[d.Path] = entry
			appeared = append(appeared, d)
		}
		entry.info = d
		entry.lastSeen = start
	}
	for path, entry := range w.present {
		if start.Sub(entry.lastSeen) > w.config.RemovalTimeout {
			delete(w.present, path)
			gone = append(gone, entry.info)
		}
	}
	w.mu.Unlock()

	if len(devices) > 0 {
		atomic.StoreInt64(&w.lastDetection, start.UnixNano())
	}
	atomic.AddInt64(&w.appeared, int64(len(appeared)))
	w.adjustPollInterval(start)

	if w.callbacks.OnAppeared != nil {
		for _, d := range appeared {
			w.callbacks.OnAppeared(d)
		}
	}
	if w.callbacks.OnGone != nil {
		for _, d := range gone {
			w.callbacks.OnGone(d)
		}
	}
}

// adjustPollInterval slows scanning down once the bus has been empty for
// IdleAfter.
func (w *Watcher) adjustPollInterval(now time.Time) {
	last := time.Unix(0, atomic.LoadInt64(&w.lastDetection))
	interval := w.config.PollInterval
	if now.Sub(last) > w.config.IdleAfter && w.config.IdleInterval > interval {
		interval = w.config.IdleInterval
	}
	atomic.StoreInt64(&w.currentInterval, interval.Nanoseconds())
}

// Present returns the devices currently considered present, by path.
func (w *Watcher) Present() []detection.DeviceInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	devices := make([]detection.DeviceInfo, 0, len(w.present))
	for _, entry := range w.present {
		devices = append(devices, entry.info)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Path < devices[j].Path })
	return devices
}

// Metrics returns current operational metrics
func (w *Watcher) Metrics() Metrics {
	return Metrics{
		PollCycles:      atomic.LoadInt64(&w.pollCycles),
		PollErrors:      atomic.LoadInt64(&w.pollErrors),
		Appeared:        atomic.LoadInt64(&w.appeared),
		LastPollLatency: time.Duration(atomic.LoadInt64(&w.lastPollLatency)),
	}
}

// CurrentInterval returns the current adaptive polling interval
func (w *Watcher) CurrentInterval() time.Duration {
	return time.Duration(atomic.LoadInt64(&w.currentInterval))
}

// WaitFor polls until a device matching match appears or ctx ends.
func WaitFor(ctx context.Context, scan ScanFunc, config *Config,
	match func(detection.DeviceInfo) bool,
) (detection.DeviceInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once  sync.Once
		found detection.DeviceInfo
	)
	w := NewWatcher(scan, config, Callbacks{
		OnAppeared: func(d detection.DeviceInfo) {
			if match == nil || match(d) {
				once.Do(func() {
					found = d
					cancel()
				})
			}
		},
	})

	err := w.Run(ctx)
	if found.Path != "" {
		return found, nil
	}
	return detection.DeviceInfo{}, err
}
