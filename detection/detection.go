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

// Package detection finds bootloaders and debug consoles attached to the
// host.
package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNoDevicesFound is returned when a scan finds nothing usable
	ErrNoDevicesFound = errors.New("no devices found")
	// ErrUnsupportedPlatform is returned when a transport cannot be scanned on this OS
	ErrUnsupportedPlatform = errors.New("detection not supported on this platform")
	// ErrDetectionTimeout is returned when the scan context ends early
	ErrDetectionTimeout = errors.New("detection timed out")
)

// Mode controls how intrusive a scan may be.
type Mode int

const (
	// Passive lists candidates without talking to them
	Passive Mode = iota
	// Safe reads a single byte from each candidate
	Safe
	// Full also reports responders that did not identify as bootloaders
	Full
)

func (m Mode) String() string {
	switch m {
	case Passive:
		return "passive"
	case Safe:
		return "safe"
	case Full:
		return "full"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Confidence ranks how sure a detector is about a result.
type Confidence int

const (
	Low Confidence = iota
	Medium
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return fmt.Sprintf("Confidence(%d)", int(c))
	}
}

// DeviceInfo describes one detected device.
type DeviceInfo struct {
	Metadata   map[string]string
	Transport  string
	Path       string
	Name       string
	Confidence Confidence
}

// Options configures a scan.
type Options struct {
	// IgnorePaths lists device paths that are never reported
	IgnorePaths []string
	// Blocklist lists USB VID:PID pairs that are never opened
	Blocklist []string
	Timeout   time.Duration
	Mode      Mode
}

// DefaultOptions returns a safe scan with the default blocklist.
func DefaultOptions() *Options {
	return &Options{
		Mode:      Safe,
		Timeout:   5 * time.Second,
		Blocklist: DefaultBlocklist(),
	}
}

// Detector scans one transport.
type Detector interface {
	Transport() string
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Detector{}
)

// RegisterDetector makes a detector available to DetectAll. Registering the
// same transport twice replaces the earlier detector.
func RegisterDetector(d Detector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.Transport()] = d
}

// Transports returns the registered transport names in sorted order.
func Transports() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DetectTransport runs the detector registered for transport.
func DetectTransport(ctx context.Context, transport string, opts *Options) ([]DeviceInfo, error) {
	registryMu.RLock()
	d, ok := registry[transport]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no detector for %q", ErrUnsupportedPlatform, transport)
	}
	return run(ctx, d, opts)
}

// DetectAll runs every registered detector and merges the results, most
// confident first. Detectors that fail are skipped.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	var devices []DeviceInfo
	for _, name := range Transports() {
		found, err := DetectTransport(ctx, name, opts)
		if err != nil {
			if errors.Is(err, ErrDetectionTimeout) {
				return devices, err
			}
			continue
		}
		devices = append(devices, found...)
	}
	if len(devices) == 0 {
		return nil, ErrNoDevicesFound
	}
	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].Confidence > devices[j].Confidence
	})
	return devices, nil
}

func run(ctx context.Context, d Detector, opts *Options) ([]DeviceInfo, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	return d.Detect(ctx, opts)
}
