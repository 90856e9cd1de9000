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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	i2cboot "github.com/ZaparooProject/go-i2cboot"
	"github.com/ZaparooProject/go-i2cboot/detection"
	i2cdetect "github.com/ZaparooProject/go-i2cboot/detection/i2c"
	// Register the serial console detector
	_ "github.com/ZaparooProject/go-i2cboot/detection/uart"
	"github.com/ZaparooProject/go-i2cboot/firmware"
	"github.com/ZaparooProject/go-i2cboot/internal/frame"
	"github.com/ZaparooProject/go-i2cboot/polling"
	"github.com/ZaparooProject/go-i2cboot/transport/i2c"
	"github.com/ZaparooProject/go-i2cboot/transport/uart"
	"zappem.net/pub/debug/xxd"
)

type config struct {
	bus       *string
	addr      *int
	scan      *bool
	image     *string
	version   *string
	chunk     *int
	console   *string
	baud      *int
	timeout   *time.Duration
	dump      *bool
	debug     *bool
	hexOut    *string
	layout    *string
	readyWait *time.Duration
	wait      *time.Duration
}

func parseFlags() *config {
	cfg := &config{
		bus:  flag.String("bus", "1", "I2C bus number or device path (e.g., 1 or /dev/i2c-1)"),
		addr: flag.Int("addr", 0, "Bootloader address. Leave 0 to scan the bus and use the first bootloader found."),
		scan: flag.Bool("scan", false, "List bootloaders on the bus and exit"),
		image: flag.String("image", "",
			"Application image, raw binary or Intel HEX (.hex) linked for the slot's application address"),
		version: flag.String("version", "0.0.0", "Application version written to the image header"),
		chunk:   flag.Int("chunk", frame.DefaultDataSize, "Chunk payload size in bytes; must match the bootloader"),
		console: flag.String("console", "",
			"Serial port carrying the bootloader console, or \"auto\" to detect one. Leave empty to skip."),
		baud:    flag.Int("baud", uart.DefaultBaudRate, "Console baud rate"),
		timeout: flag.Duration("timeout", 60*time.Second, "Overall timeout for the update"),
		dump:    flag.Bool("dump", false, "Hex dump every chunk before sending it"),
		debug:   flag.Bool("debug", false, "Enable debug output"),
		hexOut: flag.String("hex-out", "",
			"Write the built slot image as Intel HEX to this file and exit"),
		layout: flag.String("layout", "default", "Flash layout: default or dual"),
		readyWait: flag.Duration("ready-wait", 10*time.Second,
			"How long to wait for the bootloader to answer before sending"),
		wait: flag.Duration("wait", 0, "With -addr 0, keep scanning this long for a bootloader to appear"),
	}
	flag.Parse()

	if *cfg.debug {
		i2cboot.SetDebugEnabled(true)
	}

	return cfg
}

func selectLayout(name string) (i2cboot.Layout, error) {
	switch strings.ToLower(name) {
	case "default", "":
		return i2cboot.DefaultLayout(), nil
	case "dual":
		return i2cboot.DualBankLayout(), nil
	default:
		return i2cboot.Layout{}, fmt.Errorf("unknown layout %q", name)
	}
}

// devicePath turns a bus number into its Linux device path.
func devicePath(bus string) string {
	if strings.HasPrefix(bus, "/") {
		return bus
	}
	return "/dev/i2c-" + bus
}

func buildImage(cfg *config, slot i2cboot.Slot) ([]byte, error) {
	app, base, err := firmware.Load(*cfg.image)
	if err != nil {
		return nil, fmt.Errorf("failed to load firmware: %w", err)
	}
	if base != 0 && base != slot.AppAddr {
		_, _ = fmt.Fprintf(os.Stderr, "warning: image starts at 0x%08X, slot %s expects 0x%08X\n",
			base, slot.Name, slot.AppAddr)
	}

	version, err := i2cboot.ParseVersion(*cfg.version)
	if err != nil {
		return nil, err
	}

	image, header, err := firmware.Build(app, version, slot)
	if err != nil {
		return nil, fmt.Errorf("failed to build image: %w", err)
	}
	_, _ = fmt.Printf("Image: %d bytes, version %s, CRC32 0x%08X, slot %s at 0x%08X\n",
		header.Size, header.Version, header.CRC32, slot.Name, slot.HeaderAddr)
	return image, nil
}

func writeHexFile(path string, image []byte, addr uint32) error {
	f, err := os.Create(path) // #nosec G304 -- path comes from the command line
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := firmware.WriteHex(f, image, addr); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	_, _ = fmt.Printf("Wrote %s\n", path)
	return nil
}

// pickBootloader returns the address of the most confident bootloader.
func pickBootloader(devices []detection.DeviceInfo) (uint16, error) {
	for _, confidence := range []detection.Confidence{detection.High, detection.Medium} {
		for _, d := range devices {
			if d.Confidence != confidence {
				continue
			}
			var addr uint16
			if _, err := fmt.Sscanf(d.Metadata["address"], "0x%X", &addr); err == nil {
				return addr, nil
			}
		}
	}
	return 0, detection.ErrNoDevicesFound
}

func scanBus(ctx context.Context, bus string) ([]detection.DeviceInfo, error) {
	devices, err := i2cdetect.ScanPath(ctx, devicePath(bus), detection.DefaultOptions())
	if err != nil {
		return devices, fmt.Errorf("failed to scan %s: %w", devicePath(bus), err)
	}
	return devices, nil
}

func printDevices(devices []detection.DeviceInfo) {
	if len(devices) == 0 {
		_, _ = fmt.Println("No bootloaders found")
		return
	}
	for _, d := range devices {
		_, _ = fmt.Printf("%-20s %-6s %s\n", d.Path, d.Confidence, d.Name)
	}
}

func openConsole(ctx context.Context, cfg *config) (*uart.Monitor, error) {
	port := *cfg.console
	if port == "" {
		return nil, nil
	}
	if port == "auto" {
		devices, err := detection.DetectTransport(ctx, "uart", detection.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to detect a console: %w", err)
		}
		port = devices[0].Path
		_, _ = fmt.Printf("Using console %s (%s)\n", port, devices[0].Name)
	}
	monitor, err := uart.Open(port, *cfg.baud)
	if err != nil {
		return nil, fmt.Errorf("failed to open console: %w", err)
	}
	return monitor, nil
}

func newSender(cfg *config) (*i2c.Sender, error) {
	var opts []i2c.Option
	if *cfg.dump {
		opts = append(opts, i2c.WithChunkHook(func(addr uint16, wire []byte) {
			_, _ = fmt.Printf("chunk %d/%d to 0x%02X:\n", wire[0], wire[1], addr)
			xxd.Print(0, wire)
		}))
	}
	sender, err := i2c.New(*cfg.bus, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus: %w", err)
	}
	return sender, nil
}

func resolveAddress(ctx context.Context, cfg *config) (uint16, error) {
	if *cfg.addr != 0 {
		if *cfg.addr < i2cdetect.FirstAddress || *cfg.addr > i2cdetect.LastAddress {
			return 0, fmt.Errorf("address 0x%02X outside 0x%02X-0x%02X",
				*cfg.addr, i2cdetect.FirstAddress, i2cdetect.LastAddress)
		}
		return uint16(*cfg.addr), nil
	}

	devices, err := findBootloaders(ctx, cfg)
	if err != nil {
		return 0, err
	}
	addr, err := pickBootloader(devices)
	if err != nil {
		return 0, fmt.Errorf("no bootloader on %s: %w", devicePath(*cfg.bus), err)
	}
	_, _ = fmt.Printf("Found bootloader at 0x%02X\n", addr)
	return addr, nil
}

func findBootloaders(ctx context.Context, cfg *config) ([]detection.DeviceInfo, error) {
	scan := func(ctx context.Context) ([]detection.DeviceInfo, error) {
		return scanBus(ctx, *cfg.bus)
	}
	if *cfg.wait <= 0 {
		return scan(ctx)
	}

	_, _ = fmt.Printf("Waiting up to %s for a bootloader on %s...\n", *cfg.wait, devicePath(*cfg.bus))
	waitCtx, cancel := context.WithTimeout(ctx, *cfg.wait)
	defer cancel()
	device, err := polling.WaitFor(waitCtx, scan, nil, func(d detection.DeviceInfo) bool {
		return d.Confidence >= detection.Medium
	})
	if err != nil {
		return nil, fmt.Errorf("no bootloader appeared on %s: %w", devicePath(*cfg.bus), err)
	}
	return []detection.DeviceInfo{device}, nil
}

func update(ctx context.Context, cfg *config, image []byte, monitor *uart.Monitor) error {
	chunks, err := firmware.Chunks(image, *cfg.chunk)
	if err != nil {
		return fmt.Errorf("failed to split image: %w", err)
	}

	mark := 0
	if monitor != nil {
		_, _ = fmt.Println("Waiting for the bootloader console...")
		if _, mark, err = monitor.WaitFor(ctx, 0, uart.ReadyMarker); err != nil {
			return err
		}
	}

	addr, err := resolveAddress(ctx, cfg)
	if err != nil {
		return err
	}

	sender, err := newSender(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = sender.Close() }()

	if err := sender.WaitReady(ctx, addr, *cfg.readyWait); err != nil {
		return err
	}

	start := time.Now()
	err = sender.SendImage(ctx, addr, chunks, func(sent, total int) {
		_, _ = fmt.Printf("\rSent %d/%d chunks", sent, total)
	})
	_, _ = fmt.Println()
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	_, _ = fmt.Printf("Sent %d bytes in %s\n", len(image), time.Since(start).Round(time.Millisecond))

	if monitor != nil {
		line, _, err := monitor.WaitFor(ctx, mark, uart.StartMarker)
		if err != nil {
			return fmt.Errorf("application did not start: %w", err)
		}
		_, _ = fmt.Println(line)
	}
	return nil
}

func run(cfg *config) error {
	ctx, cancel := context.WithTimeout(context.Background(), *cfg.timeout)
	defer cancel()

	if *cfg.scan {
		devices, err := scanBus(ctx, *cfg.bus)
		printDevices(devices)
		return err
	}

	if *cfg.image == "" {
		return errors.New("-image is required")
	}

	layout, err := selectLayout(*cfg.layout)
	if err != nil {
		return err
	}
	slot := layout.Primary()

	image, err := buildImage(cfg, slot)
	if err != nil {
		return err
	}
	if *cfg.hexOut != "" {
		return writeHexFile(*cfg.hexOut, image, slot.HeaderAddr)
	}

	monitor, err := openConsole(ctx, cfg)
	if err != nil {
		return err
	}
	if monitor != nil {
		defer func() { _ = monitor.Close() }()
	}

	return update(ctx, cfg, image, monitor)
}

func main() {
	cfg := parseFlags()
	if err := run(cfg); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
