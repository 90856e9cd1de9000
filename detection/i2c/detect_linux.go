//go:build linux

package i2c

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"golang.org/x/sys/unix"
)

const (
	// i2cSlave is the ioctl command to set slave address
	i2cSlave = 0x0703

	// i2cFuncs is the ioctl command to get adapter functionality
	i2cFuncs = 0x0705

	// i2cFuncI2C indicates plain I2C support
	i2cFuncI2C = 0x00000001
)

type devBus struct {
	path string
	fd   int
}

func listBuses() ([]string, error) {
	matches, err := filepath.Glob("/dev/i2c-*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan for I2C buses: %w", err)
	}
	sort.Strings(matches)

	buses := make([]string, 0, len(matches))
	for _, path := range matches {
		bus, err := openBus(path)
		if err != nil {
			continue
		}
		_ = bus.Close()
		buses = append(buses, path)
	}
	return buses, nil
}

func openBus(path string) (*devBus, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	funcs, err := unix.IoctlGetUint32(fd, i2cFuncs)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to query %s: %w", path, err)
	}
	if funcs&i2cFuncI2C == 0 {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%s does not support plain I2C transfers", path)
	}
	return &devBus{path: path, fd: fd}, nil
}

func (b *devBus) Probe(addr uint16) (byte, error) {
	if err := unix.IoctlSetInt(b.fd, i2cSlave, int(addr)); err != nil {
		return 0, fmt.Errorf("failed to select 0x%02X on %s: %w", addr, b.path, err)
	}
	var buf [1]byte
	n, err := unix.Read(b.fd, buf[:])
	if err != nil {
		return 0, err
	}
	if n != 1 {
		return 0, io.ErrUnexpectedEOF
	}
	return buf[0], nil
}

func (b *devBus) Close() error {
	return unix.Close(b.fd)
}
