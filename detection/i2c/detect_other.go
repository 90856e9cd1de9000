//go:build !linux

package i2c

import (
	"github.com/ZaparooProject/go-i2cboot/detection"
)

type devBus struct{}

func listBuses() ([]string, error) {
	return nil, detection.ErrUnsupportedPlatform
}

func openBus(string) (*devBus, error) {
	return nil, detection.ErrUnsupportedPlatform
}

func (*devBus) Probe(uint16) (byte, error) {
	return 0, detection.ErrUnsupportedPlatform
}

func (*devBus) Close() error {
	return nil
}
