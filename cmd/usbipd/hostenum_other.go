//go:build !linux

package main

import (
	"errors"
	"log/slog"

	"github.com/go-usbip/usbipd/registry"
)

func addHostDevices(*registry.Registry, *slog.Logger) error {
	return errors.New("host device bridging requires Linux")
}
