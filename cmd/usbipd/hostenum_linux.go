//go:build linux

package main

import (
	"log/slog"

	"github.com/go-usbip/usbipd/hostbackend"
	"github.com/go-usbip/usbipd/registry"
)

func addHostDevices(reg *registry.Registry, log *slog.Logger) error {
	devices, err := hostbackend.NewProvider().Enumerate()
	if err != nil {
		return err
	}
	for _, d := range devices {
		reg.Add(d)
	}
	log.Info("host devices registered", "count", len(devices))
	return nil
}
