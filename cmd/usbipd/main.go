// Command usbipd runs a USB/IP server: it listens for client connections
// and exports whatever devices are in its registry at startup, built-in
// fixtures by default and, on Linux, the real devices attached to the
// host when -host is given.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-usbip/usbipd/fixture/cdcacm"
	"github.com/go-usbip/usbipd/fixture/hid"
	"github.com/go-usbip/usbipd/registry"
	"github.com/go-usbip/usbipd/server"
)

func main() {
	var (
		addr     = flag.String("addr", ":3240", "address to listen on")
		fixtures = flag.Bool("fixtures", true, "register the built-in CDC-ACM and HID fixture devices")
		host     = flag.Bool("host", false, "also export real USB devices attached to this host (Linux only)")
		verbose  = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	reg := registry.New()
	if *fixtures {
		reg.Add(cdcacm.NewDevice(1))
		reg.Add(hid.NewDevice(2))
	}
	if *host {
		if err := addHostDevices(reg, log); err != nil {
			log.Warn("host device enumeration failed", "error", err)
		}
	}

	srv := server.New(*addr, reg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		if err := srv.Close(); err != nil {
			log.Error("close error", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
