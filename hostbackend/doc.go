//go:build linux

// Package hostbackend bridges real USB devices attached to this host into
// the usb.UsbDevice model, so they can be added to a server registry and
// exported over USB/IP the same way a simulated fixture is. It enumerates
// devices via the Linux sysfs USB class and issues transfers through the
// usbdevfs ioctl interface; both are Linux-only, hence the build tag.
package hostbackend
