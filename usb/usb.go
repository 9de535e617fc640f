// Package usb models a virtual USB device tree: devices, interfaces and
// endpoints, the descriptors built from them, and the handler contracts that
// service non-control transfers.
package usb

import (
	"fmt"
	"sync"
)

// Speed is the USB signaling speed reported in a device record.
type Speed uint32

const (
	SpeedUnknown Speed = 0
	SpeedLow     Speed = 1
	SpeedFull    Speed = 2
	SpeedHigh    Speed = 3
	SpeedSuper   Speed = 4
)

// EndpointDirection is the high bit of an endpoint address.
type EndpointDirection uint8

const (
	DirectionOut EndpointDirection = 0x00
	DirectionIn  EndpointDirection = 0x80
)

// TransferType is bits 0-1 of an endpoint's bmAttributes.
type TransferType uint8

const (
	TransferControl     TransferType = 0
	TransferIsochronous TransferType = 1
	TransferBulk        TransferType = 2
	TransferInterrupt   TransferType = 3
)

// UsbEndpoint is a single unidirectional pipe.
type UsbEndpoint struct {
	Address       uint8
	Attributes    uint8
	MaxPacketSize uint16
	Interval      uint8
}

func (e UsbEndpoint) Direction() EndpointDirection { return EndpointDirection(e.Address & 0x80) }
func (e UsbEndpoint) Number() uint8                { return e.Address & 0x0f }
func (e UsbEndpoint) Type() TransferType            { return TransferType(e.Attributes & 0x03) }

// ep0MaxPacketSize returns the control endpoint's max packet size for a speed,
// per spec: 8/16/64 depending on tier (low/full/high-or-above).
func ep0MaxPacketSize(speed Speed) uint16 {
	switch speed {
	case SpeedLow:
		return 8
	case SpeedFull:
		return 16
	default:
		return 64
	}
}

// UsbInterface groups a set of endpoints behind one class/subclass/protocol
// and an optional handler for non-control requests.
type UsbInterface struct {
	Class, SubClass, Protocol uint8
	Endpoints                 []UsbEndpoint
	StringIndex               uint8
	ClassDescriptors          [][]byte
	Handler                   InterfaceHandler
}

// findEndpoint returns the endpoint on this interface matching addr, if any.
func (i *UsbInterface) findEndpoint(addr uint8) (UsbEndpoint, bool) {
	for _, ep := range i.Endpoints {
		if ep.Address == addr {
			return ep, true
		}
	}
	return UsbEndpoint{}, false
}

// UsbDevice is the unit of export: everything needed to answer enumeration
// and dispatch URBs without a real device behind it.
type UsbDevice struct {
	BusID string
	Path  string

	BusNum, DevNum uint32
	Speed          Speed

	VendorID, ProductID uint16
	DeviceClass         uint8
	DeviceSubClass      uint8
	DeviceProtocol      uint8
	USBVersion          uint16 // bcdUSB
	DeviceVersion       uint16 // bcdDevice

	ConfigurationValue uint8
	NumConfigurations  uint8

	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialIndex       uint8

	EP0In  UsbEndpoint
	EP0Out UsbEndpoint

	Interfaces []*UsbInterface
	Handler    DeviceHandler

	mu      sync.Mutex
	strings []string
}

// NewSimulatedDevice builds a device with no host backend: a purely
// in-memory fixture identified by bus-id "n-n-n".
func NewSimulatedDevice(n uint32) *UsbDevice {
	d := &UsbDevice{
		BusID:              fmt.Sprintf("%d-%d-%d", n, n, n),
		Path:               fmt.Sprintf("/sys/devices/simulated/%d-%d-%d", n, n, n),
		BusNum:             n,
		DevNum:             n,
		Speed:              SpeedHigh,
		USBVersion:         0x0200,
		ConfigurationValue: 1,
		NumConfigurations:  1,
	}
	d.setEP0()
	return d
}

func (d *UsbDevice) setEP0() {
	mps := ep0MaxPacketSize(d.Speed)
	d.EP0In = UsbEndpoint{Address: uint8(DirectionIn), Attributes: uint8(TransferControl), MaxPacketSize: mps}
	d.EP0Out = UsbEndpoint{Address: uint8(DirectionOut), Attributes: uint8(TransferControl), MaxPacketSize: mps}
}

// WithSpeed overrides the device's reported speed, recomputing ep0's max
// packet size. Descriptors are built on demand from the current fields, so
// the call may come before or after WithInterface.
func (d *UsbDevice) WithSpeed(speed Speed) *UsbDevice {
	d.Speed = speed
	d.setEP0()
	return d
}

// WithClass sets the device-level class/subclass/protocol triple (0/0/0 by
// default, meaning "defined at interface level").
func (d *UsbDevice) WithClass(class, subclass, protocol uint8) *UsbDevice {
	d.DeviceClass, d.DeviceSubClass, d.DeviceProtocol = class, subclass, protocol
	return d
}

// WithIDs sets vendor/product/device-version fields.
func (d *UsbDevice) WithIDs(vendor, product, deviceVersion uint16) *UsbDevice {
	d.VendorID, d.ProductID, d.DeviceVersion = vendor, product, deviceVersion
	return d
}

// WithHandler attaches an optional device-level handler consulted before any
// interface handler.
func (d *UsbDevice) WithHandler(h DeviceHandler) *UsbDevice {
	d.Handler = h
	return d
}

// WithInterface appends an interface built from class/subclass/protocol, an
// optional label (stored in the string table), its endpoints and handler.
func (d *UsbDevice) WithInterface(class, subclass, protocol uint8, label string, endpoints []UsbEndpoint, handler InterfaceHandler) *UsbDevice {
	d.Interfaces = append(d.Interfaces, &UsbInterface{
		Class:       class,
		SubClass:    subclass,
		Protocol:    protocol,
		Endpoints:   endpoints,
		StringIndex: d.NewString(label),
		Handler:     handler,
	})
	return d
}

// NewString deduplicates or appends s to the device's string table, returning
// its 1-based index (0 reserved, and returned for an empty string).
func (d *UsbDevice) NewString(s string) uint8 {
	if s == "" {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.strings {
		if existing == s {
			return uint8(i + 1)
		}
	}
	d.strings = append(d.strings, s)
	return uint8(len(d.strings))
}

// LookupString returns the string stored at index, or ok=false for index 0 or
// an index beyond the table.
func (d *UsbDevice) LookupString(index uint8) (s string, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index == 0 || int(index) > len(d.strings) {
		return "", false
	}
	return d.strings[index-1], true
}

// FindEndpoint walks the interfaces in order and returns the first
// (interface, endpoint) pair whose address matches addr. Endpoint 0 is not
// found here; it is always answered by the control engine.
func (d *UsbDevice) FindEndpoint(addr uint8) (*UsbInterface, UsbEndpoint, bool) {
	for _, iface := range d.Interfaces {
		if ep, ok := iface.findEndpoint(addr); ok {
			return iface, ep, true
		}
	}
	return nil, UsbEndpoint{}, false
}
