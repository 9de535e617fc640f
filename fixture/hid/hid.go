// Package hid provides a minimal single-button HID device fixture: one
// interrupt IN endpoint reporting an always-idle button state, enough to
// exercise the HID class descriptor path (GET_DESCRIPTOR for the 0x21
// and 0x22 descriptor types) that the generic control engine does not
// know about.
package hid

import (
	"encoding/binary"

	"github.com/go-usbip/usbipd/usb"
)

const descTypeHIDReport = 0x22

// buttonReportDescriptor describes one input report: a single button bit
// followed by seven padding bits.
var buttonReportDescriptor = []byte{
	0x05, 0x01, // Usage Page (Generic Desktop)
	0x09, 0x05, // Usage (Game Pad)
	0xA1, 0x01, // Collection (Application)
	0x05, 0x09, //   Usage Page (Button)
	0x19, 0x01, //   Usage Minimum (Button 1)
	0x29, 0x01, //   Usage Maximum (Button 1)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0x01, //   Logical Maximum (1)
	0x75, 0x01, //   Report Size (1)
	0x95, 0x01, //   Report Count (1)
	0x81, 0x02, //   Input (Data,Var,Abs)
	0x75, 0x07, //   Report Size (7)
	0x95, 0x01, //   Report Count (1)
	0x81, 0x03, //   Input (Const,Var,Abs)
	0xC0, // End Collection
}

const hidDescLen = 9

// hidClassDescriptor builds the 9-byte HID descriptor (type 0x21) that
// follows the interface descriptor, ahead of its endpoint descriptors, in
// a GET_DESCRIPTOR(Configuration) reply.
func hidClassDescriptor() []byte {
	buf := make([]byte, hidDescLen)
	buf[0] = hidDescLen
	buf[1] = 0x21
	binary.LittleEndian.PutUint16(buf[2:], 0x0110) // bcdHID 1.10
	buf[4] = 0                                      // country code
	buf[5] = 1                                      // num class descriptors
	buf[6] = descTypeHIDReport
	binary.LittleEndian.PutUint16(buf[7:], uint16(len(buttonReportDescriptor)))
	return buf
}

// deviceHandler answers GET_DESCRIPTOR on ep0 for the HID (0x21) and HID
// Report (0x22) descriptor types, which the generic control engine does
// not recognize; everything else is deferred.
type deviceHandler struct{}

func (deviceHandler) HandleURB(_ usb.UsbEndpoint, setup usb.SetupPacket, transferLength int, _ []byte) ([]byte, bool, error) {
	if !setup.IsStandard() || setup.BRequest != usb.ReqGetDescriptor {
		return nil, false, nil
	}
	var data []byte
	switch uint8(setup.WValue >> 8) {
	case 0x21:
		data = hidClassDescriptor()
	case descTypeHIDReport:
		data = buttonReportDescriptor
	default:
		return nil, false, nil
	}
	if transferLength < len(data) {
		data = data[:transferLength]
	}
	return data, true, nil
}

// interfaceHandler serves the report endpoint; the button is never
// pressed in this fixture, so every poll returns an idle report.
type interfaceHandler struct{}

func (interfaceHandler) HandleURB(ep usb.UsbEndpoint, _ usb.SetupPacket, _ int, _ []byte) ([]byte, error) {
	if ep.Direction() != usb.DirectionIn {
		return nil, usb.ErrStall
	}
	return []byte{0x00}, nil
}

// NewDevice returns a simulated single-button HID device.
func NewDevice(n uint32) *usb.UsbDevice {
	d := usb.NewSimulatedDevice(n).
		WithClass(0, 0, 0).
		WithIDs(0x1209, 0x0001, 0x0100).
		WithHandler(deviceHandler{})
	d.WithInterface(0x03, 0x00, 0x00, "HID Button", []usb.UsbEndpoint{
		{Address: 0x81, Attributes: uint8(usb.TransferInterrupt), MaxPacketSize: 8, Interval: 10},
	}, interfaceHandler{})
	d.Interfaces[len(d.Interfaces)-1].ClassDescriptors = [][]byte{hidClassDescriptor()}
	return d
}
