package usb

import (
	"bytes"
	"encoding/binary"
)

// Standard descriptor types (USB 2.0 spec table 9-5).
const (
	DescriptorTypeDevice        = 0x01
	DescriptorTypeConfiguration = 0x02
	DescriptorTypeString        = 0x03
	DescriptorTypeInterface     = 0x04
	DescriptorTypeEndpoint      = 0x05
)

const (
	deviceDescriptorLen = 18
	configHeaderLen     = 9
	interfaceDescLen    = 9
	endpointDescLen     = 7
)

// DeviceDescriptorBytes builds the 18-byte standard device descriptor.
func DeviceDescriptorBytes(d *UsbDevice) []byte {
	b := make([]byte, deviceDescriptorLen)
	b[0] = deviceDescriptorLen
	b[1] = DescriptorTypeDevice
	binary.LittleEndian.PutUint16(b[2:4], d.USBVersion)
	b[4] = d.DeviceClass
	b[5] = d.DeviceSubClass
	b[6] = d.DeviceProtocol
	b[7] = byte(d.EP0In.MaxPacketSize)
	binary.LittleEndian.PutUint16(b[8:10], d.VendorID)
	binary.LittleEndian.PutUint16(b[10:12], d.ProductID)
	binary.LittleEndian.PutUint16(b[12:14], d.DeviceVersion)
	b[14] = d.ManufacturerIndex
	b[15] = d.ProductIndex
	b[16] = d.SerialIndex
	b[17] = d.NumConfigurations
	return b
}

// ConfigDescriptorBytes builds the full configuration descriptor block:
// config(9) + sum(interface(9) + class-specific + sum(endpoint(7))), with
// wTotalLength patched to the final length.
func ConfigDescriptorBytes(d *UsbDevice) []byte {
	var buf bytes.Buffer
	buf.Write(make([]byte, configHeaderLen)) // placeholder, patched below

	for i, iface := range d.Interfaces {
		var ifaceBuf bytes.Buffer
		ifaceBuf.WriteByte(interfaceDescLen)
		ifaceBuf.WriteByte(DescriptorTypeInterface)
		ifaceBuf.WriteByte(uint8(i))
		ifaceBuf.WriteByte(0) // bAlternateSetting: only the first setting is exposed
		ifaceBuf.WriteByte(uint8(len(iface.Endpoints)))
		ifaceBuf.WriteByte(iface.Class)
		ifaceBuf.WriteByte(iface.SubClass)
		ifaceBuf.WriteByte(iface.Protocol)
		ifaceBuf.WriteByte(iface.StringIndex)
		buf.Write(ifaceBuf.Bytes())

		for _, cd := range iface.ClassDescriptors {
			buf.Write(cd)
		}

		for _, ep := range iface.Endpoints {
			buf.Write(EndpointDescriptorBytes(ep))
		}
	}

	data := buf.Bytes()
	data[0] = configHeaderLen
	data[1] = DescriptorTypeConfiguration
	binary.LittleEndian.PutUint16(data[2:4], uint16(len(data)))
	data[4] = uint8(len(d.Interfaces))
	data[5] = d.ConfigurationValue
	data[6] = 0 // iConfiguration
	data[7] = 0x80
	data[8] = 50 // 100mA in 2mA units

	return data
}

// EndpointDescriptorBytes builds a single 7-byte endpoint descriptor.
func EndpointDescriptorBytes(ep UsbEndpoint) []byte {
	b := make([]byte, endpointDescLen)
	b[0] = endpointDescLen
	b[1] = DescriptorTypeEndpoint
	b[2] = ep.Address
	b[3] = ep.Attributes
	binary.LittleEndian.PutUint16(b[4:6], ep.MaxPacketSize)
	b[6] = ep.Interval
	return b
}

// LanguageListDescriptor is the fixed reply for string index 0: one
// supported language, en-US (0x0409).
func LanguageListDescriptor() []byte {
	return []byte{0x04, 0x03, 0x09, 0x04}
}

// StringDescriptorBytes UTF-16LE encodes s as a USB string descriptor.
func StringDescriptorBytes(s string) []byte {
	runes := []rune(s)
	b := make([]byte, 2+len(runes)*2)
	b[0] = uint8(len(b))
	b[1] = DescriptorTypeString
	for i, r := range runes {
		binary.LittleEndian.PutUint16(b[2+i*2:4+i*2], uint16(r))
	}
	return b
}
