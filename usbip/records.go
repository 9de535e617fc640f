package usbip

import (
	"encoding/binary"
	"fmt"
	"io"
)

// DeviceRecord is the fixed 0x138-byte device record embedded in
// OP_REP_DEVLIST (one per device) and OP_REP_IMPORT (alone, on success).
type DeviceRecord struct {
	Path                 string
	BusID                string
	BusNum               uint32
	DevNum               uint32
	Speed                uint32
	IDVendor             uint16
	IDProduct            uint16
	BcdDevice            uint16
	BDeviceClass         uint8
	BDeviceSubClass      uint8
	BDeviceProtocol      uint8
	BConfigurationValue  uint8
	BNumConfigurations   uint8
	BNumInterfaces       uint8
}

func putFixedString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func fixedString(src []byte) string {
	n := 0
	for n < len(src) && src[n] != 0 {
		n++
	}
	return string(src[:n])
}

// Marshal writes the record's fixed DeviceRecordLen-byte wire form.
func (r DeviceRecord) Marshal() []byte {
	buf := make([]byte, DeviceRecordLen)
	off := 0
	putFixedString(buf[off:off+PathSize], r.Path)
	off += PathSize
	putFixedString(buf[off:off+BusIDSize], r.BusID)
	off += BusIDSize
	binary.BigEndian.PutUint32(buf[off:], r.BusNum)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], r.DevNum)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], r.Speed)
	off += 4
	binary.BigEndian.PutUint16(buf[off:], r.IDVendor)
	off += 2
	binary.BigEndian.PutUint16(buf[off:], r.IDProduct)
	off += 2
	binary.BigEndian.PutUint16(buf[off:], r.BcdDevice)
	off += 2
	buf[off] = r.BDeviceClass
	off++
	buf[off] = r.BDeviceSubClass
	off++
	buf[off] = r.BDeviceProtocol
	off++
	buf[off] = r.BConfigurationValue
	off++
	buf[off] = r.BNumConfigurations
	off++
	buf[off] = r.BNumInterfaces
	off++
	if off != DeviceRecordLen {
		panic(fmt.Sprintf("usbip: device record marshal wrote %d bytes, want %d", off, DeviceRecordLen))
	}
	return buf
}

// UnmarshalDeviceRecord decodes a DeviceRecordLen-byte wire record.
func UnmarshalDeviceRecord(buf []byte) (DeviceRecord, error) {
	if len(buf) != DeviceRecordLen {
		return DeviceRecord{}, fmt.Errorf("%w: device record is %d bytes, want %d", ErrMalformed, len(buf), DeviceRecordLen)
	}
	var r DeviceRecord
	off := 0
	r.Path = fixedString(buf[off : off+PathSize])
	off += PathSize
	r.BusID = fixedString(buf[off : off+BusIDSize])
	off += BusIDSize
	r.BusNum = binary.BigEndian.Uint32(buf[off:])
	off += 4
	r.DevNum = binary.BigEndian.Uint32(buf[off:])
	off += 4
	r.Speed = binary.BigEndian.Uint32(buf[off:])
	off += 4
	r.IDVendor = binary.BigEndian.Uint16(buf[off:])
	off += 2
	r.IDProduct = binary.BigEndian.Uint16(buf[off:])
	off += 2
	r.BcdDevice = binary.BigEndian.Uint16(buf[off:])
	off += 2
	r.BDeviceClass = buf[off]
	off++
	r.BDeviceSubClass = buf[off]
	off++
	r.BDeviceProtocol = buf[off]
	off++
	r.BConfigurationValue = buf[off]
	off++
	r.BNumConfigurations = buf[off]
	off++
	r.BNumInterfaces = buf[off]
	off++
	return r, nil
}

func readDeviceRecord(r io.Reader) (DeviceRecord, error) {
	buf := make([]byte, DeviceRecordLen)
	if err := ReadExactly(r, buf); err != nil {
		return DeviceRecord{}, err
	}
	return UnmarshalDeviceRecord(buf)
}

// InterfaceRecord is the fixed 4-byte interface record that follows a
// DeviceRecord in OP_REP_DEVLIST, one per interface.
type InterfaceRecord struct {
	Class    uint8
	SubClass uint8
	Protocol uint8
}

func (ir InterfaceRecord) Marshal() []byte {
	return []byte{ir.Class, ir.SubClass, ir.Protocol, 0}
}

func UnmarshalInterfaceRecord(buf []byte) (InterfaceRecord, error) {
	if len(buf) != InterfaceRecordLen {
		return InterfaceRecord{}, fmt.Errorf("%w: interface record is %d bytes, want %d", ErrMalformed, len(buf), InterfaceRecordLen)
	}
	return InterfaceRecord{Class: buf[0], SubClass: buf[1], Protocol: buf[2]}, nil
}

func readInterfaceRecord(r io.Reader) (InterfaceRecord, error) {
	buf := make([]byte, InterfaceRecordLen)
	if err := ReadExactly(r, buf); err != nil {
		return InterfaceRecord{}, err
	}
	return UnmarshalInterfaceRecord(buf)
}
