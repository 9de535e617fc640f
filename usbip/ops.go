package usbip

import (
	"encoding/binary"
	"io"
)

// OpReqDevlist is the client's request to list available devices.
type OpReqDevlist struct {
	Status uint32
}

func (p OpReqDevlist) Marshal() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint16(buf[0:], Version)
	binary.BigEndian.PutUint16(buf[2:], OpReqDevlist)
	binary.BigEndian.PutUint32(buf[4:], p.Status)
	return buf
}

func readOpReqDevlistTail(r io.Reader) (OpReqDevlist, error) {
	buf := make([]byte, 4)
	if err := ReadExactly(r, buf); err != nil {
		return OpReqDevlist{}, err
	}
	return OpReqDevlist{Status: binary.BigEndian.Uint32(buf)}, nil
}

// DevlistEntry pairs a device record with the interface records that
// follow it in OP_REP_DEVLIST.
type DevlistEntry struct {
	Device     DeviceRecord
	Interfaces []InterfaceRecord
}

// OpRepDevlist is the server's reply enumerating available devices.
type OpRepDevlist struct {
	Status  uint32
	Entries []DevlistEntry
}

func (p OpRepDevlist) Marshal() []byte {
	buf := make([]byte, 0, 12+len(p.Entries)*(DeviceRecordLen+4))
	head := make([]byte, 12)
	binary.BigEndian.PutUint16(head[0:], Version)
	binary.BigEndian.PutUint16(head[2:], OpRepDevlist)
	binary.BigEndian.PutUint32(head[4:], p.Status)
	binary.BigEndian.PutUint32(head[8:], uint32(len(p.Entries)))
	buf = append(buf, head...)
	for _, e := range p.Entries {
		dev := e.Device
		dev.BNumInterfaces = uint8(len(e.Interfaces))
		buf = append(buf, dev.Marshal()...)
		for _, ir := range e.Interfaces {
			buf = append(buf, ir.Marshal()...)
		}
	}
	return buf
}

// ReadOpRepDevlist decodes a full OP_REP_DEVLIST reply, including its
// version and command word, from r.
func ReadOpRepDevlist(r io.Reader) (OpRepDevlist, error) {
	head := make([]byte, 8)
	if err := ReadExactly(r, head); err != nil {
		return OpRepDevlist{}, err
	}
	status := binary.BigEndian.Uint32(head[4:])
	nbuf := make([]byte, 4)
	if err := ReadExactly(r, nbuf); err != nil {
		return OpRepDevlist{}, err
	}
	n := binary.BigEndian.Uint32(nbuf)
	entries := make([]DevlistEntry, 0, n)
	for i := uint32(0); i < n; i++ {
		dev, err := readDeviceRecord(r)
		if err != nil {
			return OpRepDevlist{}, err
		}
		ifaces := make([]InterfaceRecord, 0, dev.BNumInterfaces)
		for j := uint8(0); j < dev.BNumInterfaces; j++ {
			ir, err := readInterfaceRecord(r)
			if err != nil {
				return OpRepDevlist{}, err
			}
			ifaces = append(ifaces, ir)
		}
		entries = append(entries, DevlistEntry{Device: dev, Interfaces: ifaces})
	}
	return OpRepDevlist{Status: status, Entries: entries}, nil
}

// OpReqImport is the client's request to attach a single device by bus id.
type OpReqImport struct {
	Status uint32
	BusID  string
}

func (p OpReqImport) Marshal() []byte {
	buf := make([]byte, 8+BusIDSize)
	binary.BigEndian.PutUint16(buf[0:], Version)
	binary.BigEndian.PutUint16(buf[2:], OpReqImport)
	binary.BigEndian.PutUint32(buf[4:], p.Status)
	putFixedString(buf[8:8+BusIDSize], p.BusID)
	return buf
}

func readOpReqImportTail(r io.Reader) (OpReqImport, error) {
	buf := make([]byte, 4+BusIDSize)
	if err := ReadExactly(r, buf); err != nil {
		return OpReqImport{}, err
	}
	return OpReqImport{
		Status: binary.BigEndian.Uint32(buf[0:]),
		BusID:  fixedString(buf[4 : 4+BusIDSize]),
	}, nil
}

// OpRepImport is the server's reply to an import request: a device record
// on success, no payload on failure.
type OpRepImport struct {
	Status uint32
	Device *DeviceRecord
}

func (p OpRepImport) Marshal() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint16(buf[0:], Version)
	binary.BigEndian.PutUint16(buf[2:], OpRepImport)
	binary.BigEndian.PutUint32(buf[4:], p.Status)
	if p.Device != nil {
		buf = append(buf, p.Device.Marshal()...)
	}
	return buf
}

// ReadOpRepImport decodes a full OP_REP_IMPORT reply from r. The caller
// says with expectDevice whether a device record follows; the decoded
// status is not consulted for that. The wire format carries no separate
// length field.
func ReadOpRepImport(r io.Reader, expectDevice bool) (OpRepImport, error) {
	head := make([]byte, 8)
	if err := ReadExactly(r, head); err != nil {
		return OpRepImport{}, err
	}
	status := binary.BigEndian.Uint32(head[4:])
	if !expectDevice {
		return OpRepImport{Status: status}, nil
	}
	dev, err := readDeviceRecord(r)
	if err != nil {
		return OpRepImport{}, err
	}
	return OpRepImport{Status: status, Device: &dev}, nil
}
