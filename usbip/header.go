package usbip

import (
	"encoding/binary"
	"io"
)

// HeaderBasic is the 20-byte prefix shared by every command-phase PDU:
// command word, sequence number, device id, direction and endpoint.
type HeaderBasic struct {
	Command   uint32
	Seqnum    uint32
	Devid     uint32
	Direction uint32
	Ep        uint32
}

const headerBasicLen = 20

func (h HeaderBasic) marshalInto(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:], h.Command)
	binary.BigEndian.PutUint32(buf[4:], h.Seqnum)
	binary.BigEndian.PutUint32(buf[8:], h.Devid)
	binary.BigEndian.PutUint32(buf[12:], h.Direction)
	binary.BigEndian.PutUint32(buf[16:], h.Ep)
}

// readHeaderBasicTail reads the 16 bytes following an already-consumed
// 4-byte command word and completes the header.
func readHeaderBasicTail(r io.Reader, command uint32) (HeaderBasic, error) {
	buf := make([]byte, headerBasicLen-4)
	if err := ReadExactly(r, buf); err != nil {
		return HeaderBasic{}, err
	}
	return HeaderBasic{
		Command:   command,
		Seqnum:    binary.BigEndian.Uint32(buf[0:]),
		Devid:     binary.BigEndian.Uint32(buf[4:]),
		Direction: binary.BigEndian.Uint32(buf[8:]),
		Ep:        binary.BigEndian.Uint32(buf[12:]),
	}, nil
}
