package usbip

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PDU is any client-originated PDU the server must decode: the two
// op-phase requests and the two command-phase requests. Replies are
// written directly by the caller with the type-specific Marshal methods,
// so no reply type implements this interface.
type PDU interface {
	isClientPDU()
}

func (OpReqDevlist) isClientPDU() {}
func (OpReqImport) isClientPDU()  {}
func (CmdSubmit) isClientPDU()    {}
func (CmdUnlink) isClientPDU()    {}

// ReadPDU reads exactly one client PDU from r. The first four bytes
// determine its kind: if the top two, read as a big-endian uint16, equal
// Version, the PDU is an op-phase request; otherwise the full four bytes
// are a command-phase command word. This lets a session read client PDUs
// the same way regardless of whether it is still greeting or already has
// a device attached, so an out-of-phase OP_* request surfaces as a
// decodable PDU that the caller can then reject for its state rather than
// as a framing error.
func ReadPDU(r io.Reader) (PDU, error) {
	var first [4]byte
	if err := ReadExactly(r, first[:]); err != nil {
		return nil, err
	}
	version := binary.BigEndian.Uint16(first[0:2])
	if version == Version {
		code := binary.BigEndian.Uint16(first[2:4])
		switch code {
		case OpReqDevlist:
			return readOpReqDevlistTail(r)
		case OpReqImport:
			return readOpReqImportTail(r)
		default:
			return nil, fmt.Errorf("%w: unknown op command 0x%04x", ErrMalformed, code)
		}
	}

	command := binary.BigEndian.Uint32(first[:])
	switch command {
	case CmdSubmit:
		header, err := readHeaderBasicTail(r, command)
		if err != nil {
			return nil, err
		}
		return readCmdSubmit(r, header)
	case CmdUnlink:
		header, err := readHeaderBasicTail(r, command)
		if err != nil {
			return nil, err
		}
		return readCmdUnlink(r, header)
	default:
		return nil, fmt.Errorf("%w: unknown command word 0x%08x", ErrMalformed, command)
	}
}
