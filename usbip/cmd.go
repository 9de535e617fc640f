package usbip

import (
	"encoding/binary"
	"fmt"
	"io"
)

const cmdSubmitBodyLen = 28
const isoDescriptorLen = 16

// CmdSubmit carries a URB from client to server.
type CmdSubmit struct {
	Header               HeaderBasic
	TransferFlags        uint32
	TransferBufferLength int32
	StartFrame           uint32
	NumberOfPackets      uint32
	Interval             uint32
	Setup                [8]byte
	Data                 []byte // present when Header.Direction == DirOut
	IsoPacketDescriptors []byte // NumberOfPackets * isoDescriptorLen bytes
}

func (p CmdSubmit) Marshal() []byte {
	buf := make([]byte, headerBasicLen+cmdSubmitBodyLen)
	p.Header.marshalInto(buf)
	off := headerBasicLen
	binary.BigEndian.PutUint32(buf[off:], p.TransferFlags)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], uint32(p.TransferBufferLength))
	off += 4
	binary.BigEndian.PutUint32(buf[off:], p.StartFrame)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], p.NumberOfPackets)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], p.Interval)
	off += 4
	copy(buf[off:off+setupLen], p.Setup[:])
	if p.Header.Direction == DirOut {
		buf = append(buf, p.Data...)
	}
	buf = append(buf, p.IsoPacketDescriptors...)
	return buf
}

func readCmdSubmit(r io.Reader, header HeaderBasic) (CmdSubmit, error) {
	buf := make([]byte, cmdSubmitBodyLen)
	if err := ReadExactly(r, buf); err != nil {
		return CmdSubmit{}, err
	}
	p := CmdSubmit{Header: header}
	off := 0
	p.TransferFlags = binary.BigEndian.Uint32(buf[off:])
	off += 4
	p.TransferBufferLength = int32(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	p.StartFrame = binary.BigEndian.Uint32(buf[off:])
	off += 4
	p.NumberOfPackets = binary.BigEndian.Uint32(buf[off:])
	off += 4
	p.Interval = binary.BigEndian.Uint32(buf[off:])
	off += 4
	copy(p.Setup[:], buf[off:off+setupLen])

	if header.Direction == DirOut && p.TransferBufferLength > 0 {
		p.Data = make([]byte, p.TransferBufferLength)
		if err := ReadExactly(r, p.Data); err != nil {
			return CmdSubmit{}, err
		}
	}
	if p.NumberOfPackets > 0 {
		p.IsoPacketDescriptors = make([]byte, int(p.NumberOfPackets)*isoDescriptorLen)
		if err := ReadExactly(r, p.IsoPacketDescriptors); err != nil {
			return CmdSubmit{}, err
		}
	}
	return p, nil
}

// RetSubmit carries a completed URB from server to client.
type RetSubmit struct {
	Header               HeaderBasic
	Status               int32
	ActualLength         int32
	StartFrame           uint32
	NumberOfPackets      uint32
	ErrorCount           uint32
	Setup                [8]byte
	Data                 []byte // present when Header.Direction == DirIn
	IsoPacketDescriptors []byte
}

func (p RetSubmit) Marshal() []byte {
	buf := make([]byte, headerBasicLen+cmdSubmitBodyLen)
	p.Header.marshalInto(buf)
	off := headerBasicLen
	binary.BigEndian.PutUint32(buf[off:], uint32(p.Status))
	off += 4
	binary.BigEndian.PutUint32(buf[off:], uint32(p.ActualLength))
	off += 4
	binary.BigEndian.PutUint32(buf[off:], p.StartFrame)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], p.NumberOfPackets)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], p.ErrorCount)
	off += 4
	copy(buf[off:off+setupLen], p.Setup[:])
	if p.Header.Direction == DirIn {
		buf = append(buf, p.Data...)
	}
	buf = append(buf, p.IsoPacketDescriptors...)
	return buf
}

// ReadRetSubmit decodes a full RET_SUBMIT PDU, including its header, from r.
func ReadRetSubmit(r io.Reader) (RetSubmit, error) {
	cmdBuf := make([]byte, 4)
	if err := ReadExactly(r, cmdBuf); err != nil {
		return RetSubmit{}, err
	}
	cmd := binary.BigEndian.Uint32(cmdBuf)
	if cmd != RetSubmit {
		return RetSubmit{}, fmt.Errorf("%w: expected RET_SUBMIT, got command 0x%08x", ErrMalformed, cmd)
	}
	header, err := readHeaderBasicTail(r, cmd)
	if err != nil {
		return RetSubmit{}, err
	}
	buf := make([]byte, cmdSubmitBodyLen)
	if err := ReadExactly(r, buf); err != nil {
		return RetSubmit{}, err
	}
	p := RetSubmit{Header: header}
	off := 0
	p.Status = int32(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	p.ActualLength = int32(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	p.StartFrame = binary.BigEndian.Uint32(buf[off:])
	off += 4
	p.NumberOfPackets = binary.BigEndian.Uint32(buf[off:])
	off += 4
	p.ErrorCount = binary.BigEndian.Uint32(buf[off:])
	off += 4
	copy(p.Setup[:], buf[off:off+setupLen])

	if header.Direction == DirIn && p.ActualLength > 0 {
		p.Data = make([]byte, p.ActualLength)
		if err := ReadExactly(r, p.Data); err != nil {
			return RetSubmit{}, err
		}
	}
	if p.NumberOfPackets > 0 {
		p.IsoPacketDescriptors = make([]byte, int(p.NumberOfPackets)*isoDescriptorLen)
		if err := ReadExactly(r, p.IsoPacketDescriptors); err != nil {
			return RetSubmit{}, err
		}
	}
	return p, nil
}

const unlinkBodyLen = 28

// CmdUnlink asks the server to cancel a previously submitted URB.
type CmdUnlink struct {
	Header       HeaderBasic
	UnlinkSeqnum uint32
}

func (p CmdUnlink) Marshal() []byte {
	buf := make([]byte, headerBasicLen+unlinkBodyLen)
	p.Header.marshalInto(buf)
	binary.BigEndian.PutUint32(buf[headerBasicLen:], p.UnlinkSeqnum)
	return buf
}

func readCmdUnlink(r io.Reader, header HeaderBasic) (CmdUnlink, error) {
	buf := make([]byte, unlinkBodyLen)
	if err := ReadExactly(r, buf); err != nil {
		return CmdUnlink{}, err
	}
	return CmdUnlink{Header: header, UnlinkSeqnum: binary.BigEndian.Uint32(buf)}, nil
}

// RetUnlink is the server's acknowledgement of a CMD_UNLINK.
type RetUnlink struct {
	Header HeaderBasic
	Status int32
}

func (p RetUnlink) Marshal() []byte {
	buf := make([]byte, headerBasicLen+unlinkBodyLen)
	p.Header.marshalInto(buf)
	binary.BigEndian.PutUint32(buf[headerBasicLen:], uint32(p.Status))
	return buf
}

// ReadRetUnlink decodes a full RET_UNLINK PDU, including its header, from r.
func ReadRetUnlink(r io.Reader) (RetUnlink, error) {
	cmdBuf := make([]byte, 4)
	if err := ReadExactly(r, cmdBuf); err != nil {
		return RetUnlink{}, err
	}
	cmd := binary.BigEndian.Uint32(cmdBuf)
	if cmd != RetUnlink {
		return RetUnlink{}, fmt.Errorf("%w: expected RET_UNLINK, got command 0x%08x", ErrMalformed, cmd)
	}
	header, err := readHeaderBasicTail(r, cmd)
	if err != nil {
		return RetUnlink{}, err
	}
	buf := make([]byte, unlinkBodyLen)
	if err := ReadExactly(r, buf); err != nil {
		return RetUnlink{}, err
	}
	return RetUnlink{Header: header, Status: int32(binary.BigEndian.Uint32(buf))}, nil
}
