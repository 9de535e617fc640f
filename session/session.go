// Package session implements one USB/IP connection's state machine:
// Greeting, in which only enumeration and import are valid, and Attached,
// in which URBs are submitted against the device this session imported.
package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-usbip/usbipd/registry"
	"github.com/go-usbip/usbipd/usb"
	"github.com/go-usbip/usbipd/usbip"
)

// ErrProtocol marks a PDU that is well-formed but invalid in the
// session's current state (e.g. CMD_SUBMIT before import, or an OP_*
// request after one). The connection must be closed.
var ErrProtocol = errors.New("session: protocol error")

const (
	statusSuccess = 0
	statusFailure = 1 // OP_REP_IMPORT failure code
	submitFailed  = -1
)

// Conn is the minimal transport a Session needs: a combined reader and
// writer. *net.TCPConn and net.Conn both satisfy it.
type Conn interface {
	io.Reader
	io.Writer
}

// Session drives one connection end to end. It is not safe for
// concurrent use; PDU handling is strictly sequential by design.
type Session struct {
	conn Conn
	reg  *registry.Registry
	log  *slog.Logger

	bound *usb.UsbDevice
}

// New returns a Session bound to conn and backed by reg. log receives a
// line per devlist, import, unlink and failed URB; a successful URB is not
// logged. A nil log means slog.Default().
func New(conn Conn, reg *registry.Registry, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{conn: conn, reg: reg, log: log}
}

// Serve runs the session's read loop until the peer disconnects or a
// wire-level or protocol error forces the connection closed. It always
// releases any bound device before returning, whatever the outcome.
func (s *Session) Serve() error {
	defer s.releaseBound()

	for {
		pdu, err := usbip.ReadPDU(s.conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("session: read pdu: %w", err)
		}

		if err := s.dispatch(pdu); err != nil {
			return err
		}
	}
}

func (s *Session) dispatch(pdu usbip.PDU) error {
	switch p := pdu.(type) {
	case usbip.OpReqDevlist:
		if s.bound != nil {
			return fmt.Errorf("%w: OP_REQ_DEVLIST while attached", ErrProtocol)
		}
		return s.handleDevlist(p)

	case usbip.OpReqImport:
		if s.bound != nil {
			return fmt.Errorf("%w: OP_REQ_IMPORT while attached", ErrProtocol)
		}
		return s.handleImport(p)

	case usbip.CmdSubmit:
		if s.bound == nil {
			return fmt.Errorf("%w: CMD_SUBMIT before import", ErrProtocol)
		}
		return s.handleSubmit(p)

	case usbip.CmdUnlink:
		if s.bound == nil {
			return fmt.Errorf("%w: CMD_UNLINK before import", ErrProtocol)
		}
		return s.handleUnlink(p)

	default:
		return fmt.Errorf("%w: unrecognized pdu %T", ErrProtocol, pdu)
	}
}

func (s *Session) handleDevlist(usbip.OpReqDevlist) error {
	devices := s.reg.AvailableSnapshot()
	entries := make([]usbip.DevlistEntry, len(devices))
	for i, d := range devices {
		entries[i] = deviceToEntry(d)
	}
	s.log.Debug("usbip devlist", "count", len(entries))
	_, err := s.conn.Write(usbip.OpRepDevlist{Status: statusSuccess, Entries: entries}.Marshal())
	return err
}

func (s *Session) handleImport(p usbip.OpReqImport) error {
	dev, ok := s.reg.Import(p.BusID)
	if !ok {
		s.log.Info("usbip import failed", "bus_id", p.BusID)
		_, err := s.conn.Write(usbip.OpRepImport{Status: statusFailure}.Marshal())
		return err
	}
	s.bound = dev
	s.log.Info("usbip import succeeded", "bus_id", p.BusID)
	rec := deviceRecord(dev)
	_, err := s.conn.Write(usbip.OpRepImport{Status: statusSuccess, Device: &rec}.Marshal())
	return err
}

func (s *Session) handleSubmit(p usbip.CmdSubmit) error {
	addr := uint8(p.Header.Ep)
	if p.Header.Direction == usbip.DirIn {
		addr |= 0x80
	}

	reply := p.Header
	reply.Command = usbip.RetSubmit

	data, err := s.runURB(addr, p)
	if err != nil {
		s.log.Warn("usbip urb failed", "ep", fmt.Sprintf("%#02x", addr), "error", err)
		_, werr := s.conn.Write(usbip.RetSubmit{Header: reply, Status: submitFailed, Setup: p.Setup}.Marshal())
		return werr
	}

	ret := usbip.RetSubmit{Header: reply, Status: statusSuccess, Setup: p.Setup}
	if p.Header.Direction == usbip.DirIn {
		if len(data) > int(p.TransferBufferLength) {
			data = data[:p.TransferBufferLength]
		}
		ret.Data = data
		ret.ActualLength = int32(len(data))
	} else {
		ret.ActualLength = p.TransferBufferLength
	}
	_, werr := s.conn.Write(ret.Marshal())
	return werr
}

// runURB dispatches one URB to the device's handlers. A nil error with
// nil data on an unrecognized endpoint is impossible: an unknown endpoint
// and a handler stall are both reported as errors, which handleSubmit
// turns into status=-1 while keeping the session open, per the spec's
// UnknownEndpoint and HandlerError kinds.
func (s *Session) runURB(addr uint8, p usbip.CmdSubmit) ([]byte, error) {
	setup := usb.ParseSetup(p.Setup)
	transferLength := int(p.TransferBufferLength)

	if addr == s.bound.EP0In.Address || addr == s.bound.EP0Out.Address {
		return s.runControlURB(s.bound.EP0In, setup, transferLength, p.Data)
	}

	iface, ep, ok := s.bound.FindEndpoint(addr)
	if !ok {
		return nil, fmt.Errorf("unknown endpoint %#02x", addr)
	}

	if s.bound.Handler != nil {
		data, handled, err := s.bound.Handler.HandleURB(ep, setup, transferLength, p.Data)
		if handled {
			return data, err
		}
	}
	if iface.Handler != nil {
		return iface.Handler.HandleURB(ep, setup, transferLength, p.Data)
	}
	return nil, usb.ErrStall
}

func (s *Session) runControlURB(ep0 usb.UsbEndpoint, setup usb.SetupPacket, transferLength int, dataOut []byte) ([]byte, error) {
	if s.bound.Handler != nil {
		data, handled, err := s.bound.Handler.HandleURB(ep0, setup, transferLength, dataOut)
		if handled {
			return data, err
		}
	}
	data, ok, err := usb.HandleControlRequest(s.bound, setup)
	if ok {
		return data, err
	}
	// A vendor or class request addressed to an interface (recipient 1)
	// goes to that interface's handler; the low byte of wIndex is the
	// interface number.
	if !setup.IsStandard() && setup.Recipient() == 0x01 {
		n := int(setup.WIndex & 0xff)
		if n < len(s.bound.Interfaces) && s.bound.Interfaces[n].Handler != nil {
			return s.bound.Interfaces[n].Handler.HandleURB(ep0, setup, transferLength, dataOut)
		}
	}
	return nil, usb.ErrStall
}

func (s *Session) handleUnlink(p usbip.CmdUnlink) error {
	reply := p.Header
	reply.Command = usbip.RetUnlink
	s.log.Debug("usbip unlink", "seqnum", p.UnlinkSeqnum)
	// Submission and completion are synchronous on this goroutine, so
	// there is never in-flight work to cancel; unlink is acknowledged
	// unconditionally.
	_, err := s.conn.Write(usbip.RetUnlink{Header: reply, Status: statusSuccess}.Marshal())
	return err
}

func (s *Session) releaseBound() {
	if s.bound == nil {
		return
	}
	s.reg.Release(s.bound.BusID)
	s.bound = nil
}

func deviceToEntry(d *usb.UsbDevice) usbip.DevlistEntry {
	rec := deviceRecord(d)
	ifaces := make([]usbip.InterfaceRecord, len(d.Interfaces))
	for i, iface := range d.Interfaces {
		ifaces[i] = usbip.InterfaceRecord{Class: iface.Class, SubClass: iface.SubClass, Protocol: iface.Protocol}
	}
	rec.BNumInterfaces = uint8(len(ifaces))
	return usbip.DevlistEntry{Device: rec, Interfaces: ifaces}
}

func deviceRecord(d *usb.UsbDevice) usbip.DeviceRecord {
	return usbip.DeviceRecord{
		Path:                d.Path,
		BusID:               d.BusID,
		BusNum:              d.BusNum,
		DevNum:              d.DevNum,
		Speed:               uint32(d.Speed),
		IDVendor:            d.VendorID,
		IDProduct:           d.ProductID,
		BcdDevice:           d.DeviceVersion,
		BDeviceClass:        d.DeviceClass,
		BDeviceSubClass:     d.DeviceSubClass,
		BDeviceProtocol:     d.DeviceProtocol,
		BConfigurationValue: d.ConfigurationValue,
		BNumConfigurations:  d.NumConfigurations,
		BNumInterfaces:      uint8(len(d.Interfaces)),
	}
}
