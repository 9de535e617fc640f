// Package cdcacm provides a simulated CDC-ACM serial device: a
// communications interface answering the usual line-coding class
// requests, and a data interface that echoes whatever is written to its
// OUT endpoint back out its IN endpoint.
package cdcacm

import (
	"encoding/binary"
	"sync"

	"github.com/go-usbip/usbipd/usb"
)

// CDC class-specific requests (CDC 1.2, table 4).
const (
	reqSetLineCoding       = 0x20
	reqGetLineCoding       = 0x21
	reqSetControlLineState = 0x22
)

const recipientInterface = 0x01

const lineCodingLen = 7

type lineCoding struct {
	dteRate    uint32
	charFormat uint8
	parityType uint8
	dataBits   uint8
}

func defaultLineCoding() lineCoding {
	return lineCoding{dteRate: 9600, charFormat: 0, parityType: 0, dataBits: 8}
}

func (lc lineCoding) bytes() []byte {
	b := make([]byte, lineCodingLen)
	binary.LittleEndian.PutUint32(b[0:4], lc.dteRate)
	b[4] = lc.charFormat
	b[5] = lc.parityType
	b[6] = lc.dataBits
	return b
}

func parseLineCoding(b []byte) lineCoding {
	var lc lineCoding
	if len(b) < lineCodingLen {
		return lc
	}
	lc.dteRate = binary.LittleEndian.Uint32(b[0:4])
	lc.charFormat = b[4]
	lc.parityType = b[5]
	lc.dataBits = b[6]
	return lc
}

// controlHandler answers the three class requests a terminal program
// issues when it opens the port; it otherwise defers.
type controlHandler struct {
	mu               sync.Mutex
	coding           lineCoding
	controlLineState uint16
}

func newControlHandler() *controlHandler {
	return &controlHandler{coding: defaultLineCoding()}
}

func (h *controlHandler) HandleURB(_ usb.UsbEndpoint, setup usb.SetupPacket, transferLength int, dataOut []byte) ([]byte, bool, error) {
	if setup.IsStandard() || setup.Recipient() != recipientInterface {
		return nil, false, nil
	}

	switch setup.BRequest {
	case reqSetLineCoding:
		h.mu.Lock()
		h.coding = parseLineCoding(dataOut)
		h.mu.Unlock()
		return nil, true, nil

	case reqGetLineCoding:
		h.mu.Lock()
		data := h.coding.bytes()
		h.mu.Unlock()
		if transferLength < len(data) {
			data = data[:transferLength]
		}
		return data, true, nil

	case reqSetControlLineState:
		h.mu.Lock()
		h.controlLineState = setup.WValue
		h.mu.Unlock()
		return nil, true, nil
	}
	return nil, false, nil
}

// loopbackHandler holds the bytes most recently written to the OUT
// endpoint until the next IN poll collects them.
type loopbackHandler struct {
	mu  sync.Mutex
	buf []byte
}

func (h *loopbackHandler) HandleURB(ep usb.UsbEndpoint, _ usb.SetupPacket, transferLength int, dataOut []byte) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ep.Direction() == usb.DirectionOut {
		h.buf = append(h.buf[:0], dataOut...)
		return nil, nil
	}

	data := h.buf
	if len(data) > transferLength {
		data = data[:transferLength]
	}
	h.buf = h.buf[len(data):]
	return data, nil
}

// NewDevice returns a simulated two-interface CDC-ACM device: a
// communications interface for line-coding control, and a data
// interface whose bulk endpoints loop back whatever is written to them.
func NewDevice(n uint32) *usb.UsbDevice {
	d := usb.NewSimulatedDevice(n).
		WithClass(0x02, 0x00, 0x00).
		WithIDs(0x1209, 0x0002, 0x0100).
		WithHandler(newControlHandler())

	d.WithInterface(0x02, 0x02, 0x01, "CDC Communications", []usb.UsbEndpoint{
		{Address: 0x83, Attributes: uint8(usb.TransferInterrupt), MaxPacketSize: 8, Interval: 16},
	}, nil)

	d.WithInterface(0x0a, 0x00, 0x00, "CDC Data", []usb.UsbEndpoint{
		{Address: 0x82, Attributes: uint8(usb.TransferBulk), MaxPacketSize: 64},
		{Address: 0x02, Attributes: uint8(usb.TransferBulk), MaxPacketSize: 64},
	}, &loopbackHandler{})

	return d
}
