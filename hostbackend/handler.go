//go:build linux

package hostbackend

import (
	"errors"

	"github.com/go-usbip/usbipd/usb"
)

// errNoHandle is returned when a transfer targets a device this process
// was unable to open; the session reports it as a stalled URB rather
// than tearing down the connection.
var errNoHandle = errors.New("hostbackend: device handle unavailable")

// bridgeDeviceHandler answers vendor and class requests on endpoint 0 by
// replaying them as a real control transfer; standard requests are left
// for the control engine by returning handled=false.
type bridgeDeviceHandler struct {
	handle *deviceHandle
}

func (b *bridgeDeviceHandler) HandleURB(endpoint usb.UsbEndpoint, setup usb.SetupPacket, transferLength int, dataOut []byte) ([]byte, bool, error) {
	if setup.IsStandard() {
		return nil, false, nil
	}
	if b.handle == nil {
		return nil, true, errNoHandle
	}

	buf := dataOut
	if setup.IsDeviceToHost() {
		buf = make([]byte, transferLength)
	}
	n, err := b.handle.controlTransfer(setup.BmRequestType, setup.BRequest, setup.WValue, setup.WIndex, buf)
	if err != nil {
		return nil, true, err
	}
	if setup.IsDeviceToHost() {
		return buf[:n], true, nil
	}
	return nil, true, nil
}

// bridgeInterfaceHandler services bulk and interrupt endpoints on one
// claimed interface by replaying them as usbdevfs bulk transfers.
type bridgeInterfaceHandler struct {
	handle   *deviceHandle
	ifaceNum uint8
}

func (b bridgeInterfaceHandler) HandleURB(endpoint usb.UsbEndpoint, setup usb.SetupPacket, transferLength int, dataOut []byte) ([]byte, error) {
	if b.handle == nil {
		return nil, errNoHandle
	}
	if endpoint.Type() == usb.TransferIsochronous {
		return nil, usb.ErrStall
	}

	buf := dataOut
	if endpoint.Direction() == usb.DirectionIn {
		buf = make([]byte, transferLength)
	}
	n, err := b.handle.bulkOrInterruptTransfer(endpoint.Address, b.ifaceNum, buf)
	if err != nil {
		return nil, err
	}
	if endpoint.Direction() == usb.DirectionIn {
		return buf[:n], nil
	}
	return nil, nil
}
