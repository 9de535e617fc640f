package usb

import "errors"

// ErrStall is returned by the control engine or an InterfaceHandler to signal
// a USB-level stall (RET_SUBMIT status = -1) for an otherwise well-formed request.
var ErrStall = errors.New("usb: request stalled")
