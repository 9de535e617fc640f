package usbip

import "errors"

// ErrMalformed marks a PDU that cannot be decoded: a record of the wrong
// length, or an unknown op code or command word. A stream that ends in the
// middle of a PDU is reported as io.ErrUnexpectedEOF instead. Callers
// should treat it as a protocol error and close the connection.
var ErrMalformed = errors.New("usbip: malformed pdu")
