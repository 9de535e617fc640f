package session

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-usbip/usbipd/registry"
	"github.com/go-usbip/usbipd/usb"
	"github.com/go-usbip/usbipd/usbip"
)

// loopback wraps a net.Pipe end so the test can write requests and read
// replies while Session.Serve runs the server half on the other end.
func newLoopback(t *testing.T) (client net.Conn, srv *Session, reg *registry.Registry) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	reg = registry.New()
	srv = New(serverSide, reg, nil)
	return clientSide, srv, reg
}

func serveAsync(t *testing.T, s *Session) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- s.Serve() }()
	return done
}

// TestEmptyDevlist reproduces scenario S1: OP_REQ_DEVLIST against an
// empty registry returns exactly the 12-byte empty OP_REP_DEVLIST.
func TestEmptyDevlist(t *testing.T) {
	client, srv, _ := newLoopback(t)
	done := serveAsync(t, srv)

	req := []byte{0x01, 0x11, 0x80, 0x05, 0x00, 0x00, 0x00, 0x00}
	_, err := client.Write(req)
	require.NoError(t, err)

	resp := make([]byte, 12)
	_, err = io.ReadFull(client, resp)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x11, 0x00, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, resp)

	client.Close()
	require.NoError(t, <-done)
}

// TestOneDeviceDevlist reproduces scenario S2: one device exporting one
// interface yields a 0xC + 0x138 + 4 = 0x148 byte reply.
func TestOneDeviceDevlist(t *testing.T) {
	client, srv, reg := newLoopback(t)
	reg.Add(usb.NewSimulatedDevice(0).WithInterface(0x08, 0x06, 0x50, "", []usb.UsbEndpoint{
		{Address: 0x81, Attributes: uint8(usb.TransferBulk), MaxPacketSize: 64},
	}, nil))
	done := serveAsync(t, srv)

	wantLen := 0xC + usbip.DeviceRecordLen + usbip.InterfaceRecordLen
	assert.Equal(t, 0x148, wantLen)

	_, err := client.Write(usbip.OpReqDevlist{}.Marshal())
	require.NoError(t, err)

	raw := make([]byte, wantLen)
	_, err = io.ReadFull(client, raw)
	require.NoError(t, err)

	resp, err := usbip.ReadOpRepDevlist(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, resp.Entries, 1)

	client.Close()
	require.NoError(t, <-done)
}

// TestImportSuccess reproduces scenario S3: importing bus-id "0-0-0"
// returns an 0x140-byte reply (8 header/status + 0x138 device record).
func TestImportSuccess(t *testing.T) {
	client, srv, reg := newLoopback(t)
	reg.Add(usb.NewSimulatedDevice(0))
	done := serveAsync(t, srv)

	_, err := client.Write(usbip.OpReqImport{BusID: "0-0-0"}.Marshal())
	require.NoError(t, err)

	resp, err := usbip.ReadOpRepImport(client, true)
	require.NoError(t, err)
	assert.EqualValues(t, 0, resp.Status)
	require.NotNil(t, resp.Device)
	assert.Equal(t, "0-0-0", resp.Device.BusID)

	client.Close()
	require.NoError(t, <-done)
}

// TestDoubleImportRefusal reproduces scenario S4: a second session
// importing an already-bound bus-id sees status 1.
func TestDoubleImportRefusal(t *testing.T) {
	reg := registry.New()
	reg.Add(usb.NewSimulatedDevice(0))

	firstServer, firstClient := net.Pipe()
	s1 := New(firstServer, reg, nil)
	done1 := serveAsync(t, s1)

	_, err := firstClient.Write(usbip.OpReqImport{BusID: "0-0-0"}.Marshal())
	require.NoError(t, err)
	resp1, err := usbip.ReadOpRepImport(firstClient, true)
	require.NoError(t, err)
	require.EqualValues(t, 0, resp1.Status)

	secondServer, secondClient := net.Pipe()
	s2 := New(secondServer, reg, nil)
	done2 := serveAsync(t, s2)

	_, err = secondClient.Write(usbip.OpReqImport{BusID: "0-0-0"}.Marshal())
	require.NoError(t, err)
	resp2, err := usbip.ReadOpRepImport(secondClient, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, resp2.Status)

	firstClient.Close()
	secondClient.Close()
	require.NoError(t, <-done1)
	require.NoError(t, <-done2)
}

// TestReleaseOnDisconnect reproduces scenario S5: closing the importing
// session's connection returns the device to available.
func TestReleaseOnDisconnect(t *testing.T) {
	reg := registry.New()
	reg.Add(usb.NewSimulatedDevice(0))

	serverSide, clientSide := net.Pipe()
	s := New(serverSide, reg, nil)
	done := serveAsync(t, s)

	_, err := clientSide.Write(usbip.OpReqImport{BusID: "0-0-0"}.Marshal())
	require.NoError(t, err)
	_, err = usbip.ReadOpRepImport(clientSide, true)
	require.NoError(t, err)

	clientSide.Close()
	require.NoError(t, <-done)

	assert.Len(t, reg.AvailableSnapshot(), 1)

	serverSide2, clientSide2 := net.Pipe()
	s2 := New(serverSide2, reg, nil)
	done2 := serveAsync(t, s2)

	_, err = clientSide2.Write(usbip.OpReqImport{BusID: "0-0-0"}.Marshal())
	require.NoError(t, err)
	resp, err := usbip.ReadOpRepImport(clientSide2, true)
	require.NoError(t, err)
	assert.EqualValues(t, 0, resp.Status)

	clientSide2.Close()
	require.NoError(t, <-done2)
}

// TestGetDeviceDescriptorAfterImport reproduces scenario S6: CMD_SUBMIT
// IN on ep 0 with the GET_DESCRIPTOR(Device) setup returns an 18-byte
// device descriptor.
func TestGetDeviceDescriptorAfterImport(t *testing.T) {
	client, srv, reg := newLoopback(t)
	reg.Add(usb.NewSimulatedDevice(0))
	done := serveAsync(t, srv)

	_, err := client.Write(usbip.OpReqImport{BusID: "0-0-0"}.Marshal())
	require.NoError(t, err)
	_, err = usbip.ReadOpRepImport(client, true)
	require.NoError(t, err)

	submit := usbip.CmdSubmit{
		Header:               usbip.HeaderBasic{Command: usbip.CmdSubmit, Seqnum: 1, Devid: 0, Direction: usbip.DirIn, Ep: 0},
		TransferBufferLength: 0x40,
		Setup:                [8]byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x40, 0x00},
	}
	_, err = client.Write(submit.Marshal())
	require.NoError(t, err)

	ret, err := usbip.ReadRetSubmit(client)
	require.NoError(t, err)
	assert.EqualValues(t, 0, ret.Status)
	assert.Len(t, ret.Data, 18)

	client.Close()
	require.NoError(t, <-done)
}

func TestSubmitBeforeImportIsProtocolError(t *testing.T) {
	client, srv, _ := newLoopback(t)
	done := serveAsync(t, srv)

	submit := usbip.CmdSubmit{Header: usbip.HeaderBasic{Command: usbip.CmdSubmit, Direction: usbip.DirIn, Ep: 0}}
	_, err := client.Write(submit.Marshal())
	require.NoError(t, err)

	client.Close()
	err = <-done
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProtocol))
}

func TestSubmitUnknownEndpointKeepsSessionOpen(t *testing.T) {
	client, srv, reg := newLoopback(t)
	reg.Add(usb.NewSimulatedDevice(0))
	done := serveAsync(t, srv)

	_, err := client.Write(usbip.OpReqImport{BusID: "0-0-0"}.Marshal())
	require.NoError(t, err)
	_, err = usbip.ReadOpRepImport(client, true)
	require.NoError(t, err)

	submit := usbip.CmdSubmit{
		Header:               usbip.HeaderBasic{Command: usbip.CmdSubmit, Seqnum: 5, Direction: usbip.DirIn, Ep: 3},
		TransferBufferLength: 8,
	}
	_, err = client.Write(submit.Marshal())
	require.NoError(t, err)

	ret, err := usbip.ReadRetSubmit(client)
	require.NoError(t, err)
	assert.EqualValues(t, -1, ret.Status)

	client.Close()
	require.NoError(t, <-done)
}

func TestUnlinkIsAcknowledgedUnconditionally(t *testing.T) {
	client, srv, reg := newLoopback(t)
	reg.Add(usb.NewSimulatedDevice(0))
	done := serveAsync(t, srv)

	_, err := client.Write(usbip.OpReqImport{BusID: "0-0-0"}.Marshal())
	require.NoError(t, err)
	_, err = usbip.ReadOpRepImport(client, true)
	require.NoError(t, err)

	unlink := usbip.CmdUnlink{
		Header:       usbip.HeaderBasic{Command: usbip.CmdUnlink, Seqnum: 9},
		UnlinkSeqnum: 4,
	}
	_, err = client.Write(unlink.Marshal())
	require.NoError(t, err)

	ret, err := usbip.ReadRetUnlink(client)
	require.NoError(t, err)
	assert.EqualValues(t, 0, ret.Status)
	assert.EqualValues(t, 9, ret.Header.Seqnum)

	client.Close()
	require.NoError(t, <-done)
}
