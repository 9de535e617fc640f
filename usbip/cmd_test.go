package usbip

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCmdSubmitRoundTripOut(t *testing.T) {
	want := CmdSubmit{
		Header:               HeaderBasic{Command: CmdSubmit, Seqnum: 7, Devid: 1, Direction: DirOut, Ep: 2},
		TransferFlags:        0,
		TransferBufferLength: 4,
		Interval:             0,
		Setup:                [8]byte{},
		Data:                 []byte{1, 2, 3, 4},
	}
	buf := want.Marshal()

	pdu, err := ReadPDU(bytes.NewReader(buf))
	require.NoError(t, err)
	got, ok := pdu.(CmdSubmit)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestCmdSubmitRoundTripInHasNoDataOnWire(t *testing.T) {
	want := CmdSubmit{
		Header:               HeaderBasic{Command: CmdSubmit, Seqnum: 8, Devid: 1, Direction: DirIn, Ep: 1},
		TransferBufferLength: 64,
	}
	buf := want.Marshal()
	require.Len(t, buf, headerBasicLen+cmdSubmitBodyLen, "IN requests carry no OUT payload on the wire")

	pdu, err := ReadPDU(bytes.NewReader(buf))
	require.NoError(t, err)
	got, ok := pdu.(CmdSubmit)
	require.True(t, ok)
	assert.Nil(t, got.Data)
	assert.EqualValues(t, 64, got.TransferBufferLength)
}

func TestCmdSubmitRoundTripWithIsoDescriptors(t *testing.T) {
	want := CmdSubmit{
		Header:               HeaderBasic{Command: CmdSubmit, Seqnum: 9, Devid: 1, Direction: DirOut, Ep: 3},
		NumberOfPackets:      2,
		IsoPacketDescriptors: make([]byte, 2*isoDescriptorLen),
	}
	buf := want.Marshal()

	pdu, err := ReadPDU(bytes.NewReader(buf))
	require.NoError(t, err)
	got, ok := pdu.(CmdSubmit)
	require.True(t, ok)
	assert.Equal(t, want.IsoPacketDescriptors, got.IsoPacketDescriptors)
}

func TestRetSubmitRoundTripIn(t *testing.T) {
	want := RetSubmit{
		Header:       HeaderBasic{Command: RetSubmit, Seqnum: 7, Devid: 0, Direction: DirIn, Ep: 0},
		Status:       0,
		ActualLength: 3,
		Data:         []byte{9, 8, 7},
	}
	buf := want.Marshal()

	got, err := ReadRetSubmit(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCmdUnlinkRoundTrip(t *testing.T) {
	want := CmdUnlink{
		Header:       HeaderBasic{Command: CmdUnlink, Seqnum: 10, Devid: 1, Direction: DirOut, Ep: 2},
		UnlinkSeqnum: 7,
	}
	buf := want.Marshal()

	pdu, err := ReadPDU(bytes.NewReader(buf))
	require.NoError(t, err)
	got, ok := pdu.(CmdUnlink)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestRetUnlinkRoundTrip(t *testing.T) {
	want := RetUnlink{
		Header: HeaderBasic{Command: RetUnlink, Seqnum: 10, Devid: 0, Direction: 0, Ep: 0},
		Status: 0,
	}
	buf := want.Marshal()

	got, err := ReadRetUnlink(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
