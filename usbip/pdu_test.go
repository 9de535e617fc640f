package usbip

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPDUUnknownOpCode(t *testing.T) {
	buf := make([]byte, 4)
	buf[0], buf[1] = 0x01, 0x11
	buf[2], buf[3] = 0xff, 0xff
	_, err := ReadPDU(bytes.NewReader(buf))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestReadPDUUnknownCommandWord(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x00, 0x7f}
	_, err := ReadPDU(bytes.NewReader(buf))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestReadPDUCleanEOFBetweenPDUs(t *testing.T) {
	_, err := ReadPDU(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)
}

func TestReadPDUTruncatedMidPDU(t *testing.T) {
	want := OpReqDevlist{Status: 0}
	buf := want.Marshal()
	_, err := ReadPDU(bytes.NewReader(buf[:6]))
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}
