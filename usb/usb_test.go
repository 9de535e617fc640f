package usb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSimulatedDeviceBusID(t *testing.T) {
	d := NewSimulatedDevice(0)
	assert.Equal(t, "0-0-0", d.BusID)
	assert.EqualValues(t, 1, d.NumConfigurations)
	assert.EqualValues(t, 1, d.ConfigurationValue)
}

func TestEP0MaxPacketSizePerSpeed(t *testing.T) {
	cases := []struct {
		speed Speed
		want  uint16
	}{
		{SpeedLow, 8},
		{SpeedFull, 16},
		{SpeedHigh, 64},
		{SpeedSuper, 64},
	}
	for _, c := range cases {
		d := NewSimulatedDevice(1).WithSpeed(c.speed)
		assert.Equal(t, c.want, d.EP0In.MaxPacketSize)
		assert.Equal(t, c.want, d.EP0Out.MaxPacketSize)
		assert.EqualValues(t, DirectionIn, d.EP0In.Direction())
		assert.EqualValues(t, DirectionOut, d.EP0Out.Direction())
	}
}

func TestStringTableDedupAndReserveZero(t *testing.T) {
	d := NewSimulatedDevice(0)

	idx1 := d.NewString("hello")
	idx2 := d.NewString("world")
	idx3 := d.NewString("hello")

	assert.EqualValues(t, 1, idx1)
	assert.EqualValues(t, 2, idx2)
	assert.EqualValues(t, 1, idx3, "duplicate string must reuse the existing index")

	assert.EqualValues(t, 0, d.NewString(""), "empty label maps to reserved index 0")

	s, ok := d.LookupString(1)
	require.True(t, ok)
	assert.Equal(t, "hello", s)

	_, ok = d.LookupString(0)
	assert.False(t, ok)
	_, ok = d.LookupString(99)
	assert.False(t, ok)
}

func TestFindEndpointWalksInterfacesInOrderAndDistinguishesDirection(t *testing.T) {
	d := NewSimulatedDevice(0).
		WithInterface(0x02, 0x00, 0x00, "iface0", []UsbEndpoint{
			{Address: 0x81, Attributes: uint8(TransferBulk), MaxPacketSize: 64},
		}, nil).
		WithInterface(0x02, 0x00, 0x00, "iface1", []UsbEndpoint{
			{Address: 0x02, Attributes: uint8(TransferBulk), MaxPacketSize: 64},
			{Address: 0x82, Attributes: uint8(TransferBulk), MaxPacketSize: 64},
		}, nil)

	iface, ep, ok := d.FindEndpoint(0x81)
	require.True(t, ok)
	assert.Same(t, d.Interfaces[0], iface)
	assert.EqualValues(t, DirectionIn, ep.Direction())

	iface, ep, ok = d.FindEndpoint(0x02)
	require.True(t, ok)
	assert.Same(t, d.Interfaces[1], iface)
	assert.EqualValues(t, DirectionOut, ep.Direction())

	// Same number, different direction bit: distinct endpoints.
	_, ep, ok = d.FindEndpoint(0x82)
	require.True(t, ok)
	assert.EqualValues(t, 0x02, ep.Number())
	assert.EqualValues(t, DirectionIn, ep.Direction())

	_, _, ok = d.FindEndpoint(0x05)
	assert.False(t, ok, "unknown endpoint address must not match")
}
