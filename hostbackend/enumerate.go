//go:build linux

package hostbackend

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-usbip/usbipd/usb"
)

const sysfsUsbDevices = "/sys/bus/usb/devices"

// Provider enumerates the real USB devices attached to this host and
// wraps each one in a usb.UsbDevice whose handlers bridge to usbdevfs.
type Provider struct {
	sysfsDir string
}

// NewProvider returns a Provider reading the standard sysfs location.
func NewProvider() *Provider {
	return &Provider{sysfsDir: sysfsUsbDevices}
}

// Enumerate returns one usb.UsbDevice per USB device node found in
// sysfs, root hubs included. A device that cannot be fully read (a
// permission error, a device unplugged mid-scan) is skipped rather than
// failing the whole enumeration.
func (p *Provider) Enumerate() ([]*usb.UsbDevice, error) {
	entries, err := os.ReadDir(p.sysfsDir)
	if err != nil {
		return nil, fmt.Errorf("hostbackend: read %s: %w", p.sysfsDir, err)
	}

	var devices []*usb.UsbDevice
	for _, entry := range entries {
		name := entry.Name()
		if strings.Contains(name, ":") {
			continue // an interface node, not a device node
		}
		if !strings.Contains(name, "-") && !strings.HasPrefix(name, "usb") {
			continue
		}
		dev, err := p.loadDevice(filepath.Join(p.sysfsDir, name), name)
		if err != nil {
			continue
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

func (p *Provider) loadDevice(path, name string) (*usb.UsbDevice, error) {
	busNum, err := readUint("busnum", path)
	if err != nil {
		return nil, err
	}
	devNum, err := readUint("devnum", path)
	if err != nil {
		return nil, err
	}
	vendor, _ := readHex16("idVendor", path)
	product, _ := readHex16("idProduct", path)
	bcdDevice, _ := readHex16("bcdDevice", path)
	class, _ := readUint8("bDeviceClass", path)
	subclass, _ := readUint8("bDeviceSubClass", path)
	protocol, _ := readUint8("bDeviceProtocol", path)
	maxPacket0, _ := readUint8("bMaxPacketSize0", path)
	numConfigs, _ := readUint8("bNumConfigurations", path)
	configValue, _ := readUint8("bConfigurationValue", path)

	port := parsePort(name)
	busID := fmt.Sprintf("%d-%d-%d", busNum, devNum, port)

	d := &usb.UsbDevice{
		BusID:              busID,
		Path:               fmt.Sprintf("/sys/bus/%d/%d/%d", busNum, devNum, port),
		BusNum:             uint32(busNum),
		DevNum:             uint32(devNum),
		Speed:              parseSpeed(readString("speed", path)),
		VendorID:           vendor,
		ProductID:          product,
		DeviceClass:        class,
		DeviceSubClass:     subclass,
		DeviceProtocol:     protocol,
		USBVersion:         parseBcdVersion(readString("version", path)),
		DeviceVersion:      bcdDevice,
		ConfigurationValue: configValue,
		NumConfigurations:  numConfigs,
	}
	if maxPacket0 == 0 {
		maxPacket0 = 64
	}
	d.EP0In = usb.UsbEndpoint{Address: uint8(usb.DirectionIn), Attributes: uint8(usb.TransferControl), MaxPacketSize: uint16(maxPacket0)}
	d.EP0Out = usb.UsbEndpoint{Address: uint8(usb.DirectionOut), Attributes: uint8(usb.TransferControl), MaxPacketSize: uint16(maxPacket0)}

	handle, err := openDeviceHandle(d.BusNum, d.DevNum)
	if err != nil {
		// A device this process cannot open (permissions, or it went away)
		// is still worth listing for OP_REQ_DEVLIST; submits against it
		// will stall until the handle opens successfully on a later scan.
		d.Handler = nil
	} else {
		d.Handler = &bridgeDeviceHandler{handle: handle}
	}

	ifaces, err := loadInterfaces(path, name, d.ConfigurationValue, handle)
	if err == nil {
		d.Interfaces = ifaces
	}

	return d, nil
}

func loadInterfaces(devicePath, deviceName string, configValue uint8, handle *deviceHandle) ([]*usb.UsbInterface, error) {
	parent := filepath.Dir(devicePath)
	entries, err := os.ReadDir(parent)
	if err != nil {
		return nil, err
	}

	prefix := deviceName + ":" + strconv.Itoa(int(configValue)) + "."
	var ifaces []*usb.UsbInterface
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		ifaceNum, err := strconv.Atoi(strings.TrimPrefix(entry.Name(), prefix))
		if err != nil {
			continue
		}
		ifacePath := filepath.Join(parent, entry.Name())
		class, _ := readUint8("bInterfaceClass", ifacePath)
		subclass, _ := readUint8("bInterfaceSubClass", ifacePath)
		protocol, _ := readUint8("bInterfaceProtocol", ifacePath)
		ifaces = append(ifaces, &usb.UsbInterface{
			Class:     class,
			SubClass:  subclass,
			Protocol:  protocol,
			Endpoints: loadEndpoints(ifacePath),
			Handler:   bridgeInterfaceHandler{handle: handle, ifaceNum: uint8(ifaceNum)},
		})
	}
	return ifaces, nil
}

func loadEndpoints(ifacePath string) []usb.UsbEndpoint {
	entries, err := os.ReadDir(ifacePath)
	if err != nil {
		return nil
	}
	var eps []usb.UsbEndpoint
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "ep_") {
			continue
		}
		epPath := filepath.Join(ifacePath, entry.Name())
		addr, err := readHex8("bEndpointAddress", epPath)
		if err != nil {
			continue
		}
		attrs, _ := readHex8("bmAttributes", epPath)
		maxPacket, _ := readHex16("wMaxPacketSize", epPath)
		interval, _ := readUint8("bInterval", epPath)
		eps = append(eps, usb.UsbEndpoint{
			Address:       addr,
			Attributes:    attrs,
			MaxPacketSize: maxPacket,
			Interval:      interval,
		})
	}
	return eps
}

func parsePort(name string) int {
	sep := strings.LastIndexAny(name, "-.")
	if sep < 0 {
		return 0
	}
	n, err := strconv.Atoi(name[sep+1:])
	if err != nil {
		return 0
	}
	return n
}

func parseSpeed(s string) usb.Speed {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1.5":
		return usb.SpeedLow
	case "12":
		return usb.SpeedFull
	case "480":
		return usb.SpeedHigh
	case "5000", "super", "super-speed", "superspeed":
		return usb.SpeedSuper
	default:
		return usb.SpeedUnknown
	}
}

func parseBcdVersion(s string) uint16 {
	var major, minor int
	if n, _ := fmt.Sscanf(strings.TrimSpace(s), "%d.%02d", &major, &minor); n == 2 {
		return uint16(major)<<8 | uint16(minor)
	}
	return 0
}

func readString(filename, dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func readUint(filename, dir string) (uint32, error) {
	val, err := strconv.ParseUint(readString(filename, dir), 10, 32)
	return uint32(val), err
}

func readUint8(filename, dir string) (uint8, error) {
	val, err := strconv.ParseUint(readString(filename, dir), 10, 8)
	return uint8(val), err
}

func readHex8(filename, dir string) (uint8, error) {
	val, err := strconv.ParseUint(strings.TrimPrefix(readString(filename, dir), "0x"), 16, 8)
	return uint8(val), err
}

func readHex16(filename, dir string) (uint16, error) {
	val, err := strconv.ParseUint(strings.TrimPrefix(readString(filename, dir), "0x"), 16, 16)
	return uint16(val), err
}
