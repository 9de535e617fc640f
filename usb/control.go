package usb

// Standard request codes (USB 2.0 spec table 9-4).
const (
	ReqGetStatus        = 0x00
	ReqClearFeature     = 0x01
	ReqSetFeature       = 0x03
	ReqSetAddress       = 0x05
	ReqGetDescriptor    = 0x06
	ReqSetDescriptor    = 0x07
	ReqGetConfiguration = 0x08
	ReqSetConfiguration = 0x09
	ReqGetInterface     = 0x0A
	ReqSetInterface     = 0x0B
	ReqSynchFrame       = 0x0C
)

const (
	recipientDevice    = 0x00
	recipientInterface = 0x01
	recipientEndpoint  = 0x02
)

// HandleControlRequest answers a standard SETUP packet addressed to endpoint
// 0 from the device model alone, with no handler involvement. It takes no
// endpoint; callers use it for endpoint 0 only. ok is false when the request
// is not one of the recognized standard requests (a vendor or class request,
// or a recognized request with a recipient it does not answer); the caller
// should then dispatch to a handler. A returned error is always ErrStall.
func HandleControlRequest(d *UsbDevice, setup SetupPacket) (resp []byte, ok bool, err error) {
	if !setup.IsStandard() {
		return nil, false, nil
	}

	switch setup.BRequest {
	case ReqGetDescriptor:
		if !setup.IsDeviceToHost() {
			return nil, false, nil
		}
		data, err := getDescriptor(d, setup)
		if err != nil {
			return nil, true, err
		}
		if int(setup.WLength) < len(data) {
			data = data[:setup.WLength]
		}
		return data, true, nil

	case ReqSetConfiguration:
		if setup.WValue != uint16(d.ConfigurationValue) {
			return nil, true, ErrStall
		}
		return nil, true, nil

	case ReqSetInterface:
		if setup.WValue != 0 {
			return nil, true, ErrStall
		}
		return nil, true, nil

	case ReqGetConfiguration:
		return []byte{d.ConfigurationValue}, true, nil

	case ReqGetInterface:
		return []byte{0}, true, nil

	case ReqGetStatus:
		switch setup.Recipient() {
		case recipientDevice, recipientInterface:
			return []byte{0, 0}, true, nil
		}
		return nil, false, nil

	case ReqClearFeature, ReqSetFeature:
		switch setup.Recipient() {
		case recipientDevice, recipientInterface:
			return nil, true, nil
		}
		return nil, false, nil
	}

	return nil, false, nil
}

func getDescriptor(d *UsbDevice, setup SetupPacket) ([]byte, error) {
	descType := uint8(setup.WValue >> 8)
	descIndex := uint8(setup.WValue & 0xff)

	switch descType {
	case DescriptorTypeDevice:
		return DeviceDescriptorBytes(d), nil
	case DescriptorTypeConfiguration:
		return ConfigDescriptorBytes(d), nil
	case DescriptorTypeString:
		if descIndex == 0 {
			return LanguageListDescriptor(), nil
		}
		s, ok := d.LookupString(descIndex)
		if !ok {
			return nil, ErrStall
		}
		return StringDescriptorBytes(s), nil
	}
	return nil, ErrStall
}
