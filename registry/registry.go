// Package registry holds the server's shared pool of devices, split
// between those available for import and those currently bound to a
// session. It is the only state shared across sessions.
package registry

import (
	"errors"
	"sync"

	"github.com/go-usbip/usbipd/usb"
)

// ErrInUse is returned by Remove when the bus-id is currently imported.
var ErrInUse = errors.New("registry: device in use")

// ErrNotFound is returned by Remove when the bus-id is in neither
// collection.
var ErrNotFound = errors.New("registry: device not found")

// Registry is the server's device pool: every device is in exactly one
// of available or imported, never both, never neither once added.
type Registry struct {
	mu        sync.RWMutex
	available []*usb.UsbDevice
	imported  map[string]*usb.UsbDevice
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		imported: make(map[string]*usb.UsbDevice),
	}
}

// Add appends device to the available collection. The caller guarantees
// BusID uniqueness; Add does not check for duplicates.
func (r *Registry) Add(device *usb.UsbDevice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.available = append(r.available, device)
}

// Remove drops an available device, fails with ErrInUse if it is
// imported, or ErrNotFound if it is neither.
func (r *Registry) Remove(busID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.imported[busID]; ok {
		return ErrInUse
	}
	for i, d := range r.available {
		if d.BusID == busID {
			r.available = append(r.available[:i], r.available[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// AvailableSnapshot returns a cloned slice of the currently available
// devices, safe for the caller to range over without holding the lock.
func (r *Registry) AvailableSnapshot() []*usb.UsbDevice {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*usb.UsbDevice, len(r.available))
	copy(out, r.available)
	return out
}

// Import atomically moves a device from available to imported and
// returns it, or returns ok=false if busID is not currently available.
func (r *Registry) Import(busID string) (device *usb.UsbDevice, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, d := range r.available {
		if d.BusID == busID {
			r.available = append(r.available[:i], r.available[i+1:]...)
			r.imported[busID] = d
			return d, true
		}
	}
	return nil, false
}

// Release atomically moves a previously imported device back to
// available. Releasing a bus-id that is not imported is a no-op.
func (r *Registry) Release(busID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.imported[busID]
	if !ok {
		return
	}
	delete(r.imported, busID)
	r.available = append(r.available, d)
}
