package driver

import (
	"context"
	"fmt"
	"sync"

	"gitlab.com/d21d3q/minowmbus/internal/frame"
)

// Detection contains minimal information required to identify a driver.
type Detection struct {
	Manufacturer uint16
	CI           byte
	DeviceTypes  []byte // empty matches every device type
}

func (d Detection) matches(t *frame.Telegram) bool {
	if d.Manufacturer != t.Manufacturer || d.CI != t.CI {
		return false
	}
	if len(d.DeviceTypes) == 0 {
		return true
	}
	media := t.Media()
	for _, dt := range d.DeviceTypes {
		if dt == media {
			return true
		}
	}
	return false
}

// Driver processes telegrams once selected.
type Driver interface {
	Name() string
	Process(context.Context, *frame.Telegram) (map[string]any, error)
}

// PartialReporter can supply minimal fields when payload decryption fails.
type PartialReporter interface {
	PartialFields(*frame.Telegram) map[string]any
}

// Registry maps detections to drivers. It is populated once at startup and
// is safe for concurrent lookups.
type Registry struct {
	mu      sync.RWMutex
	drivers []registeredDriver
}

type registeredDriver struct {
	detect Detection
	driver Driver
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register stores a driver/detection pair.
func (r *Registry) Register(det Detection, drv Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers = append(r.drivers, registeredDriver{detect: det, driver: drv})
}

// Lookup returns the first driver whose detection matches the telegram.
func (r *Registry) Lookup(t *frame.Telegram) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rd := range r.drivers {
		if rd.detect.matches(t) {
			return rd.driver, nil
		}
	}
	return nil, fmt.Errorf("driver not found for manufacturer 0x%04X CI 0x%02X type 0x%02X", t.Manufacturer, t.CI, t.Media())
}

// Names lists the registered driver names without duplicates.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool, len(r.drivers))
	names := make([]string, 0, len(r.drivers))
	for _, rd := range r.drivers {
		if name := rd.driver.Name(); !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
