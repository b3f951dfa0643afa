/*
Package sim is an in-process camera.Runtime.  It behaves like the MVS SDK
with no hardware attached: enumeration returns a configurable set of devices and
interfaces, parameters live in per-device node maps, and opened devices produce
synthetic frames either continuously or on software trigger.  Failures are
reported with the same status codes the SDK uses.
*/
package sim

import (
	"sync"
	"time"

	"github.com/nasa-jpl/mvcam/camera"
	"github.com/nasa-jpl/mvcam/mvs"
)

// Version is reported by Runtime.Version
const Version = "4.4.1.3-sim"

// DefaultPacketSize is the optimal packet size reported for network cameras
const DefaultPacketSize = 8164

// Option configures a Runtime
type Option func(*Runtime)

// WithDevices replaces the devices the runtime enumerates
func WithDevices(devs ...camera.DeviceDescriptor) Option {
	return func(r *Runtime) { r.devices = devs }
}

// WithInterfaces replaces the interfaces the runtime enumerates
func WithInterfaces(ifaces ...camera.InterfaceDescriptor) Option {
	return func(r *Runtime) { r.ifaces = ifaces }
}

// WithEnumError makes every enumeration fail with err
func WithEnumError(err error) Option {
	return func(r *Runtime) { r.enumErr = err }
}

// WithPacketSize sets the result of OptimalPacketSize for network cameras
func WithPacketSize(size int, err error) Option {
	return func(r *Runtime) { r.packetSize, r.packetErr = size, err }
}

// WithFrameInterval fixes the period of continuous acquisition, overriding
// AcquisitionFrameRate
func WithFrameInterval(d time.Duration) Option {
	return func(r *Runtime) { r.frameInterval = d }
}

// DefaultDevices is a GigE area camera, a USB3 area camera and a CoaXPress
// line scan camera behind a frame grabber
func DefaultDevices() []camera.DeviceDescriptor {
	return []camera.DeviceDescriptor{
		{
			Transport:        camera.GigE,
			ModelName:        "MV-CA050-10GM",
			SerialNumber:     "00E61234567",
			UserDefinedName:  "bench-left",
			ManufacturerName: "Hikrobot",
			DeviceVersion:    "V3.2.1 230512",
			CurrentIP:        0xC0A80001,
			SubnetMask:       0xFFFFFF00,
			Gateway:          0xC0A800FE,
		},
		{
			Transport:        camera.USB3,
			ModelName:        "MV-CA013-21UM",
			SerialNumber:     "00F98765432",
			ManufacturerName: "Hikrobot",
			DeviceVersion:    "V2.9.0 221104",
			DeviceNumber:     3,
		},
		{
			Transport:        camera.GenTLCXP,
			ModelName:        "MV-CL042-91CM",
			SerialNumber:     "DA1122334",
			ManufacturerName: "Hikrobot",
			DeviceVersion:    "V1.4.0 220901",
			InterfaceID:      "CXP0",
		},
	}
}

// DefaultInterfaces is one CoaXPress and one CameraLink frame grabber
func DefaultInterfaces() []camera.InterfaceDescriptor {
	return []camera.InterfaceDescriptor{
		{
			Transport:     camera.CXP,
			InterfaceID:   "CXP0",
			DisplayName:   "GrabberCXP",
			SerialNumber:  "GC0011223",
			ModelName:     "MV-GC1004XM",
			Manufacturer:  "Hikrobot",
			DeviceVersion: "V1.0.2",
		},
		{
			Transport:     camera.CameraLink,
			InterfaceID:   "CML0",
			DisplayName:   "GrabberCL",
			SerialNumber:  "GL0044556",
			ModelName:     "MV-GL2104XM",
			Manufacturer:  "Hikrobot",
			DeviceVersion: "V1.1.0",
		},
	}
}

// Runtime is a simulated camera SDK
type Runtime struct {
	mu            sync.Mutex
	initialized   bool
	devices       []camera.DeviceDescriptor
	ifaces        []camera.InterfaceDescriptor
	enumErr       error
	packetSize    int
	packetErr     error
	frameInterval time.Duration

	open     map[string]bool
	opened   []camera.DeviceDescriptor
	handles  map[string]*Device
	grabbers map[string]*Interface
}

// New returns a Runtime with the default devices and interfaces
func New(opts ...Option) *Runtime {
	r := &Runtime{
		devices:    DefaultDevices(),
		ifaces:     DefaultInterfaces(),
		packetSize: DefaultPacketSize,
		open:       make(map[string]bool),
		handles:    make(map[string]*Device),
		grabbers:   make(map[string]*Interface),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Initialize marks the runtime initialized
func (r *Runtime) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialized = true
	return nil
}

// Finalize marks the runtime finalized
func (r *Runtime) Finalize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialized = false
	return nil
}

// Initialized reports whether Initialize has been called without a matching
// Finalize
func (r *Runtime) Initialized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initialized
}

// Version implements camera.Runtime
func (r *Runtime) Version() string { return Version }

// EnumDevices implements camera.Runtime
func (r *Runtime) EnumDevices(mask camera.Transport) ([]camera.DeviceDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return nil, mvs.ECallOrder
	}
	if r.enumErr != nil {
		return nil, r.enumErr
	}
	out := []camera.DeviceDescriptor{}
	for _, d := range r.devices {
		if d.Transport&mask != 0 {
			out = append(out, d)
		}
	}
	return out, nil
}

// EnumInterfaces implements camera.Runtime
func (r *Runtime) EnumInterfaces(mask camera.Transport) ([]camera.InterfaceDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return nil, mvs.ECallOrder
	}
	if r.enumErr != nil {
		return nil, r.enumErr
	}
	out := []camera.InterfaceDescriptor{}
	for _, d := range r.ifaces {
		if d.Transport&mask != 0 {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *Runtime) claim(key string) error {
	if !r.initialized {
		return mvs.ECallOrder
	}
	if r.open[key] {
		return mvs.EAccessDenied
	}
	r.open[key] = true
	return nil
}

func (r *Runtime) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.open, key)
	delete(r.handles, key)
	delete(r.grabbers, key)
}

// OpenDevice implements camera.Runtime.  The device must be one the runtime
// enumerates, and must not already be open.
func (r *Runtime) OpenDevice(d camera.DeviceDescriptor) (camera.DeviceHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	known := false
	for _, dev := range r.devices {
		if dev.Key() == d.Key() {
			known = true
			break
		}
	}
	if !known {
		return nil, mvs.EParameter
	}
	if err := r.claim(d.Key()); err != nil {
		return nil, err
	}
	r.opened = append(r.opened, d)
	dev := newDevice(r, d)
	r.handles[d.Key()] = dev
	return dev, nil
}

// OpenInterface implements camera.Runtime
func (r *Runtime) OpenInterface(d camera.InterfaceDescriptor) (camera.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	known := false
	for _, i := range r.ifaces {
		if i.Key() == d.Key() {
			known = true
			break
		}
	}
	if !known {
		return nil, mvs.EParameter
	}
	if err := r.claim(d.Key()); err != nil {
		return nil, err
	}
	i := newInterface(r, d)
	r.grabbers[d.Key()] = i
	return i, nil
}

// Opened lists the devices opened so far, in order
func (r *Runtime) Opened() []camera.DeviceDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]camera.DeviceDescriptor(nil), r.opened...)
}

// Device returns the open simulated device with the given key
func (r *Runtime) Device(key string) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.handles[key]
	return d, ok
}

// Interface returns the open simulated frame grabber with the given key
func (r *Runtime) Interface(key string) (*Interface, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.grabbers[key]
	return i, ok
}
