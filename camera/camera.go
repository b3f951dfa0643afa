/*
Package camera describes acquisition sessions against machine-vision cameras
driven by a vendor camera-control runtime.

The vendor library owns discovery, transport and streaming.  This package
owns everything around it: a Catalog that enumerates interfaces and devices and
keeps track of which physical devices are claimed, and a Session that walks one
opened device (or frame-grabber interface) through

	Created -> Opened -> Configured -> Streaming -> Opened -> Closed

delivering frames to a FrameSink while streaming.

The Runtime, Handle and DeviceHandle interfaces are the boundary to the vendor
library.  Package mvs implements them with cgo, package sim implements them
in-process for tests and mock operation.
*/
package camera

import "time"

// IntValue is an integer parameter with its limits
type IntValue struct {
	Cur int64 `json:"cur"`
	Min int64 `json:"min"`
	Max int64 `json:"max"`
	Inc int64 `json:"inc"`
}

// FloatValue is a floating point parameter with its limits
type FloatValue struct {
	Cur float64 `json:"cur"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// EnumEntry is one member of an enumeration parameter
type EnumEntry struct {
	Value    uint32 `json:"value"`
	Symbolic string `json:"symbolic"`
}

// EnumValue is the current value of an enumeration parameter and the members
// the device currently accepts
type EnumValue struct {
	Cur       uint32      `json:"cur"`
	Supported []EnumEntry `json:"supported"`
}

// Symbolic returns the symbolic name of the current value, if known
func (e EnumValue) Symbolic() string {
	for _, entry := range e.Supported {
		if entry.Value == e.Cur {
			return entry.Symbolic
		}
	}
	return ""
}

// Runtime is the vendor camera-control library.  Initialize must be called
// before anything else and Finalize exactly once at the end of the process.
type Runtime interface {
	// Initialize loads and initializes the vendor library
	Initialize() error

	// Finalize releases all resources held by the vendor library
	Finalize() error

	// Version returns the vendor library version as a string
	Version() string

	// EnumInterfaces lists the frame-grabber interfaces of the given kinds
	EnumInterfaces(mask Transport) ([]InterfaceDescriptor, error)

	// EnumDevices lists the cameras of the given kinds
	EnumDevices(mask Transport) ([]DeviceDescriptor, error)

	// OpenInterface creates and opens a handle to an interface
	OpenInterface(d InterfaceDescriptor) (Handle, error)

	// OpenDevice creates and opens a handle to a camera with exclusive access
	OpenDevice(d DeviceDescriptor) (DeviceHandle, error)
}

// Handle is an opened node map: an interface or a device.  Parameters are
// addressed by their GenICam feature name.
type Handle interface {
	GetInt(name string) (IntValue, error)
	SetInt(name string, v int64) error
	GetFloat(name string) (FloatValue, error)
	SetFloat(name string, v float64) error
	GetBool(name string) (bool, error)
	SetBool(name string, v bool) error
	GetEnum(name string) (EnumValue, error)
	SetEnum(name string, v uint32) error
	SetEnumString(name string, symbolic string) error
	GetString(name string) (string, error)
	SetString(name string, v string) error

	// Command executes a command feature, such as TriggerSoftware
	Command(name string) error

	// Close closes and destroys the handle.  The handle may not be used after
	// Close has been called, even if it returned an error.
	Close() error
}

// DeviceHandle is an opened camera, which in addition to a node map can stream
type DeviceHandle interface {
	Handle

	// OptimalPacketSize returns the recommended stream packet size.  Only
	// meaningful for network transports.
	OptimalPacketSize() (int, error)

	// SetImageNodeNum sets the number of buffers the runtime cycles through
	SetImageNodeNum(n int) error

	// RegisterFrameCallback installs fn as the frame-ready callback.  A nil fn
	// removes the callback.  fn is invoked on a context owned by the runtime.
	RegisterFrameCallback(fn func(FrameNotification)) error

	// StartGrabbing begins acquisition
	StartGrabbing() error

	// StopGrabbing ends acquisition
	StopGrabbing() error

	// GetImageBuffer waits up to timeout for the next frame when no callback is
	// registered.  release must be called once the frame data is no longer used.
	GetImageBuffer(timeout time.Duration) (n FrameNotification, release func() error, err error)
}
