package camera

import "fmt"

// Descriptor identifies something that can be opened by a Session
type Descriptor interface {
	// Layer is the transport kind of the descriptor
	Layer() Transport

	// Label is a short human readable name
	Label() string

	// Key identifies the physical device, and is used to enforce exclusive
	// access
	Key() string

	// Position is the index of the descriptor in the enumeration that produced it
	Position() int
}

// DeviceDescriptor is a snapshot of one camera produced by enumeration
type DeviceDescriptor struct {
	// Transport is the transport layer the camera was found on
	Transport Transport `json:"transport"`

	ModelName        string `json:"modelName"`
	SerialNumber     string `json:"serialNumber"`
	UserDefinedName  string `json:"userDefinedName"`
	ManufacturerName string `json:"manufacturerName"`
	DeviceVersion    string `json:"deviceVersion"`

	// InterfaceID is the frame grabber the camera sits behind, for GenTL
	// and frame grabber transports
	InterfaceID string `json:"interfaceID,omitempty"`

	// CurrentIP, SubnetMask and Gateway are 32-bit big-endian IPv4 values,
	// only populated for network transports
	CurrentIP  uint32 `json:"currentIP,omitempty"`
	SubnetMask uint32 `json:"subnetMask,omitempty"`
	Gateway    uint32 `json:"gateway,omitempty"`

	// DeviceNumber is the USB device number, only populated for USB3
	DeviceNumber uint32 `json:"deviceNumber,omitempty"`

	// Index is the position in the enumeration
	Index int `json:"index"`

	// Native is a reference owned by the runtime that produced the descriptor
	Native interface{} `json:"-"`
}

// Layer implements Descriptor
func (d DeviceDescriptor) Layer() Transport { return d.Transport }

// Position implements Descriptor
func (d DeviceDescriptor) Position() int { return d.Index }

// Label prefers the user defined name over the model name
func (d DeviceDescriptor) Label() string {
	if d.UserDefinedName != "" {
		return d.UserDefinedName
	}
	return d.ModelName
}

// Key implements Descriptor
func (d DeviceDescriptor) Key() string {
	return fmt.Sprintf("device/%s/%s/%s", d.Transport, d.ModelName, d.SerialNumber)
}

// IP returns the dotted quad current IP of the device.  ok is false for
// transports that do not carry an IP.
func (d DeviceDescriptor) IP() (ip string, ok bool) {
	if !d.Transport.Network() {
		return "", false
	}
	return FormatIPv4(d.CurrentIP), true
}

// InterfaceDescriptor is a snapshot of one frame grabber interface produced by
// enumeration
type InterfaceDescriptor struct {
	Transport       Transport `json:"transport"`
	InterfaceID     string    `json:"interfaceID"`
	DisplayName     string    `json:"displayName"`
	SerialNumber    string    `json:"serialNumber"`
	ModelName       string    `json:"modelName"`
	Manufacturer    string    `json:"manufacturer"`
	DeviceVersion   string    `json:"deviceVersion"`
	UserDefinedName string    `json:"userDefinedName"`
	PCIeInfo        uint32    `json:"pcieInfo,omitempty"`
	Index           int       `json:"index"`

	// Native is a reference owned by the runtime that produced the descriptor
	Native interface{} `json:"-"`
}

// Layer implements Descriptor
func (d InterfaceDescriptor) Layer() Transport { return d.Transport }

// Position implements Descriptor
func (d InterfaceDescriptor) Position() int { return d.Index }

// Label implements Descriptor
func (d InterfaceDescriptor) Label() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.InterfaceID
}

// Key implements Descriptor
func (d InterfaceDescriptor) Key() string {
	return fmt.Sprintf("interface/%s/%s/%s", d.Transport, d.InterfaceID, d.SerialNumber)
}
