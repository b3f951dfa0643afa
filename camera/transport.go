package camera

import (
	"fmt"
	"net"
	"strings"
)

// Transport is a bitmask of transport layer kinds
type Transport uint32

const (
	// GigE is GigE Vision
	GigE Transport = 1 << iota

	// USB3 is USB3 Vision
	USB3

	// CameraLink is a CameraLink camera on a frame grabber
	CameraLink

	// CXP is a CoaXPress camera on a frame grabber
	CXP

	// XoF is a CoaXPress-over-Fiber camera on a frame grabber
	XoF

	// VirtualGigE is a software GigE camera
	VirtualGigE

	// VirtualUSB is a software USB camera
	VirtualUSB

	// GenTLGigE is a GigE camera reached through a GenTL producer
	GenTLGigE

	// GenTLCameraLink is a CameraLink camera reached through a GenTL producer
	GenTLCameraLink

	// GenTLCXP is a CoaXPress camera reached through a GenTL producer
	GenTLCXP

	// GenTLXoF is a CoaXPress-over-Fiber camera reached through a GenTL producer
	GenTLXoF
)

// AllTransports has every known bit set
const AllTransports = GigE | USB3 | CameraLink | CXP | XoF | VirtualGigE | VirtualUSB |
	GenTLGigE | GenTLCameraLink | GenTLCXP | GenTLXoF

var transportNames = []struct {
	t    Transport
	name string
}{
	{GigE, "GigE"},
	{USB3, "USB3"},
	{CameraLink, "CameraLink"},
	{CXP, "CXP"},
	{XoF, "XoF"},
	{VirtualGigE, "VirtualGigE"},
	{VirtualUSB, "VirtualUSB"},
	{GenTLGigE, "GenTLGigE"},
	{GenTLCameraLink, "GenTLCameraLink"},
	{GenTLCXP, "GenTLCXP"},
	{GenTLXoF, "GenTLXoF"},
}

// String returns the names of the set bits joined by |
func (t Transport) String() string {
	if t == 0 {
		return "None"
	}
	parts := []string{}
	rest := t
	for _, tn := range transportNames {
		if t&tn.t != 0 {
			parts = append(parts, tn.name)
			rest &^= tn.t
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// Has reports whether every bit of o is set in t
func (t Transport) Has(o Transport) bool {
	return o != 0 && t&o == o
}

// Network returns true if the transport carries a current IP address
func (t Transport) Network() bool {
	return t&(GigE|VirtualGigE|GenTLGigE) != 0
}

// ParseTransport parses a list of transport names separated by | or , into a
// mask.  Names are not case sensitive.  "all" selects every transport.
func ParseTransport(s string) (Transport, error) {
	var out Transport
	for _, field := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		field = strings.ToLower(strings.TrimSpace(field))
		if field == "" {
			continue
		}
		if field == "all" {
			out |= AllTransports
			continue
		}
		found := false
		for _, tn := range transportNames {
			if strings.ToLower(tn.name) == field {
				out |= tn.t
				found = true
				break
			}
		}
		if !found {
			return out, fmt.Errorf("unknown transport %q", field)
		}
	}
	return out, nil
}

// FormatIPv4 decodes a 32-bit big-endian IPv4 address, as reported by GigE
// Vision devices, into dotted-quad form
func FormatIPv4(ip uint32) string {
	return net.IPv4(byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip)).String()
}
