package mvs

import "github.com/nasa-jpl/mvcam/camera"

// device transport layer bits, nTLayerType in MV_CC_DEVICE_INFO
const (
	GigEDevice            uint32 = 0x00000001
	USBDevice             uint32 = 0x00000004
	CameraLinkDevice      uint32 = 0x00000008
	VirGigEDevice         uint32 = 0x00000010
	VirUSBDevice          uint32 = 0x00000020
	GenTLGigEDevice       uint32 = 0x00000040
	GenTLCameraLinkDevice uint32 = 0x00000080
	GenTLCXPDevice        uint32 = 0x00000100
	GenTLXoFDevice        uint32 = 0x00000200
)

// interface transport layer bits, nTLayerType in MV_INTERFACE_INFO
const (
	GigEInterface       uint32 = 0x00000001
	CameraLinkInterface uint32 = 0x00000004
	CXPInterface        uint32 = 0x00000008
	XoFInterface        uint32 = 0x00000010
)

type layer struct {
	cam    camera.Transport
	vendor uint32
}

// the first entry for a vendor bit wins when decoding
var deviceLayers = []layer{
	{camera.GigE, GigEDevice},
	{camera.USB3, USBDevice},
	{camera.CameraLink, CameraLinkDevice},
	{camera.VirtualGigE, VirGigEDevice},
	{camera.VirtualUSB, VirUSBDevice},
	{camera.GenTLGigE, GenTLGigEDevice},
	{camera.GenTLCameraLink, GenTLCameraLinkDevice},
	{camera.GenTLCXP, GenTLCXPDevice},
	{camera.GenTLXoF, GenTLXoFDevice},
	// cameras behind CoaXPress frame grabbers are only reachable through GenTL
	{camera.CXP, GenTLCXPDevice},
	{camera.XoF, GenTLXoFDevice},
}

var interfaceLayers = []layer{
	{camera.GigE, GigEInterface},
	{camera.CameraLink, CameraLinkInterface},
	{camera.CXP, CXPInterface},
	{camera.XoF, XoFInterface},
}

func toVendor(table []layer, t camera.Transport) uint32 {
	var out uint32
	for _, l := range table {
		if t&l.cam != 0 {
			out |= l.vendor
		}
	}
	return out
}

func fromVendor(table []layer, v uint32) camera.Transport {
	var out camera.Transport
	for _, l := range table {
		if v&l.vendor != 0 && out&l.cam == 0 {
			seen := false
			for _, prev := range table {
				if prev.vendor == l.vendor && prev.cam != l.cam && out&prev.cam != 0 {
					seen = true
				}
			}
			if !seen {
				out |= l.cam
			}
		}
	}
	return out
}

// DeviceLayers converts a transport mask to the SDK's device layer bits
func DeviceLayers(t camera.Transport) uint32 { return toVendor(deviceLayers, t) }

// DeviceTransport converts the SDK's device layer bits to a transport mask
func DeviceTransport(v uint32) camera.Transport { return fromVendor(deviceLayers, v) }

// InterfaceLayers converts a transport mask to the SDK's interface layer bits
func InterfaceLayers(t camera.Transport) uint32 { return toVendor(interfaceLayers, t) }

// InterfaceTransport converts the SDK's interface layer bits to a transport mask
func InterfaceTransport(v uint32) camera.Transport { return fromVendor(interfaceLayers, v) }
