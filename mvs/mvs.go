//go:build mvs

/*
Package mvs exposes Hikrobot MVS machine vision cameras through the camera
package's Runtime, using the MvCameraControl C SDK.

Build with -tags mvs on a machine with the SDK installed under /opt/MVS.
Without the tag, New returns an error and package sim should be used instead.
*/
package mvs

/*
#cgo CFLAGS: -I/opt/MVS/include
#cgo LDFLAGS: -L/opt/MVS/lib/64 -L/opt/MVS/lib/aarch64 -lMvCameraControl
#include <stdlib.h>
#include <stdbool.h>
#include <string.h>
#include "bridge.h"
*/
import "C"
import (
	"bytes"
	"fmt"
	"runtime/cgo"
	"sync"
	"time"
	"unsafe"

	"github.com/nasa-jpl/mvcam/camera"
)

// Exclusive is MV_ACCESS_Exclusive, the access mode devices are opened with
const Exclusive = 1

// Available is true when the package is built against the SDK
const Available = true

// Runtime is the MVS SDK.  There is one per process.
type Runtime struct{}

// New returns the SDK runtime
func New() (*Runtime, error) {
	return &Runtime{}, nil
}

// Initialize calls MV_CC_Initialize
func (r *Runtime) Initialize() error {
	return Error(uint32(C.MV_CC_Initialize()))
}

// Finalize calls MV_CC_Finalize
func (r *Runtime) Finalize() error {
	return Error(uint32(C.MV_CC_Finalize()))
}

// Version returns the SDK version as a dotted string
func (r *Runtime) Version() string {
	v := uint32(C.MV_CC_GetSDKVersion())
	return fmt.Sprintf("%d.%d.%d.%d", v>>24, (v>>16)&0xff, (v>>8)&0xff, v&0xff)
}

// goStr converts a fixed size, possibly unterminated, C char array to a string
func goStr(p *C.uchar, n int) string {
	b := C.GoBytes(unsafe.Pointer(p), C.int(n))
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// EnumDevices calls MV_CC_EnumDevices
func (r *Runtime) EnumDevices(mask camera.Transport) ([]camera.DeviceDescriptor, error) {
	layers := DeviceLayers(mask)
	if layers == 0 {
		return []camera.DeviceDescriptor{}, nil
	}
	var list C.MV_CC_DEVICE_INFO_LIST
	if err := Error(uint32(C.MV_CC_EnumDevices(C.uint(layers), &list))); err != nil {
		return nil, err
	}
	n := int(list.nDeviceNum)
	out := make([]camera.DeviceDescriptor, 0, n)
	for i := 0; i < n; i++ {
		info := list.pDeviceInfo[i]
		if info == nil {
			continue
		}
		out = append(out, deviceDescriptor(info))
	}
	return out, nil
}

type nativeDevice struct {
	info C.MV_CC_DEVICE_INFO
}

func deviceDescriptor(info *C.MV_CC_DEVICE_INFO) camera.DeviceDescriptor {
	layer := uint32(info.nTLayerType)
	d := camera.DeviceDescriptor{
		Transport: DeviceTransport(layer),
		Native:    &nativeDevice{info: *info},
	}
	special := unsafe.Pointer(&info.SpecialInfo)
	switch layer {
	case GigEDevice, VirGigEDevice, GenTLGigEDevice:
		g := (*C.MV_GIGE_DEVICE_INFO)(special)
		d.ModelName = goStr(&g.chModelName[0], len(g.chModelName))
		d.SerialNumber = goStr(&g.chSerialNumber[0], len(g.chSerialNumber))
		d.UserDefinedName = goStr(&g.chUserDefinedName[0], len(g.chUserDefinedName))
		d.ManufacturerName = goStr(&g.chManufacturerName[0], len(g.chManufacturerName))
		d.DeviceVersion = goStr(&g.chDeviceVersion[0], len(g.chDeviceVersion))
		d.CurrentIP = uint32(g.nCurrentIp)
		d.SubnetMask = uint32(g.nCurrentSubNetMask)
		d.Gateway = uint32(g.nDefultGateWay)
	case USBDevice, VirUSBDevice:
		u := (*C.MV_USB3_DEVICE_INFO)(special)
		d.ModelName = goStr(&u.chModelName[0], len(u.chModelName))
		d.SerialNumber = goStr(&u.chSerialNumber[0], len(u.chSerialNumber))
		d.UserDefinedName = goStr(&u.chUserDefinedName[0], len(u.chUserDefinedName))
		d.ManufacturerName = goStr(&u.chManufacturerName[0], len(u.chManufacturerName))
		d.DeviceVersion = goStr(&u.chDeviceVersion[0], len(u.chDeviceVersion))
		d.DeviceNumber = uint32(u.nDeviceNumber)
	case CameraLinkDevice, GenTLCameraLinkDevice:
		c := (*C.MV_CML_DEVICE_INFO)(special)
		d.InterfaceID = goStr(&c.chInterfaceID[0], len(c.chInterfaceID))
		d.ModelName = goStr(&c.chModelName[0], len(c.chModelName))
		d.SerialNumber = goStr(&c.chSerialNumber[0], len(c.chSerialNumber))
		d.UserDefinedName = goStr(&c.chUserDefinedName[0], len(c.chUserDefinedName))
		d.ManufacturerName = goStr(&c.chVendorName[0], len(c.chVendorName))
		d.DeviceVersion = goStr(&c.chDeviceVersion[0], len(c.chDeviceVersion))
	case GenTLCXPDevice:
		c := (*C.MV_CXP_DEVICE_INFO)(special)
		d.InterfaceID = goStr(&c.chInterfaceID[0], len(c.chInterfaceID))
		d.ModelName = goStr(&c.chModelName[0], len(c.chModelName))
		d.SerialNumber = goStr(&c.chSerialNumber[0], len(c.chSerialNumber))
		d.UserDefinedName = goStr(&c.chUserDefinedName[0], len(c.chUserDefinedName))
		d.ManufacturerName = goStr(&c.chVendorName[0], len(c.chVendorName))
		d.DeviceVersion = goStr(&c.chDeviceVersion[0], len(c.chDeviceVersion))
	case GenTLXoFDevice:
		x := (*C.MV_XOF_DEVICE_INFO)(special)
		d.InterfaceID = goStr(&x.chInterfaceID[0], len(x.chInterfaceID))
		d.ModelName = goStr(&x.chModelName[0], len(x.chModelName))
		d.SerialNumber = goStr(&x.chSerialNumber[0], len(x.chSerialNumber))
		d.UserDefinedName = goStr(&x.chUserDefinedName[0], len(x.chUserDefinedName))
		d.ManufacturerName = goStr(&x.chVendorName[0], len(x.chVendorName))
		d.DeviceVersion = goStr(&x.chDeviceVersion[0], len(x.chDeviceVersion))
	}
	return d
}

// EnumInterfaces calls MV_CC_EnumInterfaces
func (r *Runtime) EnumInterfaces(mask camera.Transport) ([]camera.InterfaceDescriptor, error) {
	layers := InterfaceLayers(mask)
	if layers == 0 {
		return []camera.InterfaceDescriptor{}, nil
	}
	var list C.MV_INTERFACE_INFO_LIST
	if err := Error(uint32(C.MV_CC_EnumInterfaces(C.uint(layers), &list))); err != nil {
		return nil, err
	}
	n := int(list.nInterfaceNum)
	out := make([]camera.InterfaceDescriptor, 0, n)
	for i := 0; i < n; i++ {
		info := list.pInterfaceInfos[i]
		if info == nil {
			continue
		}
		out = append(out, camera.InterfaceDescriptor{
			Transport:       InterfaceTransport(uint32(info.nTLayerType)),
			InterfaceID:     goStr(&info.chInterfaceID[0], len(info.chInterfaceID)),
			DisplayName:     goStr(&info.chDisplayName[0], len(info.chDisplayName)),
			SerialNumber:    goStr(&info.chSerialNumber[0], len(info.chSerialNumber)),
			ModelName:       goStr(&info.chModelName[0], len(info.chModelName)),
			Manufacturer:    goStr(&info.chManufacturer[0], len(info.chManufacturer)),
			DeviceVersion:   goStr(&info.chDeviceVersion[0], len(info.chDeviceVersion)),
			UserDefinedName: goStr(&info.chUserDefinedName[0], len(info.chUserDefinedName)),
			PCIeInfo:        uint32(info.nPCIEInfo),
			Native:          &nativeInterface{info: *info},
		})
	}
	return out, nil
}

type nativeInterface struct {
	info C.MV_INTERFACE_INFO
}

// OpenInterface creates and opens an interface handle
func (r *Runtime) OpenInterface(d camera.InterfaceDescriptor) (camera.Handle, error) {
	native, ok := d.Native.(*nativeInterface)
	if !ok {
		return nil, fmt.Errorf("interface %s was not enumerated by the MVS runtime", d.Label())
	}
	var h unsafe.Pointer
	if err := Error(uint32(C.MV_CC_CreateInterface(&h, &native.info))); err != nil {
		return nil, err
	}
	if err := Error(uint32(C.MV_CC_OpenInterface(h, nil))); err != nil {
		C.MV_CC_DestroyInterface(h)
		return nil, err
	}
	return &Interface{nodeMap{h: h}}, nil
}

// OpenDevice creates a handle and opens the device with exclusive access
func (r *Runtime) OpenDevice(d camera.DeviceDescriptor) (camera.DeviceHandle, error) {
	native, ok := d.Native.(*nativeDevice)
	if !ok {
		return nil, fmt.Errorf("device %s was not enumerated by the MVS runtime", d.Label())
	}
	var h unsafe.Pointer
	if err := Error(uint32(C.MV_CC_CreateHandle(&h, &native.info))); err != nil {
		return nil, err
	}
	if err := Error(uint32(C.MV_CC_OpenDevice(h, Exclusive, 0))); err != nil {
		C.MV_CC_DestroyHandle(h)
		return nil, err
	}
	return &Device{nodeMap: nodeMap{h: h}}, nil
}

// nodeMap implements the parameter half of camera.Handle on any SDK handle
type nodeMap struct {
	h unsafe.Pointer
}

func withKey(name string, fn func(*C.char) C.int) error {
	key := C.CString(name)
	defer C.free(unsafe.Pointer(key))
	return Error(uint32(fn(key)))
}

// GetInt calls MV_CC_GetIntValueEx
func (n nodeMap) GetInt(name string) (camera.IntValue, error) {
	var v C.MVCC_INTVALUE_EX
	err := withKey(name, func(k *C.char) C.int { return C.MV_CC_GetIntValueEx(n.h, k, &v) })
	return camera.IntValue{Cur: int64(v.nCurValue), Min: int64(v.nMin), Max: int64(v.nMax), Inc: int64(v.nInc)}, err
}

// SetInt calls MV_CC_SetIntValueEx
func (n nodeMap) SetInt(name string, val int64) error {
	return withKey(name, func(k *C.char) C.int { return C.MV_CC_SetIntValueEx(n.h, k, C.int64_t(val)) })
}

// GetFloat calls MV_CC_GetFloatValue
func (n nodeMap) GetFloat(name string) (camera.FloatValue, error) {
	var v C.MVCC_FLOATVALUE
	err := withKey(name, func(k *C.char) C.int { return C.MV_CC_GetFloatValue(n.h, k, &v) })
	return camera.FloatValue{Cur: float64(v.fCurValue), Min: float64(v.fMin), Max: float64(v.fMax)}, err
}

// SetFloat calls MV_CC_SetFloatValue
func (n nodeMap) SetFloat(name string, val float64) error {
	return withKey(name, func(k *C.char) C.int { return C.MV_CC_SetFloatValue(n.h, k, C.float(val)) })
}

// GetBool calls MV_CC_GetBoolValue
func (n nodeMap) GetBool(name string) (bool, error) {
	var v C.bool
	err := withKey(name, func(k *C.char) C.int { return C.MV_CC_GetBoolValue(n.h, k, &v) })
	return bool(v), err
}

// SetBool calls MV_CC_SetBoolValue
func (n nodeMap) SetBool(name string, val bool) error {
	return withKey(name, func(k *C.char) C.int { return C.MV_CC_SetBoolValue(n.h, k, C.bool(val)) })
}

// GetEnum calls MV_CC_GetEnumValue and resolves the symbolic name of every
// supported entry
func (n nodeMap) GetEnum(name string) (camera.EnumValue, error) {
	var v C.MVCC_ENUMVALUE
	key := C.CString(name)
	defer C.free(unsafe.Pointer(key))
	if err := Error(uint32(C.MV_CC_GetEnumValue(n.h, key, &v))); err != nil {
		return camera.EnumValue{}, err
	}
	out := camera.EnumValue{Cur: uint32(v.nCurValue)}
	for i := 0; i < int(v.nSupportedNum) && i < len(v.nSupportValue); i++ {
		var entry C.MVCC_ENUMENTRY
		entry.nValue = v.nSupportValue[i]
		e := camera.EnumEntry{Value: uint32(entry.nValue)}
		if C.MV_CC_GetEnumEntrySymbolic(n.h, key, &entry) == 0 {
			e.Symbolic = C.GoString(&entry.chSymbolic[0])
		}
		out.Supported = append(out.Supported, e)
	}
	return out, nil
}

// SetEnum calls MV_CC_SetEnumValue
func (n nodeMap) SetEnum(name string, val uint32) error {
	return withKey(name, func(k *C.char) C.int { return C.MV_CC_SetEnumValue(n.h, k, C.uint(val)) })
}

// SetEnumString calls MV_CC_SetEnumValueByString
func (n nodeMap) SetEnumString(name, symbolic string) error {
	sym := C.CString(symbolic)
	defer C.free(unsafe.Pointer(sym))
	return withKey(name, func(k *C.char) C.int { return C.MV_CC_SetEnumValueByString(n.h, k, sym) })
}

// GetString calls MV_CC_GetStringValue
func (n nodeMap) GetString(name string) (string, error) {
	var v C.MVCC_STRINGVALUE
	err := withKey(name, func(k *C.char) C.int { return C.MV_CC_GetStringValue(n.h, k, &v) })
	if err != nil {
		return "", err
	}
	return C.GoString(&v.chCurValue[0]), nil
}

// SetString calls MV_CC_SetStringValue
func (n nodeMap) SetString(name, val string) error {
	s := C.CString(val)
	defer C.free(unsafe.Pointer(s))
	return withKey(name, func(k *C.char) C.int { return C.MV_CC_SetStringValue(n.h, k, s) })
}

// Command calls MV_CC_SetCommandValue
func (n nodeMap) Command(name string) error {
	return withKey(name, func(k *C.char) C.int { return C.MV_CC_SetCommandValue(n.h, k) })
}

// Interface is an opened frame grabber
type Interface struct {
	nodeMap
}

// Close closes and destroys the interface handle
func (i *Interface) Close() error {
	if i.h == nil {
		return nil
	}
	err := Error(uint32(C.MV_CC_CloseInterface(i.h)))
	if derr := Error(uint32(C.MV_CC_DestroyInterface(i.h))); err == nil {
		err = derr
	}
	i.h = nil
	return err
}

// Device is an opened camera
type Device struct {
	nodeMap

	mu sync.Mutex
	cb cgo.Handle
}

// OptimalPacketSize calls MV_CC_GetOptimalPacketSize.  The SDK returns either a
// size or a status code in the same int.
func (d *Device) OptimalPacketSize() (int, error) {
	ret := int(C.MV_CC_GetOptimalPacketSize(d.h))
	if ret > 0 {
		return ret, nil
	}
	return 0, Error(uint32(int32(ret)))
}

// SetImageNodeNum calls MV_CC_SetImageNodeNum
func (d *Device) SetImageNodeNum(n int) error {
	return Error(uint32(C.MV_CC_SetImageNodeNum(d.h, C.uint(n))))
}

// RegisterFrameCallback calls MV_CC_RegisterImageCallBackEx.  The callback is
// reached through a cgo.Handle so that no Go pointer is held by the SDK.
func (d *Device) RegisterFrameCallback(fn func(camera.FrameNotification)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var next cgo.Handle
	if fn != nil {
		next = cgo.NewHandle(fn)
	}
	if err := Error(uint32(C.mvcam_register_callback(d.h, C.uintptr_t(next)))); err != nil {
		if next != 0 {
			next.Delete()
		}
		return err
	}
	if d.cb != 0 {
		d.cb.Delete()
	}
	d.cb = next
	return nil
}

// StartGrabbing calls MV_CC_StartGrabbing
func (d *Device) StartGrabbing() error {
	return Error(uint32(C.MV_CC_StartGrabbing(d.h)))
}

// StopGrabbing calls MV_CC_StopGrabbing
func (d *Device) StopGrabbing() error {
	return Error(uint32(C.MV_CC_StopGrabbing(d.h)))
}

// GetImageBuffer calls MV_CC_GetImageBuffer.  release calls
// MV_CC_FreeImageBuffer.
func (d *Device) GetImageBuffer(timeout time.Duration) (camera.FrameNotification, func() error, error) {
	out := new(C.MV_FRAME_OUT)
	ms := C.uint(timeout / time.Millisecond)
	if err := Error(uint32(C.MV_CC_GetImageBuffer(d.h, out, ms))); err != nil {
		return camera.FrameNotification{}, nil, err
	}
	n := notification(out.pBufAddr, &out.stFrameInfo)
	release := func() error {
		return Error(uint32(C.MV_CC_FreeImageBuffer(d.h, out)))
	}
	return n, release, nil
}

// Close closes and destroys the device handle
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.h == nil {
		return nil
	}
	err := Error(uint32(C.MV_CC_CloseDevice(d.h)))
	if derr := Error(uint32(C.MV_CC_DestroyHandle(d.h))); err == nil {
		err = derr
	}
	if d.cb != 0 {
		d.cb.Delete()
		d.cb = 0
	}
	d.h = nil
	return err
}

func notification(data *C.uchar, info *C.MV_FRAME_OUT_INFO_EX) camera.FrameNotification {
	l := int(info.nFrameLen)
	var buf []byte
	if data != nil && l > 0 {
		buf = unsafe.Slice((*byte)(unsafe.Pointer(data)), l)
	}
	return camera.FrameNotification{Frame: camera.Frame{
		Width:           int(info.nWidth),
		Height:          int(info.nHeight),
		FrameNum:        uint64(info.nFrameNum),
		PixelType:       camera.PixelType(info.enPixelType),
		FrameLen:        l,
		DeviceTimestamp: uint64(info.nDevTimeStampHigh)<<32 | uint64(info.nDevTimeStampLow),
		HostTimestamp:   time.UnixMilli(int64(info.nHostTimeStamp)),
		Data:            buf,
	}}
}
