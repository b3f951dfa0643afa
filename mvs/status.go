package mvs

import (
	"fmt"

	"github.com/nasa-jpl/mvcam/camera"
)

// Status is a status code returned by the MVS camera control SDK
type Status uint32

// status codes, as defined in MvErrorDefine.h
const (
	OK Status = 0x00000000

	// general
	EHandle          Status = 0x80000000
	ESupport         Status = 0x80000001
	EBufOver         Status = 0x80000002
	ECallOrder       Status = 0x80000003
	EParameter       Status = 0x80000004
	EResource        Status = 0x80000006
	ENoData          Status = 0x80000007
	EPrecondition    Status = 0x80000008
	EVersion         Status = 0x80000009
	ENoEnoughBuf     Status = 0x8000000A
	EAbnormalImage   Status = 0x8000000B
	ELoadLibrary     Status = 0x8000000C
	ENoOutBuf        Status = 0x8000000D
	EEncrypt         Status = 0x8000000E
	EOpenFile        Status = 0x8000000F
	EBufInUse        Status = 0x80000010
	EBufInvalid      Status = 0x80000011
	ENoAlignBuf      Status = 0x80000012
	ENoEnoughBufNum  Status = 0x80000013
	EPortInUse       Status = 0x80000014
	EImageDecodec    Status = 0x80000015
	EUint32Limit     Status = 0x80000016
	EImageHeight     Status = 0x80000017
	ENoEnoughDDR     Status = 0x80000018
	ENoEnoughStream  Status = 0x80000019
	ENoResponse      Status = 0x8000001A
	EUnknown         Status = 0x800000FF
	EGCGeneric       Status = 0x80000100
	EGCArgument      Status = 0x80000101
	EGCRange         Status = 0x80000102
	EGCProperty      Status = 0x80000103
	EGCRuntime       Status = 0x80000104
	EGCLogical       Status = 0x80000105
	EGCAccess        Status = 0x80000106
	EGCTimeout       Status = 0x80000107
	EGCDynamicCast   Status = 0x80000108
	EGCUnknown       Status = 0x800001FF
	ENotImplemented  Status = 0x80000200
	EInvalidAddress  Status = 0x80000201
	EWriteProtect    Status = 0x80000202
	EAccessDenied    Status = 0x80000203
	EBusy            Status = 0x80000204
	EPacket          Status = 0x80000205
	ENetErr          Status = 0x80000206
	EIPConflict      Status = 0x80000221
	EUSBRead         Status = 0x80000300
	EUSBWrite        Status = 0x80000301
	EUSBDevice       Status = 0x80000302
	EUSBGenICam      Status = 0x80000303
	EUSBBandwidth    Status = 0x80000304
	EUSBDriver       Status = 0x80000305
	EUSBUnknown      Status = 0x800003FF
	EUpgFileMismatch Status = 0x80000400
)

// StatusNames maps status codes to their names in the SDK headers
var StatusNames = map[Status]string{
	OK:               "MV_OK",
	EHandle:          "MV_E_HANDLE",
	ESupport:         "MV_E_SUPPORT",
	EBufOver:         "MV_E_BUFOVER",
	ECallOrder:       "MV_E_CALLORDER",
	EParameter:       "MV_E_PARAMETER",
	EResource:        "MV_E_RESOURCE",
	ENoData:          "MV_E_NODATA",
	EPrecondition:    "MV_E_PRECONDITION",
	EVersion:         "MV_E_VERSION",
	ENoEnoughBuf:     "MV_E_NOENOUGH_BUF",
	EAbnormalImage:   "MV_E_ABNORMAL_IMAGE",
	ELoadLibrary:     "MV_E_LOAD_LIBRARY",
	ENoOutBuf:        "MV_E_NOOUTBUF",
	EEncrypt:         "MV_E_ENCRYPT",
	EOpenFile:        "MV_E_OPENFILE",
	EBufInUse:        "MV_E_BUF_IN_USE",
	EBufInvalid:      "MV_E_BUF_INVALID",
	ENoAlignBuf:      "MV_E_NOALIGN_BUF",
	ENoEnoughBufNum:  "MV_E_NOENOUGH_BUF_NUM",
	EPortInUse:       "MV_E_PORT_IN_USE",
	EImageDecodec:    "MV_E_IMAGE_DECODEC",
	EUint32Limit:     "MV_E_UINT32_LIMIT",
	EImageHeight:     "MV_E_IMAGE_HEIGHT",
	ENoEnoughDDR:     "MV_E_NOENOUGH_DDR",
	ENoEnoughStream:  "MV_E_NOENOUGH_STREAM",
	ENoResponse:      "MV_E_NORESPONSE",
	EUnknown:         "MV_E_UNKNOW",
	EGCGeneric:       "MV_E_GC_GENERIC",
	EGCArgument:      "MV_E_GC_ARGUMENT",
	EGCRange:         "MV_E_GC_RANGE",
	EGCProperty:      "MV_E_GC_PROPERTY",
	EGCRuntime:       "MV_E_GC_RUNTIME",
	EGCLogical:       "MV_E_GC_LOGICAL",
	EGCAccess:        "MV_E_GC_ACCESS",
	EGCTimeout:       "MV_E_GC_TIMEOUT",
	EGCDynamicCast:   "MV_E_GC_DYNAMICCAST",
	EGCUnknown:       "MV_E_GC_UNKNOW",
	ENotImplemented:  "MV_E_NOT_IMPLEMENTED",
	EInvalidAddress:  "MV_E_INVALID_ADDRESS",
	EWriteProtect:    "MV_E_WRITE_PROTECT",
	EAccessDenied:    "MV_E_ACCESS_DENIED",
	EBusy:            "MV_E_BUSY",
	EPacket:          "MV_E_PACKET",
	ENetErr:          "MV_E_NETER",
	EIPConflict:      "MV_E_IP_CONFLICT",
	EUSBRead:         "MV_E_USB_READ",
	EUSBWrite:        "MV_E_USB_WRITE",
	EUSBDevice:       "MV_E_USB_DEVICE",
	EUSBGenICam:      "MV_E_USB_GENICAM",
	EUSBBandwidth:    "MV_E_USB_BANDWIDTH",
	EUSBDriver:       "MV_E_USB_DRIVER",
	EUSBUnknown:      "MV_E_USB_UNKNOW",
	EUpgFileMismatch: "MV_E_UPG_FILE_MISMATCH",
}

func (s Status) Error() string {
	if name, ok := StatusNames[s]; ok {
		return fmt.Sprintf("0x%08X - %s", uint32(s), name)
	}
	return fmt.Sprintf("0x%08X - UNKNOWN_STATUS", uint32(s))
}

// StatusCode implements camera.StatusCoder
func (s Status) StatusCode() uint32 {
	return uint32(s)
}

// Unwrap maps the status onto the camera package's error kinds, so that
// errors.Is(err, camera.ErrDeviceBusy) and friends work on SDK errors
func (s Status) Unwrap() error {
	switch s {
	case EAccessDenied, EBusy:
		return camera.ErrDeviceBusy
	case EParameter, ESupport, EGCArgument, EGCRange, EGCProperty, EGCAccess,
		ENotImplemented, EInvalidAddress, EWriteProtect:
		return camera.ErrParameter
	case EHandle, ECallOrder, EPrecondition, EGCLogical:
		return camera.ErrInvalidState
	case ENoData, EGCTimeout:
		return camera.ErrTimeout
	}
	return nil
}

// Error returns nil for MV_OK and the Status otherwise
func Error(code uint32) error {
	if code == uint32(OK) {
		return nil
	}
	return Status(code)
}
