package sim

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/nasa-jpl/mvcam/camera"
	"github.com/nasa-jpl/mvcam/mvs"
)

// enumeration values used by the simulated node maps
const (
	TriggerModeOff uint32 = 0
	TriggerModeOn  uint32 = 1

	TriggerSourceLine0    uint32 = 0
	TriggerSourceSoftware uint32 = 7
)

func entry(v uint32, sym string) camera.EnumEntry {
	return camera.EnumEntry{Value: v, Symbolic: sym}
}

func deviceFeatures(d camera.DeviceDescriptor) map[string]*Feature {
	f := map[string]*Feature{
		"DeviceModelName":      stringFeature(d.ModelName),
		"DeviceSerialNumber":   stringFeature(d.SerialNumber),
		"DeviceUserID":         stringFeature(d.UserDefinedName),
		"TriggerMode":          enumFeature(TriggerModeOff, entry(TriggerModeOff, "Off"), entry(TriggerModeOn, "On")),
		"TriggerSource":        enumFeature(TriggerSourceLine0, entry(0, "Line0"), entry(1, "Line1"), entry(2, "Line2"), entry(4, "Counter0"), entry(TriggerSourceSoftware, "Software")),
		"TriggerSoftware":      {Kind: camera.KindCommand},
		"AcquisitionMode":      enumFeature(2, entry(0, "SingleFrame"), entry(1, "MultiFrame"), entry(2, "Continuous")),
		"AcquisitionFrameRate": floatFeature(30, 0.1, 1000),
		"ExposureTime":         floatFeature(10000, 15, 9999500),
		"Gain":                 floatFeature(0, 0, 23.98),
		"Width":                intFeature(64, 8, 4096, 8),
		"Height":               intFeature(48, 1, 4096, 1),
		"PixelFormat":          enumFeature(uint32(camera.Mono8), entry(uint32(camera.Mono8), "Mono8"), entry(uint32(camera.Mono12), "Mono12"), entry(uint32(camera.Mono16), "Mono16")),
		"DeviceTemperature":    floatFeature(41.5, -40, 125),
	}
	for _, name := range []string{"Width", "Height", "PixelFormat"} {
		f[name].Locked = true
	}
	f["DeviceTemperature"].ReadOnly = true
	f["DeviceModelName"].ReadOnly = true
	f["DeviceSerialNumber"].ReadOnly = true
	if d.Transport.Network() {
		f[camera.PacketSizeFeature] = intFeature(1500, 220, 9156, 8)
		f[camera.PacketSizeFeature].Locked = true
	}
	if d.Transport&(camera.GenTLCXP|camera.GenTLCameraLink|camera.GenTLXoF|camera.CXP|camera.CameraLink|camera.XoF) != 0 {
		f["ScanMode"] = enumFeature(0, entry(0, "FrameScan"), entry(1, "LineScan"))
		f[camera.MultiLightFeature] = enumFeature(1, entry(1, "Off"), entry(2, "MultiLight2"), entry(3, "MultiLight3"), entry(4, "MultiLight4"))
		f[camera.MultiLightFeature].Locked = true
	}
	return f
}

// Device is a simulated camera
type Device struct {
	nodeMap
	rt   *Runtime
	desc camera.DeviceDescriptor

	mu       sync.Mutex
	closed   bool
	grabbing bool
	cb       func(camera.FrameNotification)
	nodes    int
	stop     chan struct{}
	done     chan struct{}
	trig     chan struct{}
	queue    chan camera.Frame
	frameNum uint64
	lost     uint64
}

func newDevice(r *Runtime, d camera.DeviceDescriptor) *Device {
	dev := &Device{rt: r, desc: d, nodes: 5}
	dev.features = deviceFeatures(d)
	dev.features["TriggerSoftware"].Exec = dev.softwareTrigger
	dev.nodeMap.locked = dev.Grabbing
	return dev
}

// Grabbing reports whether acquisition is running
func (d *Device) Grabbing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.grabbing
}

// Lost is the number of frames discarded because the pull queue was full
func (d *Device) Lost() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

// OptimalPacketSize implements camera.DeviceHandle
func (d *Device) OptimalPacketSize() (int, error) {
	if !d.desc.Transport.Network() {
		return 0, mvs.ESupport
	}
	if d.rt.packetErr != nil {
		return 0, d.rt.packetErr
	}
	return d.rt.packetSize, nil
}

// SetImageNodeNum implements camera.DeviceHandle
func (d *Device) SetImageNodeNum(n int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.grabbing {
		return mvs.ECallOrder
	}
	if n < 1 {
		return mvs.EParameter
	}
	d.nodes = n
	return nil
}

// RegisterFrameCallback implements camera.DeviceHandle
func (d *Device) RegisterFrameCallback(fn func(camera.FrameNotification)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return mvs.EHandle
	}
	d.cb = fn
	return nil
}

// StartGrabbing implements camera.DeviceHandle
func (d *Device) StartGrabbing() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return mvs.EHandle
	}
	if d.grabbing {
		return mvs.ECallOrder
	}
	d.grabbing = true
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	d.trig = make(chan struct{}, 64)
	d.queue = make(chan camera.Frame, d.nodes)
	go d.run(d.stop, d.done, d.trig)
	return nil
}

// StopGrabbing implements camera.DeviceHandle.  It returns once the
// acquisition goroutine, and with it any callback in progress, has finished.
func (d *Device) StopGrabbing() error {
	d.mu.Lock()
	if !d.grabbing {
		d.mu.Unlock()
		return mvs.ECallOrder
	}
	d.grabbing = false
	close(d.stop)
	done := d.done
	d.mu.Unlock()
	<-done
	return nil
}

// GetImageBuffer implements camera.DeviceHandle
func (d *Device) GetImageBuffer(timeout time.Duration) (camera.FrameNotification, func() error, error) {
	d.mu.Lock()
	if !d.grabbing {
		d.mu.Unlock()
		return camera.FrameNotification{}, nil, mvs.ECallOrder
	}
	q, stop := d.queue, d.stop
	d.mu.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case f := <-q:
		return camera.FrameNotification{Frame: f}, func() error { return nil }, nil
	case <-t.C:
		return camera.FrameNotification{}, nil, mvs.ENoData
	case <-stop:
		return camera.FrameNotification{}, nil, mvs.ENoData
	}
}

// Close implements camera.Handle
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return mvs.EHandle
	}
	grabbing := d.grabbing
	d.mu.Unlock()
	if grabbing {
		d.StopGrabbing()
	}
	d.mu.Lock()
	d.closed = true
	d.cb = nil
	d.mu.Unlock()
	d.rt.release(d.desc.Key())
	return nil
}

func (d *Device) softwareTrigger() error {
	if d.enumSymbolic("TriggerMode") != "On" || d.enumSymbolic("TriggerSource") != "Software" {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.grabbing {
		return nil
	}
	select {
	case d.trig <- struct{}{}:
	default:
		d.lost++
	}
	return nil
}

func (d *Device) interval() time.Duration {
	if d.rt.frameInterval > 0 {
		return d.rt.frameInterval
	}
	fps := d.floatValue("AcquisitionFrameRate")
	if fps <= 0 {
		fps = 30
	}
	return time.Duration(float64(time.Second) / fps)
}

func (d *Device) run(stop, done chan struct{}, trig chan struct{}) {
	defer close(done)
	for {
		if d.enumSymbolic("TriggerMode") == "On" {
			select {
			case <-stop:
				return
			case <-trig:
			}
		} else {
			t := time.NewTimer(d.interval())
			select {
			case <-stop:
				t.Stop()
				return
			case <-t.C:
			}
		}
		d.emit()
	}
}

func (d *Device) emit() {
	w := int(d.intValue("Width"))
	h := int(d.intValue("Height"))
	pt := camera.PixelType(0)
	if v, err := d.GetEnum("PixelFormat"); err == nil {
		pt = camera.PixelType(v.Cur)
	}

	d.mu.Lock()
	d.frameNum++
	num := d.frameNum
	cb := d.cb
	q := d.queue
	d.mu.Unlock()

	f := camera.Frame{
		Width:           w,
		Height:          h,
		FrameNum:        num,
		PixelType:       pt,
		DeviceTimestamp: uint64(time.Now().UnixNano()) / 10,
		HostTimestamp:   time.Now(),
		Data:            pattern(w, h, pt, num),
	}
	f.FrameLen = len(f.Data)
	if cb != nil {
		cb(camera.FrameNotification{Frame: f})
		return
	}
	select {
	case q <- f:
	default:
		d.mu.Lock()
		d.lost++
		d.mu.Unlock()
	}
}

// pattern is a diagonal ramp which shifts by one count per frame
func pattern(w, h int, pt camera.PixelType, num uint64) []byte {
	if pt.BitsPerPixel() == 16 {
		buf := make([]byte, 2*w*h)
		limit := uint64(1)<<12 - 1
		if pt == camera.Mono16 {
			limit = 0xffff
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := (uint64(x+y) + num) % (limit + 1)
				binary.LittleEndian.PutUint16(buf[2*(y*w+x):], uint16(v))
			}
		}
		return buf
	}
	buf := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			buf[y*w+x] = byte(uint64(x+y) + num)
		}
	}
	return buf
}

// Interface is a simulated frame grabber
type Interface struct {
	nodeMap
	rt   *Runtime
	desc camera.InterfaceDescriptor

	mu       sync.Mutex
	closed   bool
	triggers int
}

func newInterface(r *Runtime, d camera.InterfaceDescriptor) *Interface {
	i := &Interface{rt: r, desc: d}
	i.features = map[string]*Feature{
		"InterfaceID":             stringFeature(d.InterfaceID),
		"CameraType":              enumFeature(0, entry(0, "AreaScan"), entry(1, "LineScan")),
		"StreamTriggerEnable":     boolFeature(false),
		"StreamTriggerSource":     enumFeature(0, entry(0, "SoftwareSignal0"), entry(1, "SoftwareSignal1"), entry(2, "Line0")),
		"StreamTriggerActivation": enumFeature(0, entry(0, "RisingEdge"), entry(1, "FallingEdge")),
		"StreamSoftwareTrigger":   {Kind: camera.KindCommand},
	}
	i.features["InterfaceID"].ReadOnly = true
	i.features["StreamSoftwareTrigger"].Exec = func() error {
		i.mu.Lock()
		defer i.mu.Unlock()
		i.triggers++
		return nil
	}
	return i
}

// Triggers is the number of stream software triggers executed
func (i *Interface) Triggers() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.triggers
}

// Close implements camera.Handle
func (i *Interface) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return mvs.EHandle
	}
	i.closed = true
	i.rt.release(i.desc.Key())
	return nil
}
