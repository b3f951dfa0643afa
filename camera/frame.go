package camera

import (
	"encoding/binary"
	"fmt"
	"image"
	"sync/atomic"
	"time"
)

// PixelType is a GenICam pixel format code
type PixelType uint32

// pixel formats the package knows how to turn into images
const (
	Mono8      PixelType = 0x01080001
	Mono10     PixelType = 0x01100003
	Mono12     PixelType = 0x01100005
	Mono16     PixelType = 0x01100007
	BayerRG8   PixelType = 0x01080009
	RGB8Packed PixelType = 0x02180014
)

// BitsPerPixel is the storage size of one pixel, encoded in the format code
func (p PixelType) BitsPerPixel() int {
	return int((uint32(p) >> 16) & 0xff)
}

func (p PixelType) String() string {
	switch p {
	case Mono8:
		return "Mono8"
	case Mono10:
		return "Mono10"
	case Mono12:
		return "Mono12"
	case Mono16:
		return "Mono16"
	case BayerRG8:
		return "BayerRG8"
	case RGB8Packed:
		return "RGB8Packed"
	}
	return fmt.Sprintf("0x%08x", uint32(p))
}

// Frame is an image owned by the caller
type Frame struct {
	Width     int
	Height    int
	FrameNum  uint64
	PixelType PixelType

	// FrameLen is the number of valid bytes in Data
	FrameLen int

	// DeviceTimestamp is the camera's tick counter at capture
	DeviceTimestamp uint64

	// HostTimestamp is when the runtime received the frame
	HostTimestamp time.Time

	Data []byte
}

// FrameNotification describes one delivered frame.  Data refers to a buffer
// owned by the runtime and is only valid for the duration of the callback;
// use Copy to keep it.
type FrameNotification struct {
	Frame
}

// Copy returns a Frame which owns its data
func (n FrameNotification) Copy() Frame {
	f := n.Frame
	l := n.FrameLen
	if l <= 0 || l > len(n.Data) {
		l = len(n.Data)
	}
	f.Data = make([]byte, l)
	copy(f.Data, n.Data[:l])
	f.FrameLen = l
	return f
}

// Image converts a monochrome frame into an image.Image.  Mono10/12/16 data are
// little endian on the wire and are returned as image.Gray16.
func (f Frame) Image() (image.Image, error) {
	rect := image.Rect(0, 0, f.Width, f.Height)
	switch f.PixelType {
	case Mono8, BayerRG8:
		need := f.Width * f.Height
		if len(f.Data) < need {
			return nil, fmt.Errorf("frame %d holds %d bytes, %dx%d Mono8 needs %d", f.FrameNum, len(f.Data), f.Width, f.Height, need)
		}
		return &image.Gray{Pix: f.Data[:need], Stride: f.Width, Rect: rect}, nil
	case Mono10, Mono12, Mono16:
		need := 2 * f.Width * f.Height
		if len(f.Data) < need {
			return nil, fmt.Errorf("frame %d holds %d bytes, %dx%d %s needs %d", f.FrameNum, len(f.Data), f.Width, f.Height, f.PixelType, need)
		}
		// image.Gray16 is big endian
		pix := make([]byte, need)
		for i := 0; i < need; i += 2 {
			binary.BigEndian.PutUint16(pix[i:], binary.LittleEndian.Uint16(f.Data[i:]))
		}
		return &image.Gray16{Pix: pix, Stride: 2 * f.Width, Rect: rect}, nil
	}
	return nil, fmt.Errorf("pixel type %s cannot be converted to an image", f.PixelType)
}

// FrameSink receives frames while a session is streaming.  OnFrame is called on
// the runtime's delivery context; it must not retain n.Data and must not block
// for long, or later frames are starved.
type FrameSink interface {
	OnFrame(n FrameNotification)
}

// FrameSinkFunc adapts a function to a FrameSink
type FrameSinkFunc func(n FrameNotification)

// OnFrame calls f(n)
func (f FrameSinkFunc) OnFrame(n FrameNotification) {
	f(n)
}

// ChannelSink hands frames off to another goroutine through a bounded channel.
// Each frame is copied on receipt.  When the channel is full the frame is
// dropped and counted instead of blocking the delivery context.
type ChannelSink struct {
	ch        chan Frame
	delivered uint64
	dropped   uint64
}

// NewChannelSink returns a ChannelSink buffering up to size frames
func NewChannelSink(size int) *ChannelSink {
	if size < 1 {
		size = 1
	}
	return &ChannelSink{ch: make(chan Frame, size)}
}

// OnFrame implements FrameSink
func (c *ChannelSink) OnFrame(n FrameNotification) {
	select {
	case c.ch <- n.Copy():
		atomic.AddUint64(&c.delivered, 1)
	default:
		atomic.AddUint64(&c.dropped, 1)
	}
}

// Frames is the receiving side of the handoff.  It is closed by Close.
func (c *ChannelSink) Frames() <-chan Frame {
	return c.ch
}

// Delivered is the number of frames handed off so far
func (c *ChannelSink) Delivered() uint64 {
	return atomic.LoadUint64(&c.delivered)
}

// Dropped is the number of frames discarded because the channel was full
func (c *ChannelSink) Dropped() uint64 {
	return atomic.LoadUint64(&c.dropped)
}

// Close closes the frame channel.  It must only be called once the session
// feeding the sink has stopped grabbing.
func (c *ChannelSink) Close() {
	close(c.ch)
}

// MultiSink fans a notification out to several sinks in order
type MultiSink []FrameSink

// OnFrame implements FrameSink
func (m MultiSink) OnFrame(n FrameNotification) {
	for _, s := range m {
		if s != nil {
			s.OnFrame(n)
		}
	}
}
