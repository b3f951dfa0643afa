/*
Package metrics exposes acquisition counters to prometheus.

Sink sits in front of another camera.FrameSink and counts what passes through
it; RegisterChannelSink publishes the delivered and dropped counts of a
camera.ChannelSink.  Both label their series with the device they belong to.
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nasa-jpl/mvcam/camera"
)

const namespace = "mvcam"

// Sink counts frames and bytes, and records the last frame number, before
// handing each notification to Next
type Sink struct {
	Next camera.FrameSink

	frames   prometheus.Counter
	bytes    prometheus.Counter
	frameNum prometheus.Gauge
}

// NewSink creates and registers the counters for device on reg
func NewSink(reg prometheus.Registerer, device string, next camera.FrameSink) (*Sink, error) {
	labels := prometheus.Labels{"device": device}
	s := &Sink{
		Next: next,
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "frames_total",
			Help:        "Frames delivered by the camera runtime.",
			ConstLabels: labels,
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "frame_bytes_total",
			Help:        "Bytes of image data delivered by the camera runtime.",
			ConstLabels: labels,
		}),
		frameNum: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_frame_number",
			Help:        "Frame number of the most recent frame.",
			ConstLabels: labels,
		}),
	}
	for _, c := range []prometheus.Collector{s.frames, s.bytes, s.frameNum} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// OnFrame implements camera.FrameSink
func (s *Sink) OnFrame(n camera.FrameNotification) {
	s.frames.Inc()
	s.bytes.Add(float64(n.FrameLen))
	s.frameNum.Set(float64(n.FrameNum))
	if s.Next != nil {
		s.Next.OnFrame(n)
	}
}

// RegisterChannelSink publishes the handoff counters of c for device on reg
func RegisterChannelSink(reg prometheus.Registerer, device string, c *camera.ChannelSink) error {
	labels := prometheus.Labels{"device": device}
	if err := reg.Register(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "handoff_delivered_total",
			Help:        "Frames handed off to the consumer goroutine.",
			ConstLabels: labels,
		},
		func() float64 { return float64(c.Delivered()) },
	)); err != nil {
		return err
	}
	return reg.Register(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "handoff_dropped_total",
			Help:        "Frames dropped because the consumer fell behind.",
			ConstLabels: labels,
		},
		func() float64 { return float64(c.Dropped()) },
	))
}
