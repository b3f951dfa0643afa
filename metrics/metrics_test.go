package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-jpl/mvcam/camera"
	"github.com/nasa-jpl/mvcam/metrics"
)

func TestSinkCountsAndForwards(t *testing.T) {
	reg := prometheus.NewRegistry()
	var seen []uint64
	next := camera.FrameSinkFunc(func(n camera.FrameNotification) { seen = append(seen, n.FrameNum) })
	s, err := metrics.NewSink(reg, "bench-left", next)
	require.NoError(t, err)

	s.OnFrame(camera.FrameNotification{Frame: camera.Frame{FrameNum: 1, FrameLen: 100}})
	s.OnFrame(camera.FrameNotification{Frame: camera.Frame{FrameNum: 2, FrameLen: 100}})

	assert.Equal(t, []uint64{1, 2}, seen)
	n, err := testutil.GatherAndCount(reg, "mvcam_frames_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range mfs {
		m := mf.GetMetric()[0]
		switch {
		case m.Counter != nil:
			values[mf.GetName()] = m.Counter.GetValue()
		case m.Gauge != nil:
			values[mf.GetName()] = m.Gauge.GetValue()
		}
	}
	assert.Equal(t, 2.0, values["mvcam_frames_total"])
	assert.Equal(t, 200.0, values["mvcam_frame_bytes_total"])
	assert.Equal(t, 2.0, values["mvcam_last_frame_number"])
}

func TestSinkRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.NewSink(reg, "a", nil)
	require.NoError(t, err)
	_, err = metrics.NewSink(reg, "a", nil)
	assert.Error(t, err)
	_, err = metrics.NewSink(reg, "b", nil)
	assert.NoError(t, err)
}

func TestRegisterChannelSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := camera.NewChannelSink(1)
	require.NoError(t, metrics.RegisterChannelSink(reg, "a", c))
	c.OnFrame(camera.FrameNotification{})
	c.OnFrame(camera.FrameNotification{})

	n, err := testutil.GatherAndCount(reg, "mvcam_handoff_delivered_total", "mvcam_handoff_dropped_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		assert.Equal(t, 1.0, mf.GetMetric()[0].Counter.GetValue(), mf.GetName())
	}
}
