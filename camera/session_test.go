package camera_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-jpl/mvcam/camera"
	"github.com/nasa-jpl/mvcam/mvs"
	"github.com/nasa-jpl/mvcam/sim"
)

func newCatalog(t *testing.T, opts ...sim.Option) (*camera.Catalog, *sim.Runtime) {
	t.Helper()
	rt := sim.New(opts...)
	cat := camera.NewCatalog(rt)
	require.NoError(t, cat.Initialize())
	t.Cleanup(func() { cat.Finalize() })
	return cat, rt
}

func openFirst(t *testing.T, cat *camera.Catalog, mask camera.Transport) *camera.Session {
	t.Helper()
	devs, err := cat.ListDevices(mask)
	require.NoError(t, err)
	require.NotEmpty(t, devs)
	s := cat.NewSession()
	require.NoError(t, s.Open(devs[0]))
	return s
}

func TestListDevicesEmptyMask(t *testing.T) {
	cat := camera.NewCatalog(sim.New())
	// no Initialize: an empty mask never reaches the runtime
	devs, err := cat.ListDevices(0)
	assert.NoError(t, err)
	assert.NotNil(t, devs)
	assert.Empty(t, devs)

	ifaces, err := cat.ListInterfaces(0)
	assert.NoError(t, err)
	assert.Empty(t, ifaces)
}

func TestListDevicesFilters(t *testing.T) {
	cat, _ := newCatalog(t)
	devs, err := cat.ListDevices(camera.USB3)
	require.NoError(t, err)
	require.Len(t, devs, 1)
	assert.Equal(t, camera.USB3, devs[0].Transport)
	assert.Equal(t, 0, devs[0].Index)

	devs, err = cat.ListDevices(camera.CameraLink)
	require.NoError(t, err)
	assert.Empty(t, devs)
}

func TestListDevicesEnumerationError(t *testing.T) {
	cat, _ := newCatalog(t, sim.WithEnumError(mvs.EUSBDriver))
	_, err := cat.ListDevices(camera.AllTransports)
	require.Error(t, err)
	assert.ErrorIs(t, err, camera.ErrEnumeration)
	code, ok := camera.StatusCode(err)
	assert.True(t, ok)
	assert.Equal(t, uint32(mvs.EUSBDriver), code)

	_, err = cat.ListInterfaces(camera.AllTransports)
	assert.ErrorIs(t, err, camera.ErrEnumeration)
}

func TestListBeforeInitialize(t *testing.T) {
	cat := camera.NewCatalog(sim.New())
	_, err := cat.ListDevices(camera.GigE)
	assert.ErrorIs(t, err, camera.ErrInvalidState)
}

func TestOpenSelectedIndex(t *testing.T) {
	cat, rt := newCatalog(t)
	devs, err := cat.ListDevices(camera.GigE | camera.USB3)
	require.NoError(t, err)
	require.Len(t, devs, 2)

	s := cat.NewSession()
	require.NoError(t, s.Open(devs[1]))
	defer s.Close()

	opened := rt.Opened()
	require.Len(t, opened, 1)
	assert.Equal(t, devs[1].SerialNumber, opened[0].SerialNumber)
	assert.NotEqual(t, devs[0].SerialNumber, opened[0].SerialNumber)
	assert.Equal(t, 1, s.Descriptor().Position())
}

func TestOpenBusy(t *testing.T) {
	cat, _ := newCatalog(t)
	devs, err := cat.ListDevices(camera.GigE)
	require.NoError(t, err)

	a := cat.NewSession()
	require.NoError(t, a.Open(devs[0]))

	b := cat.NewSession()
	err = b.Open(devs[0])
	assert.ErrorIs(t, err, camera.ErrDeviceBusy)
	assert.Equal(t, camera.Created, b.State())

	holder, ok := cat.Holder(devs[0].Key())
	assert.True(t, ok)
	assert.Equal(t, a.ID(), holder.ID())

	require.NoError(t, a.Close())
	require.NoError(t, b.Open(devs[0]))
	require.NoError(t, b.Close())
}

func TestOpenBusyAcrossCatalogs(t *testing.T) {
	rt := sim.New()
	one := camera.NewCatalog(rt)
	two := camera.NewCatalog(rt)
	require.NoError(t, one.Initialize())
	require.NoError(t, two.Initialize())
	defer one.Finalize()

	devs, err := one.ListDevices(camera.USB3)
	require.NoError(t, err)
	a := one.NewSession()
	require.NoError(t, a.Open(devs[0]))
	defer a.Close()

	// the runtime, not the catalog, reports the conflict here
	b := two.NewSession()
	err = b.Open(devs[0])
	assert.ErrorIs(t, err, camera.ErrDeviceBusy)
	code, _ := camera.StatusCode(err)
	assert.Equal(t, uint32(mvs.EAccessDenied), code)
	_, held := two.Holder(devs[0].Key())
	assert.False(t, held)
}

func TestStartFromOpenedFails(t *testing.T) {
	cat, _ := newCatalog(t)
	s := openFirst(t, cat, camera.GigE)
	defer s.Close()

	err := s.StartGrabbing(camera.NewChannelSink(1))
	assert.ErrorIs(t, err, camera.ErrInvalidState)
	assert.Equal(t, camera.Opened, s.State())
}

func TestStartFromCreatedFails(t *testing.T) {
	cat, _ := newCatalog(t)
	s := cat.NewSession()
	assert.ErrorIs(t, s.StartGrabbing(nil), camera.ErrInvalidState)
	assert.ErrorIs(t, s.SetInt("Width", 64), camera.ErrInvalidState)
	assert.ErrorIs(t, s.Configure(), camera.ErrInvalidState)
	assert.NoError(t, s.Close())
}

func TestCloseIdempotent(t *testing.T) {
	cat, _ := newCatalog(t)
	s := openFirst(t, cat, camera.GigE)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.Equal(t, camera.Closed, s.State())
	assert.ErrorIs(t, s.Open(s.Descriptor()), camera.ErrInvalidState)
}

func TestStopWhenNotStreaming(t *testing.T) {
	cat, _ := newCatalog(t)
	s := openFirst(t, cat, camera.GigE)
	defer s.Close()
	assert.NoError(t, s.StopGrabbing())
	assert.NoError(t, s.StopGrabbing())
	assert.Equal(t, camera.Opened, s.State())
}

func TestStartStopWithoutFrames(t *testing.T) {
	cat, _ := newCatalog(t)
	s := openFirst(t, cat, camera.GigE)
	defer s.Close()

	// triggered with nobody triggering: no frame can arrive
	require.NoError(t, s.SetEnumString("TriggerMode", "On"))
	require.NoError(t, s.SetEnumString("TriggerSource", "Software"))
	var calls int32
	sink := camera.FrameSinkFunc(func(camera.FrameNotification) { atomic.AddInt32(&calls, 1) })
	require.NoError(t, s.StartGrabbing(sink))
	assert.Equal(t, camera.Streaming, s.State())
	require.NoError(t, s.StopGrabbing())
	assert.Equal(t, camera.Opened, s.State())
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestConfigureStates(t *testing.T) {
	cat, _ := newCatalog(t)
	s := openFirst(t, cat, camera.USB3)
	defer s.Close()

	assert.Equal(t, camera.Opened, s.State())
	require.NoError(t, s.Configure())
	assert.Equal(t, camera.Configured, s.State())

	require.NoError(t, s.StartGrabbing(nil))
	require.NoError(t, s.StopGrabbing())
	assert.Equal(t, camera.Opened, s.State())

	require.NoError(t, s.Configure(
		camera.EnumString("TriggerMode", "Off"),
		camera.Float("ExposureTime", 5000),
		camera.Int("Width", 128),
	))
	assert.Equal(t, camera.Configured, s.State())
	w, err := s.GetInt("Width")
	require.NoError(t, err)
	assert.Equal(t, int64(128), w.Cur)
}

func TestParameterErrors(t *testing.T) {
	cat, _ := newCatalog(t)
	s := openFirst(t, cat, camera.GigE)
	defer s.Close()

	cases := []struct {
		name string
		err  error
	}{
		{"unknown name", s.SetInt("NoSuchFeature", 1)},
		{"out of range", s.SetInt("Width", 1<<20)},
		{"bad increment", s.SetInt("Width", 65)},
		{"bad symbolic", s.SetEnumString("TriggerMode", "Sometimes")},
		{"bad enum value", s.SetEnum("TriggerMode", 42)},
		{"wrong kind", s.SetBool("Width", true)},
		{"read only", s.SetFloat("DeviceTemperature", 20)},
		{"empty name", s.SetInt("", 0)},
		{"unknown command", s.Execute("Explode")},
	}
	for _, c := range cases {
		assert.ErrorIs(t, c.err, camera.ErrParameter, c.name)
	}
	// none of the failures moved the session
	assert.Equal(t, camera.Opened, s.State())

	var op *camera.OpError
	require.True(t, errors.As(s.SetInt("Width", 1<<20), &op))
	assert.Equal(t, "set int Width", op.Op)
	code, ok := camera.StatusCode(op)
	assert.True(t, ok)
	assert.Equal(t, uint32(mvs.EGCRange), code)

	_, err := s.GetFloat("Nope")
	assert.ErrorIs(t, err, camera.ErrParameter)
}

func TestConfigureStopsAtFirstFailure(t *testing.T) {
	cat, _ := newCatalog(t)
	s := openFirst(t, cat, camera.USB3)
	defer s.Close()

	err := s.Configure(
		camera.Int("Width", 8),
		camera.EnumString("PixelFormat", "YUV422"),
		camera.Int("Height", 8),
	)
	assert.ErrorIs(t, err, camera.ErrParameter)
	w, _ := s.GetInt("Width")
	h, _ := s.GetInt("Height")
	assert.Equal(t, int64(8), w.Cur)
	assert.Equal(t, int64(48), h.Cur)
	// the first set reached the device, the state did not move
	assert.Equal(t, camera.Opened, s.State())

	require.NoError(t, s.Configure(camera.Int("Width", 16)))
	assert.ErrorIs(t, s.Configure(camera.Int("Width", 7)), camera.ErrParameter)
	assert.Equal(t, camera.Configured, s.State())
}

func TestLockedWhileStreaming(t *testing.T) {
	cat, _ := newCatalog(t, sim.WithFrameInterval(time.Hour))
	s := openFirst(t, cat, camera.GigE)
	defer s.Close()
	require.NoError(t, s.Configure())
	require.NoError(t, s.StartGrabbing(camera.NewChannelSink(1)))

	assert.ErrorIs(t, s.SetInt("Width", 128), camera.ErrParameter)
	// exposure may change on the fly
	assert.NoError(t, s.SetFloat("ExposureTime", 2000))
	assert.Equal(t, camera.Streaming, s.State())
	assert.ErrorIs(t, s.StartGrabbing(nil), camera.ErrInvalidState)
}

func TestPushDeliveryInOrder(t *testing.T) {
	cat, _ := newCatalog(t, sim.WithFrameInterval(time.Millisecond))
	s := openFirst(t, cat, camera.GigE)
	defer s.Close()
	require.NoError(t, s.Configure())

	sink := camera.NewChannelSink(64)
	require.NoError(t, s.StartGrabbing(sink))
	var got []camera.Frame
	timeout := time.After(5 * time.Second)
	for len(got) < 5 {
		select {
		case f := <-sink.Frames():
			got = append(got, f)
		case <-timeout:
			t.Fatalf("received %d frames before timeout", len(got))
		}
	}
	require.NoError(t, s.StopGrabbing())
	sink.Close()

	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].FrameNum, got[i-1].FrameNum)
	}
	assert.Equal(t, 64, got[0].Width)
	assert.Equal(t, 48, got[0].Height)
	assert.Len(t, got[0].Data, 64*48)
}

func TestSoftwareTriggerOrder(t *testing.T) {
	cat, _ := newCatalog(t)
	s := openFirst(t, cat, camera.GigE)
	defer s.Close()
	require.NoError(t, s.Configure(
		camera.EnumString("TriggerMode", "On"),
		camera.EnumString("TriggerSource", "Software"),
	))
	sink := camera.NewChannelSink(8)
	require.NoError(t, s.StartGrabbing(sink))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Execute("TriggerSoftware"))
	}
	var nums []uint64
	timeout := time.After(5 * time.Second)
	for len(nums) < 3 {
		select {
		case f := <-sink.Frames():
			nums = append(nums, f.FrameNum)
		case <-timeout:
			t.Fatalf("received %d of 3 triggered frames", len(nums))
		}
	}
	require.NoError(t, s.StopGrabbing())
	assert.Equal(t, []uint64{1, 2, 3}, nums)
}

func TestStopWaitsForInFlightDelivery(t *testing.T) {
	cat, _ := newCatalog(t, sim.WithFrameInterval(time.Millisecond))
	s := openFirst(t, cat, camera.GigE)
	defer s.Close()
	require.NoError(t, s.Configure())

	var inFlight, calls int32
	entered := make(chan struct{})
	var once sync.Once
	sink := camera.FrameSinkFunc(func(camera.FrameNotification) {
		atomic.AddInt32(&inFlight, 1)
		atomic.AddInt32(&calls, 1)
		once.Do(func() { close(entered) })
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	})
	require.NoError(t, s.StartGrabbing(sink))
	<-entered
	require.NoError(t, s.StopGrabbing())
	assert.Equal(t, int32(0), atomic.LoadInt32(&inFlight))

	after := atomic.LoadInt32(&calls)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&calls))
}

func TestPullMode(t *testing.T) {
	cat, _ := newCatalog(t, sim.WithFrameInterval(time.Millisecond))
	s := openFirst(t, cat, camera.USB3)
	defer s.Close()
	require.NoError(t, s.SetImageNodeNum(3))
	require.NoError(t, s.Configure())

	_, err := s.NextFrame(time.Millisecond)
	assert.ErrorIs(t, err, camera.ErrInvalidState)

	require.NoError(t, s.StartGrabbing(nil))
	f, err := s.NextFrame(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 64*48, len(f.Data))
	assert.NotZero(t, f.FrameNum)
	require.NoError(t, s.StopGrabbing())

	_, err = s.NextFrame(time.Millisecond)
	assert.ErrorIs(t, err, camera.ErrInvalidState)
}

func TestPullTimeout(t *testing.T) {
	cat, _ := newCatalog(t)
	s := openFirst(t, cat, camera.USB3)
	defer s.Close()
	require.NoError(t, s.Configure(camera.EnumString("TriggerMode", "On")))
	require.NoError(t, s.StartGrabbing(nil))
	_, err := s.NextFrame(10 * time.Millisecond)
	assert.ErrorIs(t, err, camera.ErrTimeout)
	require.NoError(t, s.StopGrabbing())
}

func TestSetImageNodeNumInvalid(t *testing.T) {
	cat, _ := newCatalog(t)
	s := openFirst(t, cat, camera.USB3)
	defer s.Close()
	assert.ErrorIs(t, s.SetImageNodeNum(0), camera.ErrParameter)
}

func TestNegotiatePacketSize(t *testing.T) {
	cat, _ := newCatalog(t)
	s := openFirst(t, cat, camera.GigE)
	defer s.Close()

	size, w := s.NegotiateOptimalPacketSize()
	assert.Nil(t, w)
	assert.Equal(t, sim.DefaultPacketSize, size)
	v, err := s.GetInt(camera.PacketSizeFeature)
	require.NoError(t, err)
	assert.Equal(t, int64(sim.DefaultPacketSize), v.Cur)
	assert.Equal(t, camera.Configured, s.State())
}

func TestNegotiatePacketSizeNotNetwork(t *testing.T) {
	cat, _ := newCatalog(t)
	s := openFirst(t, cat, camera.USB3)
	defer s.Close()

	size, w := s.NegotiateOptimalPacketSize()
	assert.Nil(t, w)
	assert.Zero(t, size)
	assert.Equal(t, camera.Opened, s.State())
}

func TestNegotiatePacketSizeWarning(t *testing.T) {
	cat, _ := newCatalog(t, sim.WithPacketSize(0, mvs.ENotImplemented))
	s := openFirst(t, cat, camera.GigE)
	defer s.Close()

	size, w := s.NegotiateOptimalPacketSize()
	require.NotNil(t, w)
	assert.Zero(t, size)
	assert.True(t, camera.IsWarning(w))
	assert.ErrorIs(t, w, mvs.ENotImplemented)
	assert.Equal(t, camera.Opened, s.State())

	// acquisition still proceeds on defaults
	require.NoError(t, s.Configure())
	require.NoError(t, s.StartGrabbing(nil))
	require.NoError(t, s.StopGrabbing())
}

func TestNegotiatePacketSizeOutOfRange(t *testing.T) {
	cat, _ := newCatalog(t, sim.WithPacketSize(100000, nil))
	s := openFirst(t, cat, camera.GigE)
	defer s.Close()

	_, w := s.NegotiateOptimalPacketSize()
	require.NotNil(t, w)
	assert.ErrorIs(t, w, mvs.EGCRange)
}

func TestFinalizeClosesSessions(t *testing.T) {
	rt := sim.New(sim.WithFrameInterval(time.Millisecond))
	cat := camera.NewCatalog(rt)
	require.NoError(t, cat.Initialize())
	devs, err := cat.ListDevices(camera.GigE)
	require.NoError(t, err)
	s := cat.NewSession()
	require.NoError(t, s.Open(devs[0]))
	require.NoError(t, s.Configure())
	require.NoError(t, s.StartGrabbing(camera.NewChannelSink(4)))

	require.NoError(t, cat.Finalize())
	assert.Equal(t, camera.Closed, s.State())
	assert.False(t, rt.Initialized())
	_, open := rt.Device(devs[0].Key())
	assert.False(t, open)

	// second finalize is a no-op, as is closing the session again
	assert.NoError(t, cat.Finalize())
	assert.NoError(t, s.Close())
}

func TestInterfaceSession(t *testing.T) {
	cat, _ := newCatalog(t)
	ifaces, err := cat.ListInterfaces(camera.CameraLink | camera.CXP | camera.XoF)
	require.NoError(t, err)
	require.Len(t, ifaces, 2)

	s := cat.NewSession()
	require.NoError(t, s.Open(ifaces[0]))
	defer s.Close()

	require.NoError(t, s.Configure(
		camera.EnumString("CameraType", "LineScan"),
		camera.Bool("StreamTriggerEnable", true),
		camera.EnumString("StreamTriggerSource", "SoftwareSignal0"),
		camera.EnumString("StreamTriggerActivation", "RisingEdge"),
	))
	require.NoError(t, s.Execute("StreamSoftwareTrigger"))
	e, err := s.GetEnum("CameraType")
	require.NoError(t, err)
	assert.Equal(t, "LineScan", e.Symbolic())
	b, err := s.GetBool("StreamTriggerEnable")
	require.NoError(t, err)
	assert.True(t, b)

	assert.ErrorIs(t, s.StartGrabbing(nil), camera.ErrInvalidState)
	size, w := s.NegotiateOptimalPacketSize()
	assert.Zero(t, size)
	assert.Nil(t, w)
}

func TestLineScanBehindInterface(t *testing.T) {
	cat, _ := newCatalog(t)
	devs, err := cat.ListDevices(camera.GenTLCameraLink | camera.GenTLCXP | camera.GenTLXoF)
	require.NoError(t, err)
	require.Len(t, devs, 1)
	assert.Equal(t, "CXP0", devs[0].InterfaceID)

	s := cat.NewSession()
	require.NoError(t, s.Open(devs[0]))
	defer s.Close()
	require.NoError(t, s.Configure(
		camera.EnumString("ScanMode", "LineScan"),
		camera.Enum(camera.MultiLightFeature, 2),
		camera.Int("Height", 64),
	))
	e, err := s.GetEnum(camera.MultiLightFeature)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), e.Cur)

	require.NoError(t, s.StartGrabbing(nil))
	defer s.StopGrabbing()
	f, err := s.NextFrame(2 * time.Second)
	require.NoError(t, err)
	split, err := camera.SplitByLine(f, int(e.Cur))
	require.NoError(t, err)
	require.Len(t, split, 2)
	assert.Equal(t, 32, split[0].Height)
}

func TestParamFromValue(t *testing.T) {
	cases := []struct {
		in   interface{}
		want camera.Parameter
	}{
		{true, camera.Bool("X", true)},
		{7, camera.Number("X", 7)},
		{int64(9), camera.Number("X", 9)},
		{float64(12), camera.Number("X", 12)},
		{2.5, camera.Float("X", 2.5)},
		{"On", camera.EnumString("X", "On")},
		{nil, camera.Command("X")},
	}
	for _, c := range cases {
		got, err := camera.ParamFromValue("X", c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
	_, err := camera.ParamFromValue("X", []int{1})
	assert.ErrorIs(t, err, camera.ErrParameter)
}

func TestConfigureWholeNumbers(t *testing.T) {
	cat, _ := newCatalog(t)
	s := openFirst(t, cat, camera.USB3)
	defer s.Close()

	exp, err := camera.ParamFromValue("ExposureTime", float64(5000))
	require.NoError(t, err)
	width, err := camera.ParamFromValue("Width", 128)
	require.NoError(t, err)
	require.NoError(t, s.Configure(exp, width))

	e, err := s.GetFloat("ExposureTime")
	require.NoError(t, err)
	assert.Equal(t, 5000.0, e.Cur)
	w, err := s.GetInt("Width")
	require.NoError(t, err)
	assert.Equal(t, int64(128), w.Cur)

	bad, err := camera.ParamFromValue("NoSuchFeature", 3)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Configure(bad), camera.ErrParameter)
}

func TestSinkMayReadStateDuringStop(t *testing.T) {
	cat, _ := newCatalog(t, sim.WithFrameInterval(time.Millisecond))
	s := openFirst(t, cat, camera.GigE)
	defer s.Close()
	require.NoError(t, s.Configure())

	var seen int32
	sink := camera.FrameSinkFunc(func(camera.FrameNotification) {
		s.State()
		s.Descriptor()
		atomic.AddInt32(&seen, 1)
		time.Sleep(time.Millisecond)
	})
	require.NoError(t, s.StartGrabbing(sink))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&seen) > 2 }, time.Second, time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- s.StopGrabbing() }()
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("StopGrabbing did not return while the sink read the session state")
	}
	assert.Equal(t, camera.Opened, s.State())
}
