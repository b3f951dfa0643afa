package rig_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-jpl/mvcam/camera"
	"github.com/nasa-jpl/mvcam/mvs"
	"github.com/nasa-jpl/mvcam/rig"
	"github.com/nasa-jpl/mvcam/sim"
)

const (
	gigeSerial = "00E61234567"
	usbSerial  = "00F98765432"
)

func newRig(t *testing.T, opts ...sim.Option) *rig.Rig {
	t.Helper()
	opts = append([]sim.Option{sim.WithFrameInterval(2 * time.Millisecond)}, opts...)
	cat := camera.NewCatalog(sim.New(opts...))
	require.NoError(t, cat.Initialize())
	r := rig.New(cat, camera.GigE|camera.USB3)
	t.Cleanup(func() {
		r.Close()
		cat.Finalize()
	})
	return r
}

func TestAddConcurrently(t *testing.T) {
	r := newRig(t)
	names := []string{"left", "front"}
	cams := make([]*rig.Camera, len(names))
	errs := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			cams[i], errs[i] = r.Add(name, rig.Auto)
		}(i, name)
	}
	wg.Wait()

	for i := range names {
		require.NoError(t, errs[i])
		assert.Equal(t, camera.Opened, cams[i].Session.State())
	}
	assert.NotEqual(t, cams[0].Serial, cams[1].Serial)
	assert.ElementsMatch(t, []string{gigeSerial, usbSerial}, []string{cams[0].Serial, cams[1].Serial})
	assert.Equal(t, []string{"front", "left"}, r.Names())

	for _, c := range cams {
		held, ok := r.Catalog.Holder(c.Session.Descriptor().Key())
		require.True(t, ok)
		assert.Same(t, c.Session, held)
	}

	// every device is taken
	_, err := r.Add("spare", rig.Auto)
	assert.ErrorIs(t, err, rig.ErrNotFound)
}

func TestAddBySerial(t *testing.T) {
	r := newRig(t)
	c, err := r.Add("vertical", usbSerial)
	require.NoError(t, err)
	assert.Equal(t, usbSerial, c.Serial)

	_, err = r.Add("vertical", gigeSerial)
	assert.ErrorIs(t, err, rig.ErrName)
	_, err = r.Add("", gigeSerial)
	assert.ErrorIs(t, err, rig.ErrName)
	_, err = r.Add("a/b", gigeSerial)
	assert.ErrorIs(t, err, rig.ErrName)
	_, err = r.Add("left", "nope")
	assert.ErrorIs(t, err, rig.ErrNotFound)

	_, err = r.Add("other", usbSerial)
	assert.ErrorIs(t, err, camera.ErrDeviceBusy)

	require.NoError(t, r.Remove("vertical"))
	assert.Equal(t, camera.Closed, c.Session.State())
	_, ok := r.Camera("vertical")
	assert.False(t, ok)
	assert.ErrorIs(t, r.Remove("vertical"), rig.ErrNoCamera)

	c, err = r.Add("other", usbSerial)
	require.NoError(t, err)
	assert.Equal(t, camera.Opened, c.Session.State())
}

func TestPacketSizeWarning(t *testing.T) {
	r := newRig(t, sim.WithPacketSize(0, mvs.ENotImplemented))
	r.PacketSize = true
	c, err := r.Add("left", gigeSerial)
	require.Error(t, err)
	assert.True(t, camera.IsWarning(err))
	require.NotNil(t, c)
	assert.Equal(t, camera.Opened, c.Session.State())

	// USB cameras have nothing to negotiate
	_, err = r.Add("front", usbSerial)
	assert.NoError(t, err)
}

func TestStartStopAll(t *testing.T) {
	r := newRig(t)
	left, err := r.Add("left", gigeSerial)
	require.NoError(t, err)
	front, err := r.Add("front", usbSerial)
	require.NoError(t, err)
	require.NoError(t, front.Session.SetInt("Width", 128))

	require.NoError(t, r.StartAll())
	for _, c := range []*rig.Camera{left, front} {
		assert.Equal(t, camera.Streaming, c.Session.State())
	}
	// already streaming cameras are left alone
	require.NoError(t, r.StartAll())

	require.Eventually(t, func() bool {
		return left.Stats().Frames > 2 && front.Stats().Frames > 2
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, r.StopAll())
	status := r.Status()
	require.Len(t, status, 2)
	for _, s := range status {
		assert.Equal(t, "Opened", s.State)
		assert.NotZero(t, s.Stats.Bytes)
		assert.NotZero(t, s.Stats.LastFrame)
		assert.False(t, s.Stats.LastTime.IsZero())
	}

	n := left.Stats().Frames
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, left.Stats().Frames)
}

func TestExecuteAll(t *testing.T) {
	r := newRig(t)
	var cams []*rig.Camera
	for _, name := range []string{"left", "front"} {
		c, err := r.Add(name, rig.Auto)
		require.NoError(t, err)
		require.NoError(t, c.Session.Configure(
			camera.EnumString("TriggerMode", "On"),
			camera.EnumString("TriggerSource", "Software")))
		cams = append(cams, c)
	}
	// not streaming yet: nothing to trigger
	require.NoError(t, r.ExecuteAll(camera.TriggerSoftwareFeature))

	require.NoError(t, r.StartAll())
	require.NoError(t, r.ExecuteAll(camera.TriggerSoftwareFeature))
	require.Eventually(t, func() bool {
		return cams[0].Stats().Frames == 1 && cams[1].Stats().Frames == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Error(t, r.ExecuteAll("NoSuchCommand"))
}

func TestSinkOverridesCounter(t *testing.T) {
	r := newRig(t)
	c, err := r.Add("left", gigeSerial)
	require.NoError(t, err)
	ch := camera.NewChannelSink(64)
	c.Sink = camera.MultiSink{c.Counter(), ch}

	require.NoError(t, r.StartAll())
	select {
	case f := <-ch.Frames():
		assert.NotEmpty(t, f.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered to the camera's sink")
	}
	require.NoError(t, r.StopAll())
	assert.NotZero(t, c.Stats().Frames)
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func post(t *testing.T, url string) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestHTTPWrapper(t *testing.T) {
	r := newRig(t)
	_, err := r.Add("left", gigeSerial)
	require.NoError(t, err)
	_, err = r.Add("front", usbSerial)
	require.NoError(t, err)

	h := rig.NewHTTPWrapper(r)
	mux := chi.NewRouter()
	h.RT().Bind(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	code, body := get(t, srv.URL+"/cameras")
	require.Equal(t, http.StatusOK, code)
	var list []rig.Status
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "front", list[0].Name)
	assert.Equal(t, usbSerial, list[0].Serial)
	assert.Equal(t, "Opened", list[1].State)
	assert.Equal(t, "bench-left", list[1].Label)

	require.Equal(t, http.StatusOK, post(t, srv.URL+"/start-all"))
	require.Eventually(t, func() bool {
		var v struct {
			Int int64 `json:"int"`
		}
		code, body := get(t, srv.URL+"/cameras/left/frames")
		return code == http.StatusOK && json.Unmarshal([]byte(body), &v) == nil && v.Int > 0
	}, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, http.StatusOK, post(t, srv.URL+"/stop-all"))
	code, body = get(t, srv.URL+"/cameras/front/stats")
	require.Equal(t, http.StatusOK, code)
	var st rig.Stats
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.NotZero(t, st.Frames)

	code, _ = get(t, srv.URL+"/cameras/rear/stats")
	assert.Equal(t, http.StatusNotFound, code)

	// nothing is streaming, so there is nothing to trigger
	assert.Equal(t, http.StatusOK, post(t, srv.URL+"/trigger-all"))

	require.NoError(t, r.Close())
	assert.Equal(t, http.StatusOK, post(t, srv.URL+"/stop-all"))
	assert.Empty(t, r.Names())
}
