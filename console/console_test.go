package console_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-jpl/mvcam/camera"
	"github.com/nasa-jpl/mvcam/console"
	"github.com/nasa-jpl/mvcam/mvs"
	"github.com/nasa-jpl/mvcam/sim"
)

func TestPrintDevices(t *testing.T) {
	var buf bytes.Buffer
	console.PrintDevices(&buf, sim.DefaultDevices())
	out := buf.String()
	assert.Contains(t, out, "[device 0]:")
	assert.Contains(t, out, "CurrentIp: 192.168.0.1")
	assert.Contains(t, out, "Model Name: MV-CA013-21UM")
	assert.Contains(t, out, "Device Number: 3")
	assert.Contains(t, out, "[device 2]:")
	assert.Equal(t, 1, strings.Count(out, "CurrentIp"))
}

func TestPrintInterfaces(t *testing.T) {
	var buf bytes.Buffer
	console.PrintInterfaces(&buf, sim.DefaultInterfaces())
	assert.Contains(t, buf.String(), "[interface 1]:")
	assert.Contains(t, buf.String(), "Display name: GrabberCL")
}

func TestSelectIndex(t *testing.T) {
	var out bytes.Buffer
	idx, err := console.SelectIndex(strings.NewReader("1\n"), &out, "camera", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "Please Input camera index(0-2):", out.String())

	idx, err = console.SelectIndex(strings.NewReader(" 2 "), &out, "camera", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
}

func TestSelectIndexRejects(t *testing.T) {
	for _, in := range []string{"3\n", "-1\n", "abc\n", "\n", ""} {
		_, err := console.SelectIndex(strings.NewReader(in), &bytes.Buffer{}, "camera", 3)
		assert.ErrorIs(t, err, console.ErrSelection, "%q", in)
	}
	_, err := console.SelectIndex(strings.NewReader("0\n"), &bytes.Buffer{}, "camera", 0)
	assert.ErrorIs(t, err, console.ErrSelection)
}

// an out of range choice must not open anything
func TestOutOfRangeSelectionOpensNothing(t *testing.T) {
	rt := sim.New()
	cat := camera.NewCatalog(rt)
	require.NoError(t, cat.Initialize())
	defer cat.Finalize()
	devs, err := cat.ListDevices(camera.GigE | camera.USB3)
	require.NoError(t, err)

	_, err = console.SelectIndex(strings.NewReader("7\n"), &bytes.Buffer{}, "camera", len(devs))
	require.Error(t, err)
	assert.Empty(t, rt.Opened())
}

func TestSelectTransport(t *testing.T) {
	var out bytes.Buffer
	mask, err := console.SelectTransport(strings.NewReader("2\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, camera.GenTLCXP, mask)
	assert.Contains(t, out.String(), "[3]: Enum XOF Interface Devices")

	_, err = console.SelectTransport(strings.NewReader("4\n"), &out)
	assert.ErrorIs(t, err, console.ErrSelection)
}

func TestFail(t *testing.T) {
	var out bytes.Buffer
	console.Fail(&out, "Open Device", &camera.OpError{Op: "open", Kind: camera.ErrDeviceBusy, Err: mvs.EAccessDenied})
	assert.Contains(t, out.String(), "Open Device fail! nRet [0x80000203]")

	out.Reset()
	console.Fail(&out, "Start Grabbing", errors.New("nope"))
	assert.Equal(t, "Start Grabbing fail! nope\n", out.String())
}

func TestSpinReturnsResult(t *testing.T) {
	var out bytes.Buffer
	ran := false
	require.NoError(t, console.Spin(&out, "enumerating", func() error { ran = true; return nil }))
	assert.True(t, ran)

	boom := errors.New("boom")
	assert.ErrorIs(t, console.Spin(&out, "enumerating", func() error { return boom }), boom)
}
