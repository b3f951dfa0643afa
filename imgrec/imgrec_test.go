package imgrec

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-jpl/mvcam/camera"
	"github.com/nasa-jpl/mvcam/generichttp"
)

var day = time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

func testRecorder(t *testing.T) *Recorder {
	r := NewRecorder(t.TempDir(), "cam")
	r.now = func() time.Time { return day }
	return r
}

func mono8(num uint64) camera.Frame {
	data := []byte{1, 2, 3, 4, 5, 6}
	return camera.Frame{Width: 3, Height: 2, FrameNum: num, PixelType: camera.Mono8, FrameLen: len(data), Data: data, HostTimestamp: day}
}

func TestChecksum(t *testing.T) {
	f := camera.Frame{Data: []byte("123456789"), FrameLen: 9}
	// the CRC-32 check value
	assert.Equal(t, uint32(0xCBF43926), Checksum(f))

	f.Data = append(f.Data, 0xff)
	assert.Equal(t, uint32(0xCBF43926), Checksum(f))
}

func TestWriteFitsRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	f := mono8(12)
	require.NoError(t, WriteFits(&buf, FrameCards(f), []camera.Frame{f}))

	fits, err := fitsio.Open(&buf)
	require.NoError(t, err)
	defer fits.Close()
	img := fits.HDU(0).(fitsio.Image)
	hdr := img.Header()
	assert.Equal(t, []int{3, 2}, hdr.Axes())
	assert.Equal(t, 8, hdr.Bitpix())
	assert.EqualValues(t, 12, hdr.Get("FRAMENUM").Value)
	assert.EqualValues(t, Checksum(f), hdr.Get("FRAMECRC").Value)
	assert.Equal(t, HDRVER, hdr.Get("HDRVER").Value)
}

func TestWriteFitsCube16(t *testing.T) {
	var buf bytes.Buffer
	a := camera.Frame{Width: 1, Height: 1, PixelType: camera.Mono12, Data: []byte{0xff, 0x0f}}
	b := a
	require.NoError(t, WriteFits(&buf, nil, []camera.Frame{a, b}))

	fits, err := fitsio.Open(&buf)
	require.NoError(t, err)
	defer fits.Close()
	hdr := fits.HDU(0).Header()
	assert.Equal(t, []int{1, 1, 2}, hdr.Axes())
	assert.Equal(t, 16, hdr.Bitpix())
}

func TestWriteFitsRejects(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteFits(&buf, nil, nil))
	rgb := camera.Frame{Width: 1, Height: 1, PixelType: camera.RGB8Packed, Data: make([]byte, 3)}
	assert.Error(t, WriteFits(&buf, nil, []camera.Frame{rgb}))
	small := mono8(1)
	big := mono8(2)
	big.Width = 6
	assert.Error(t, WriteFits(&buf, nil, []camera.Frame{small, big}))
}

func TestWriteFrameNumbersFiles(t *testing.T) {
	r := testRecorder(t)
	fn, err := r.WriteFrame(mono8(1))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Root, "2024-03-09", "cam000000.fits"), fn)
	fn, err = r.WriteFrame(mono8(2))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Root, "2024-03-09", "cam000001.fits"), fn)

	// a new recorder continues after the files already on disk
	r2 := NewRecorder(r.Root, "cam")
	r2.now = r.now
	fn, err = r2.WriteFrame(mono8(3))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Root, "2024-03-09", "cam000002.fits"), fn)
}

func TestWriteFrameAfterFirstFile(t *testing.T) {
	r := testRecorder(t)
	fldr := filepath.Join(r.Root, "2024-03-09")
	require.NoError(t, os.MkdirAll(fldr, 0777))
	require.NoError(t, os.WriteFile(filepath.Join(fldr, "cam000000.fits"), nil, 0666))
	require.NoError(t, os.WriteFile(filepath.Join(fldr, "other000007.fits"), nil, 0666))

	fn, err := r.WriteFrame(mono8(1))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fldr, "cam000001.fits"), fn)
}

func TestWriteFrameNoRoot(t *testing.T) {
	r := NewRecorder("", "cam")
	_, err := r.WriteFrame(mono8(1))
	assert.Error(t, err)
}

func TestRecordHonoursEnabled(t *testing.T) {
	r := testRecorder(t)
	frames := make(chan camera.Frame, 4)
	frames <- mono8(1)
	close(frames)
	r.Record(context.Background(), frames)
	_, err := os.Stat(filepath.Join(r.Root, "2024-03-09"))
	assert.True(t, os.IsNotExist(err))

	r.Enabled = true
	frames = make(chan camera.Frame, 4)
	frames <- mono8(1)
	frames <- mono8(2)
	close(frames)
	r.Record(context.Background(), frames)
	entries, err := os.ReadDir(filepath.Join(r.Root, "2024-03-09"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

type table generichttp.RouteTable

func (t table) RT() generichttp.RouteTable { return generichttp.RouteTable(t) }

func TestHTTPWrapper(t *testing.T) {
	r := testRecorder(t)
	rt := table{}
	NewHTTPWrapper(r).Inject(rt)
	mux := chi.NewRouter()
	rt.RT().Bind(mux)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rec
	}

	newRoot := filepath.Join(t.TempDir(), "frames")
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/autowrite/root", `{"str": "`+filepath.ToSlash(newRoot)+`"}`).Code)
	assert.Equal(t, filepath.ToSlash(newRoot), filepath.ToSlash(r.Root))
	assert.DirExists(t, filepath.Join(newRoot, "2024-03-09"))

	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/autowrite/prefix", `{"str": "left_"}`).Code)
	assert.JSONEq(t, `{"str": "left_"}`, do(http.MethodGet, "/autowrite/prefix", "").Body.String())

	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/autowrite/enabled", `{"bool": true}`).Code)
	assert.JSONEq(t, `{"bool": true}`, do(http.MethodGet, "/autowrite/enabled", "").Body.String())

	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/autowrite/prefix", `{`).Code)
}
