package imgrec

import (
	"fmt"
	"io"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/snksoft/crc"

	"github.com/nasa-jpl/mvcam/camera"
)

// HDRVER tags the layout of the header cards written by FrameCards
const HDRVER = "MVCAM-1"

var crcTable = crc.NewTable(crc.CRC32)

// Checksum is the CRC-32 of a frame's valid bytes, as stored in FRAMECRC
func Checksum(f camera.Frame) uint32 {
	data := f.Data
	if f.FrameLen > 0 && f.FrameLen <= len(data) {
		data = data[:f.FrameLen]
	}
	return crcTable.CRC32(crcTable.UpdateCrc(crcTable.InitCrc(), data))
}

// FrameCards describes a frame in FITS header cards
func FrameCards(f camera.Frame) []fitsio.Card {
	return []fitsio.Card{
		{Name: "HDRVER", Value: HDRVER, Comment: "header version"},
		{Name: "DATE", Value: f.HostTimestamp.UTC().Format("2006-01-02T15:04:05.000")},
		{Name: "FRAMENUM", Value: int(f.FrameNum), Comment: "frame number reported by the camera"},
		{Name: "PIXTYPE", Value: f.PixelType.String(), Comment: "GenICam pixel format"},
		{Name: "DEVTS", Value: int(f.DeviceTimestamp), Comment: "camera timestamp, ticks"},
		{Name: "FRAMECRC", Value: int(Checksum(f)), Comment: "CRC-32 of the raw frame bytes"},
	}
}

// WriteFits streams frames to w as one image, or a cube when there are several.
// All frames must share the size and pixel format of the first.  Mono8 data is
// written as BITPIX 8; deeper formats as BITPIX 16 with BZERO 32768.
func WriteFits(w io.Writer, metadata []fitsio.Card, frames []camera.Frame) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames to write")
	}
	first := frames[0]
	bpp := first.PixelType.BitsPerPixel()
	if bpp != 8 && bpp != 16 {
		return fmt.Errorf("pixel type %s cannot be written to FITS", first.PixelType)
	}
	for _, f := range frames[1:] {
		if f.Width != first.Width || f.Height != first.Height || f.PixelType != first.PixelType {
			return fmt.Errorf("frame %d is %dx%d %s, cube is %dx%d %s",
				f.FrameNum, f.Width, f.Height, f.PixelType, first.Width, first.Height, first.PixelType)
		}
	}

	npix := first.Width * first.Height
	dims := []int{first.Width, first.Height}
	if len(frames) > 1 {
		dims = append(dims, len(frames))
	}

	var payload interface{}
	if bpp == 8 {
		buf := make([]byte, 0, npix*len(frames))
		for _, f := range frames {
			if len(f.Data) < npix {
				return fmt.Errorf("frame %d holds %d bytes, need %d", f.FrameNum, len(f.Data), npix)
			}
			buf = append(buf, f.Data[:npix]...)
		}
		payload = buf
	} else {
		metadata = append(metadata, fitsio.Card{Name: "BZERO", Value: 32768}, fitsio.Card{Name: "BSCALE", Value: 1.0})
		ints := make([]int16, 0, npix*len(frames))
		for _, f := range frames {
			if len(f.Data) < 2*npix {
				return fmt.Errorf("frame %d holds %d bytes, need %d", f.FrameNum, len(f.Data), 2*npix)
			}
			for i := 0; i < npix; i++ {
				u := uint16(f.Data[2*i]) | uint16(f.Data[2*i+1])<<8
				ints = append(ints, int16(u-32768))
			}
		}
		payload = ints
	}

	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(bpp, dims)
	defer im.Close()
	if err := im.Header().Append(metadata...); err != nil {
		return err
	}
	if err := im.Write(payload); err != nil {
		return err
	}
	return fits.Write(im)
}

// stamp is the date subfolder for t
func stamp(t time.Time) string {
	return t.Format("2006-01-02")
}
