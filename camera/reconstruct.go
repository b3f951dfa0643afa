package camera

import "fmt"

// MultiLightFeature is the line scan feature selecting the number of
// interleaved exposures per frame
const MultiLightFeature = "MultiLightControl"

// SplitByLine separates a line scan frame captured with n interleaved lighting
// exposures into n frames.  Line i of the source belongs to exposure i%n.  The
// source height is truncated to a multiple of n.  Each output frame owns its
// data and carries the source frame number.
func SplitByLine(f Frame, n int) ([]Frame, error) {
	if n < 1 {
		return nil, fmt.Errorf("split by line: %d exposures", n)
	}
	if n == 1 {
		o := f
		o.Data = append([]byte(nil), f.Data...)
		return []Frame{o}, nil
	}
	bpp := f.PixelType.BitsPerPixel()
	if bpp == 0 || bpp%8 != 0 {
		return nil, fmt.Errorf("split by line: pixel type %s is not byte aligned", f.PixelType)
	}
	stride := f.Width * bpp / 8
	rows := f.Height / n
	if rows == 0 {
		return nil, fmt.Errorf("split by line: %d lines cannot hold %d exposures", f.Height, n)
	}
	if len(f.Data) < stride*rows*n {
		return nil, fmt.Errorf("split by line: frame %d holds %d bytes, need %d", f.FrameNum, len(f.Data), stride*rows*n)
	}
	out := make([]Frame, n)
	for i := range out {
		o := f
		o.Height = rows
		o.FrameLen = stride * rows
		o.Data = make([]byte, o.FrameLen)
		out[i] = o
	}
	for line := 0; line < rows*n; line++ {
		dst := out[line%n].Data
		row := line / n
		copy(dst[row*stride:(row+1)*stride], f.Data[line*stride:(line+1)*stride])
	}
	return out, nil
}
