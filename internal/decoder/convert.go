package decoder

import (
	"fmt"

	"go.uber.org/zap"
)

// converter turns NV12 frames into I420. It is configured lazily by the
// first frame and reconfigured whenever the picture size changes.
type converter struct {
	logger *zap.Logger
	width  int
	height int
}

func (c *converter) convert(src *Frame) (*Frame, error) {
	if src.Empty() {
		return nil, nil
	}
	if src.Format != FormatNV12 {
		return nil, fmt.Errorf("cannot convert %s to %s", src.Format, FormatI420)
	}

	cw, ch := chromaSize(src.Width), chromaSize(src.Height)
	if len(src.Planes[0]) < src.Strides[0]*(src.Height-1)+src.Width ||
		len(src.Planes[1]) < src.Strides[1]*(ch-1)+2*cw {
		return nil, fmt.Errorf("nv12 planes too short for %dx%d", src.Width, src.Height)
	}

	if c.width != src.Width || c.height != src.Height {
		c.logger.Debug("Configuring frame converter",
			zap.Int("width", src.Width),
			zap.Int("height", src.Height))
		c.width, c.height = src.Width, src.Height
	}
	dst := NewI420Frame(src.Width, src.Height)
	dst.PTS = src.PTS

	for y := 0; y < src.Height; y++ {
		copy(dst.Planes[0][y*dst.Strides[0]:], src.Planes[0][y*src.Strides[0]:y*src.Strides[0]+src.Width])
	}

	u, v := dst.Planes[1], dst.Planes[2]
	for y := 0; y < ch; y++ {
		row := src.Planes[1][y*src.Strides[1]:]
		for x := 0; x < cw; x++ {
			u[y*dst.Strides[1]+x] = row[2*x]
			v[y*dst.Strides[2]+x] = row[2*x+1]
		}
	}

	return dst, nil
}

func (c *converter) close() {
	c.width, c.height = 0, 0
}
