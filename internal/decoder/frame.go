package decoder

import (
	"fmt"
	"image"
)

// PixelFormat is the memory layout of a frame
type PixelFormat uint8

const (
	// FormatI420 is planar Y, U, V with 2x2 chroma subsampling.
	FormatI420 PixelFormat = iota
	// FormatNV12 is a Y plane followed by interleaved UV.
	FormatNV12
)

func (f PixelFormat) String() string {
	switch f {
	case FormatI420:
		return "i420"
	case FormatNV12:
		return "nv12"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// Frame is one decoded picture. Planes holds Y, U, V for I420 and Y, UV for NV12.
type Frame struct {
	Format  PixelFormat
	Width   int
	Height  int
	Planes  [3][]byte
	Strides [3]int

	// PTS is the submission order of the packet the frame was decoded from.
	PTS uint64
}

// Empty reports whether the frame has no picture.
func (f *Frame) Empty() bool {
	return f == nil || f.Width <= 0 || f.Height <= 0
}

// Image exposes an I420 frame as an image.YCbCr without copying.
func (f *Frame) Image() (*image.YCbCr, error) {
	if f.Empty() {
		return nil, fmt.Errorf("empty frame")
	}
	if f.Format != FormatI420 {
		return nil, fmt.Errorf("frame is %s, want %s", f.Format, FormatI420)
	}
	return &image.YCbCr{
		Y:              f.Planes[0],
		Cb:             f.Planes[1],
		Cr:             f.Planes[2],
		YStride:        f.Strides[0],
		CStride:        f.Strides[1],
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, f.Width, f.Height),
	}, nil
}

func chromaSize(n int) int {
	return (n + 1) / 2
}

// NewI420Frame allocates a tightly packed I420 frame.
func NewI420Frame(width, height int) *Frame {
	cw, ch := chromaSize(width), chromaSize(height)
	return &Frame{
		Format:  FormatI420,
		Width:   width,
		Height:  height,
		Planes:  [3][]byte{make([]byte, width*height), make([]byte, cw*ch), make([]byte, cw*ch)},
		Strides: [3]int{width, cw, cw},
	}
}

// NewNV12Frame allocates a tightly packed NV12 frame.
func NewNV12Frame(width, height int) *Frame {
	cw, ch := chromaSize(width), chromaSize(height)
	return &Frame{
		Format:  FormatNV12,
		Width:   width,
		Height:  height,
		Planes:  [3][]byte{make([]byte, width*height), make([]byte, 2*cw*ch)},
		Strides: [3]int{width, 2 * cw},
	}
}
