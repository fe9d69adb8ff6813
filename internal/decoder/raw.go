package decoder

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Built-in codec names
const (
	CodecRaw     = "raw"
	CodecRawNV12 = "raw-nv12"
)

// RawHeaderSize is the width/height prefix of raw payloads
const RawHeaderSize = 4

// rawQueueDepth bounds the frames a raw codec holds before ErrAgain
const rawQueueDepth = 4

func init() {
	Register(CodecRaw, func() (Codec, error) {
		return newRawCodec(FormatI420), nil
	})
	Register(CodecRawNV12, func() (Codec, error) {
		return &rawNV12Codec{rawCodec: newRawCodec(FormatNV12)}, nil
	})
}

// EncodeRaw builds a raw payload for f: big-endian width and height
// followed by the tightly packed planes.
func EncodeRaw(f *Frame) []byte {
	buf := make([]byte, RawHeaderSize, RawHeaderSize+rawPayloadSize(f.Width, f.Height))
	binary.BigEndian.PutUint16(buf[0:], uint16(f.Width))
	binary.BigEndian.PutUint16(buf[2:], uint16(f.Height))

	cw, ch := chromaSize(f.Width), chromaSize(f.Height)
	buf = appendPlane(buf, f.Planes[0], f.Strides[0], f.Width, f.Height)
	switch f.Format {
	case FormatI420:
		buf = appendPlane(buf, f.Planes[1], f.Strides[1], cw, ch)
		buf = appendPlane(buf, f.Planes[2], f.Strides[2], cw, ch)
	case FormatNV12:
		buf = appendPlane(buf, f.Planes[1], f.Strides[1], 2*cw, ch)
	}
	return buf
}

func appendPlane(buf, plane []byte, stride, width, height int) []byte {
	for y := 0; y < height; y++ {
		buf = append(buf, plane[y*stride:y*stride+width]...)
	}
	return buf
}

func rawPayloadSize(width, height int) int {
	return width*height + 2*chromaSize(width)*chromaSize(height)
}

// rawCodec "decodes" uncompressed payloads
type rawCodec struct {
	format PixelFormat

	mu     sync.Mutex
	queue  []*Frame
	pts    uint64
	closed bool
}

func newRawCodec(format PixelFormat) *rawCodec {
	return &rawCodec{format: format}
}

func (c *rawCodec) SendPacket(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if len(c.queue) >= rawQueueDepth {
		return ErrAgain
	}

	f, err := c.parse(data)
	if err != nil {
		return err
	}
	f.PTS = c.pts
	c.pts++
	c.queue = append(c.queue, f)
	return nil
}

func (c *rawCodec) parse(data []byte) (*Frame, error) {
	if len(data) < RawHeaderSize {
		return nil, fmt.Errorf("raw payload too short: %d bytes", len(data))
	}
	width := int(binary.BigEndian.Uint16(data[0:]))
	height := int(binary.BigEndian.Uint16(data[2:]))
	data = data[RawHeaderSize:]

	if want := rawPayloadSize(width, height); len(data) != want {
		return nil, fmt.Errorf("raw %s payload for %dx%d: got %d bytes, want %d",
			c.format, width, height, len(data), want)
	}

	var f *Frame
	if c.format == FormatNV12 {
		f = NewNV12Frame(width, height)
	} else {
		f = NewI420Frame(width, height)
	}
	for i := range f.Planes {
		data = data[copy(f.Planes[i], data):]
	}
	return f, nil
}

func (c *rawCodec) ReceiveFrame() (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if len(c.queue) == 0 {
		return nil, ErrAgain
	}
	f := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return f, nil
}

func (c *rawCodec) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.queue = nil
	return nil
}

// rawNV12Codec behaves like a hardware decoder: received frames stand for
// device surfaces and must be transferred before use.
type rawNV12Codec struct {
	*rawCodec
}

func (c *rawNV12Codec) TransferFrame(f *Frame) (*Frame, error) {
	if f == nil || f.Format != FormatNV12 {
		return nil, fmt.Errorf("not an nv12 surface")
	}
	out := NewNV12Frame(f.Width, f.Height)
	out.PTS = f.PTS
	for i := range out.Planes {
		copy(out.Planes[i], f.Planes[i])
	}
	return out, nil
}
