package pool

import (
	"bytes"
	"image/png"
	"sync"
)

// bufferCap bounds the buffers kept for reuse so one huge encode does not pin
// its memory for the process lifetime.
const bufferCap = 8 << 20

var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// GetBuffer returns an empty buffer from the pool
func GetBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

// PutBuffer returns a buffer to the pool after resetting it
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > bufferCap {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

// PNGBuffers lets png.Encoder reuse its compression state across encodes.
type PNGBuffers struct {
	pool sync.Pool
}

func (p *PNGBuffers) Get() *png.EncoderBuffer {
	if b, ok := p.pool.Get().(*png.EncoderBuffer); ok {
		return b
	}
	return nil
}

func (p *PNGBuffers) Put(b *png.EncoderBuffer) {
	p.pool.Put(b)
}
