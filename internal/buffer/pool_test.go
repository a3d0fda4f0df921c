package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetReturnsRequestedLength(t *testing.T) {
	p := NewBytePool()

	buf := p.Get(100)
	assert.Len(t, buf, 100)
	assert.Equal(t, 64<<10, cap(buf), "backed by the smallest fitting bucket")

	buf = p.Get(5 << 20)
	assert.Len(t, buf, 5<<20)
	assert.Equal(t, 8<<20, cap(buf))
}

func TestGetOversizedAllocatesDirectly(t *testing.T) {
	p := NewBytePool()
	buf := p.Get(128 << 20)
	assert.Len(t, buf, 128<<20)
	assert.Equal(t, 128<<20, cap(buf))
}

func TestPutRecycles(t *testing.T) {
	p := NewBytePool()
	buf := p.Get(1 << 20)
	p.Put(buf)

	again := p.Get(1 << 20)
	assert.Len(t, again, 1<<20)
}

func TestPutIgnoresForeignSlices(t *testing.T) {
	p := NewBytePool()
	p.Put(nil)
	p.Put(make([]byte, 100))
}
