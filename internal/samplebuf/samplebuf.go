// Package samplebuf implements the FIFO of raw samples waiting for a time
// anchor.
package samplebuf

const minCapacity = 1024

// Buffer is a growable ring of samples. Each sample has an implicit sequence
// number: the first sample pushed is 0 and numbers increase by one per push.
type Buffer struct {
	data []int32
	head int
	len  int
	seq  int64
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{data: make([]int32, minCapacity)}
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	return b.len
}

// Head returns the sequence number of the oldest buffered sample. When the
// buffer is empty it is the number the next pushed sample will get.
func (b *Buffer) Head() int64 {
	return b.seq
}

// Push appends a sample.
func (b *Buffer) Push(v int32) {
	if b.len == len(b.data) {
		b.grow()
	}
	b.data[(b.head+b.len)%len(b.data)] = v
	b.len++
}

// Pop removes and returns the oldest sample. It panics on an empty buffer.
func (b *Buffer) Pop() int32 {
	if b.len == 0 {
		panic("samplebuf: pop from empty buffer")
	}
	v := b.data[b.head]
	b.head = (b.head + 1) % len(b.data)
	b.len--
	b.seq++
	return v
}

func (b *Buffer) grow() {
	data := make([]int32, max(2*len(b.data), minCapacity))
	n := copy(data, b.data[b.head:])
	copy(data[n:], b.data[:b.head])
	b.data = data
	b.head = 0
}
