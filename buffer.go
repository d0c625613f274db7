package sbits

// Buffer frame assignments. Frames 2 and 3 exist only when indexing.
const (
	dataWriteFrame = 0
	dataReadFrame  = 1
	idxWriteFrame  = 2
	idxReadFrame   = 3
)

// bufferPool owns one contiguous slab of blocks*pageSize bytes carved into
// fixed page frames. The engine owns the frames exclusively; pointers handed
// out by the iterator borrow from the data read frame.
type bufferPool struct {
	slab     []byte
	pageSize int
	blocks   int
}

func newBufferPool(blocks, pageSize int) *bufferPool {
	return &bufferPool{
		slab:     make([]byte, blocks*pageSize),
		pageSize: pageSize,
		blocks:   blocks,
	}
}

func (b *bufferPool) frame(i int) []byte {
	off := i * b.pageSize
	return b.slab[off : off+b.pageSize]
}
