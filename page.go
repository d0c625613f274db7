package sbits

import "encoding/binary"

// LogicalPageID is the monotonic id stamped into a page at flush time. It is
// unique across the engine's lifetime.
type LogicalPageID uint32

// PhysicalPageID is a page slot within the storage region. The mapping
// between the two lives in the region allocator.
type PhysicalPageID uint32

// Data page header:
// | logicalPageId(4) | recordCount(2) | bitmap(bitmapSize) |
// | minKey | maxKey | minData | maxData |  (when min/max enabled)
// followed by recordSize-wide records.
const (
	countOffset  = 4
	bitmapOffset = 6
)

// Index page header: | logicalIdxId(4) | count(2) | pad(2) |
// minDataPageIdCovered(4) | reserved(4) |, then one bitmap per entry.
const (
	idxHeaderSize    = 16
	idxMinPageOffset = 8
)

// pageLayout holds the derived offsets for one engine configuration and is
// the only code that touches raw page bytes.
type pageLayout struct {
	keySize    int
	dataSize   int
	recordSize int
	bitmapSize int
	headerSize int
	maxRecords int
	useMaxMin  bool
}

func newPageLayout(keySize, dataSize, bitmapSize, pageSize int, useMaxMin bool) pageLayout {
	l := pageLayout{
		keySize:    keySize,
		dataSize:   dataSize,
		recordSize: keySize + dataSize,
		bitmapSize: bitmapSize,
		useMaxMin:  useMaxMin,
	}
	l.headerSize = bitmapOffset + bitmapSize
	if useMaxMin {
		l.headerSize += 2*keySize + 2*dataSize
	}
	l.maxRecords = (pageSize - l.headerSize) / l.recordSize
	return l
}

// init resets a write frame to an empty page. Min summaries start at all-ones
// so the first insert's unconditional min-write establishes the real minimum.
func (l *pageLayout) init(p []byte) {
	for i := range p {
		p[i] = 0
	}
	if l.useMaxMin {
		fill(l.minKey(p), 0xFF)
		fill(l.minData(p), 0xFF)
	}
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

func (l *pageLayout) pageID(p []byte) LogicalPageID {
	return LogicalPageID(binary.LittleEndian.Uint32(p))
}

func (l *pageLayout) setPageID(p []byte, id LogicalPageID) {
	binary.LittleEndian.PutUint32(p, uint32(id))
}

func (l *pageLayout) count(p []byte) int {
	return int(binary.LittleEndian.Uint16(p[countOffset:]))
}

func (l *pageLayout) incCount(p []byte) {
	binary.LittleEndian.PutUint16(p[countOffset:], binary.LittleEndian.Uint16(p[countOffset:])+1)
}

func (l *pageLayout) bitmap(p []byte) []byte {
	return p[bitmapOffset : bitmapOffset+l.bitmapSize]
}

func (l *pageLayout) minKey(p []byte) []byte {
	off := bitmapOffset + l.bitmapSize
	return p[off : off+l.keySize]
}

func (l *pageLayout) maxKey(p []byte) []byte {
	off := bitmapOffset + l.bitmapSize + l.keySize
	return p[off : off+l.keySize]
}

func (l *pageLayout) minData(p []byte) []byte {
	off := bitmapOffset + l.bitmapSize + 2*l.keySize
	return p[off : off+l.dataSize]
}

func (l *pageLayout) maxData(p []byte) []byte {
	off := bitmapOffset + l.bitmapSize + 2*l.keySize + l.dataSize
	return p[off : off+l.dataSize]
}

func (l *pageLayout) record(p []byte, i int) []byte {
	off := l.headerSize + i*l.recordSize
	return p[off : off+l.recordSize]
}

func (l *pageLayout) recordKey(p []byte, i int) []byte {
	return l.record(p, i)[:l.keySize]
}

func (l *pageLayout) recordData(p []byte, i int) []byte {
	return l.record(p, i)[l.keySize:]
}

func (l *pageLayout) writeRecord(p []byte, i int, key, data []byte) {
	r := l.record(p, i)
	copy(r, key)
	copy(r[l.keySize:], data)
}

// firstKey and lastKey read the record span directly so point lookup works
// even when min/max summaries are disabled.
func (l *pageLayout) firstKey(p []byte) []byte {
	return l.recordKey(p, 0)
}

func (l *pageLayout) lastKey(p []byte) []byte {
	return l.recordKey(p, l.count(p)-1)
}

// Index page accessors.

func idxPageID(p []byte) LogicalPageID {
	return LogicalPageID(binary.LittleEndian.Uint32(p))
}

func setIdxPageID(p []byte, id LogicalPageID) {
	binary.LittleEndian.PutUint32(p, uint32(id))
}

func idxCount(p []byte) int {
	return int(binary.LittleEndian.Uint16(p[countOffset:]))
}

func idxIncCount(p []byte) {
	binary.LittleEndian.PutUint16(p[countOffset:], binary.LittleEndian.Uint16(p[countOffset:])+1)
}

func idxMinDataPage(p []byte) LogicalPageID {
	return LogicalPageID(binary.LittleEndian.Uint32(p[idxMinPageOffset:]))
}

func setIdxMinDataPage(p []byte, id LogicalPageID) {
	binary.LittleEndian.PutUint32(p[idxMinPageOffset:], uint32(id))
}

func idxEntry(p []byte, i, bitmapSize int) []byte {
	off := idxHeaderSize + i*bitmapSize
	return p[off : off+bitmapSize]
}
