package sbits

// BitmapUpdater sets the bits representing a data value in a per-page bitmap.
// The bits set for a value must be deterministic and ordered so that smaller
// values map to more significant bits of earlier bytes.
type BitmapUpdater func(data, bm []byte)

// BitmapTester reports whether any bit representing the value is set in bm.
type BitmapTester func(data, bm []byte) bool

func setBucketBit(bm []byte, bucket int) {
	bm[bucket/8] |= 0x80 >> uint(bucket%8)
}

func bucketBitSet(bm []byte, bucket int) bool {
	return bm[bucket/8]&(0x80>>uint(bucket%8)) != 0
}

// bitmapOverlap reports whether two bitmaps share any set bit.
func bitmapOverlap(bm1, bm2 []byte) bool {
	for i := range bm1 {
		if bm1[i]&bm2[i] != 0 {
			return true
		}
	}
	return false
}

// NewUintBucketBitmap builds an encoder pair dividing [min, max) into
// buckets of width (max-min)/buckets (integer division, at least 1), one bit
// per bucket. Bucket zero (smallest values) occupies the most significant
// bit of byte zero. The last bucket also takes the remainder of the range
// left by the integer width, and values outside the range clamp to the edge
// buckets. The data attribute is read as a little-endian
// uint32 from the first four bytes of the record data.
func NewUintBucketBitmap(buckets int, min, max uint32) (BitmapUpdater, BitmapTester) {
	width := (uint64(max) - uint64(min)) / uint64(buckets)
	if width == 0 {
		width = 1
	}
	bucketOf := func(data []byte) int {
		v := decodeUint(data[:4])
		if v <= uint64(min) {
			return 0
		}
		b := int((v - uint64(min)) / width)
		if b >= buckets {
			b = buckets - 1
		}
		return b
	}
	update := func(data, bm []byte) {
		setBucketBit(bm, bucketOf(data))
	}
	test := func(data, bm []byte) bool {
		return bucketBitSet(bm, bucketOf(data))
	}
	return update, test
}

// UpdateBitmapInt8Bucket is an 8-bucket encoder over the demo range 0 to 100
// with uneven cutoffs weighted toward small values.
func UpdateBitmapInt8Bucket(data, bm []byte) {
	val := decodeUint(data[:4])
	switch {
	case val < 10:
		bm[0] |= 128
	case val < 20:
		bm[0] |= 64
	case val < 30:
		bm[0] |= 32
	case val < 40:
		bm[0] |= 16
	case val < 50:
		bm[0] |= 8
	case val < 60:
		bm[0] |= 4
	case val < 100:
		bm[0] |= 2
	default:
		bm[0] |= 1
	}
}

func InBitmapInt8Bucket(data, bm []byte) bool {
	var tmp [1]byte
	UpdateBitmapInt8Bucket(data, tmp[:])
	return tmp[0]&bm[0] != 0
}

// UpdateBitmapInt16 is a 16-bucket encoder over the demo range 0 to 100.
func UpdateBitmapInt16(data, bm []byte) {
	val := decodeUint(data[:4])
	stepSize := uint64(100 / 15)
	current := stepSize
	bucket := 0
	for val > current && bucket < 15 {
		current += stepSize
		bucket++
	}
	setBucketBit(bm, bucket)
}

func InBitmapInt16(data, bm []byte) bool {
	var tmp [2]byte
	UpdateBitmapInt16(data, tmp[:])
	return tmp[0]&bm[0] != 0 || tmp[1]&bm[1] != 0
}

// buildRangeBitmap materializes the query bitmap for a data range. Bits for
// the endpoints are set through the user encoder, then every bit between the
// first set bit and the last set bit is filled. Nil endpoints widen the fill
// to the corresponding edge; both nil selects everything.
func buildRangeBitmap(update BitmapUpdater, minData, maxData []byte, size int) []byte {
	bm := make([]byte, size)
	if minData == nil && maxData == nil {
		for i := range bm {
			bm[i] = 0xFF
		}
		return bm
	}
	if minData != nil {
		update(minData, bm)
	}
	if maxData != nil {
		update(maxData, bm)
	}
	bits := size * 8
	first, last := 0, bits-1
	if minData != nil {
		for first < bits && !bucketBitSet(bm, first) {
			first++
		}
	}
	if maxData != nil {
		for last >= 0 && !bucketBitSet(bm, last) {
			last--
		}
	}
	for i := first; i <= last; i++ {
		setBucketBit(bm, i)
	}
	return bm
}
