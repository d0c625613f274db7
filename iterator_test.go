package sbits

import (
	"testing"

	assertion "github.com/stretchr/testify/assert"
)

func TestKeyRangeIteration(t *testing.T) {
	assert := assertion.New(t)

	db := mustOpen(t, testOptions())
	for i := uint32(0); i < 10000; i++ {
		assert.NoError(db.Put(key32(i), data12(i%100)))
	}
	assert.NoError(db.Flush())

	it := &Iterator{MinKey: key32(500), MaxKey: key32(1500)}
	db.InitIterator(it)

	expect := uint32(500)
	n := 0
	for {
		key, data, ok := it.Next()
		if !ok {
			break
		}
		if !assert.Equal(key32(expect), key) {
			break
		}
		assert.Equal(data12(expect%100), data)
		expect++
		n++
	}
	assert.Equal(1001, n)

	// Iteration terminated right after key 1500, not at the end of the
	// store: only the pages up to the max key were read.
	maxPages := uint64(1500/uint32(db.layout.maxRecords) + 2)
	assert.LessOrEqual(db.Stats().Reads, maxPages)
}

func TestFullScanIteration(t *testing.T) {
	assert := assertion.New(t)

	db := mustOpen(t, testOptions())
	for i := uint32(0); i < 3000; i++ {
		assert.NoError(db.Put(key32(i), data12(i%1000)))
	}
	assert.NoError(db.Flush())

	it := &Iterator{}
	db.InitIterator(it)
	n := uint32(0)
	for {
		key, _, ok := it.Next()
		if !ok {
			break
		}
		assert.Equal(key32(n), key)
		n++
	}
	assert.Equal(uint32(3000), n)
}

func TestBitmapDataRangeScan(t *testing.T) {
	assert := assertion.New(t)

	o := testOptions()
	o.EndAddress = 512 * 4000
	db := mustOpen(t, o)

	const numRecords = 100000
	for i := uint32(0); i < numRecords; i++ {
		assert.NoError(db.Put(key32(i), data12(i%1000)))
	}
	assert.NoError(db.Flush())

	db.ResetStats()
	it := &Iterator{MinData: data12(300), MaxData: data12(630)}
	db.InitIterator(it)

	n := 0
	lastKey := int64(-1)
	for {
		key, data, ok := it.Next()
		if !ok {
			break
		}
		v := decodeUint(data[:4])
		if !assert.True(v >= 300 && v <= 630, "data %d out of range", v) {
			break
		}
		k := int64(decodeUint(key))
		assert.Greater(k, lastKey)
		lastKey = k
		n++
	}
	// Values 300..630 appear once per 1000-key cycle.
	assert.Equal(331*(numRecords/1000), n)

	indexed := db.Stats()
	assert.NotZero(indexed.IdxReads)

	// Baseline without the secondary index reads every data page.
	o2 := testOptions()
	o2.EndAddress = 512 * 4000
	o2.Parameters = UseMaxMin | UseBitmap
	db2 := mustOpen(t, o2)
	for i := uint32(0); i < numRecords; i++ {
		assert.NoError(db2.Put(key32(i), data12(i%1000)))
	}
	assert.NoError(db2.Flush())

	db2.ResetStats()
	it2 := &Iterator{MinData: data12(300), MaxData: data12(630)}
	db2.InitIterator(it2)
	n2 := 0
	for {
		_, _, ok := it2.Next()
		if !ok {
			break
		}
		n2++
	}
	assert.Equal(n, n2)

	baseline := db2.Stats()
	assert.Less(indexed.Reads+indexed.IdxReads, baseline.Reads)
}

func TestDisjointDataRangeReadsNoDataPages(t *testing.T) {
	assert := assertion.New(t)

	db := mustOpen(t, testOptions())
	// All data values land in the low buckets.
	for i := uint32(0); i < 3000; i++ {
		assert.NoError(db.Put(key32(i), data12(50)))
	}
	assert.NoError(db.Flush())

	db.ResetStats()
	it := &Iterator{MinData: data12(900), MaxData: data12(990)}
	db.InitIterator(it)
	_, _, ok := it.Next()
	assert.False(ok)

	// Only index pages were consulted.
	assert.Zero(db.Stats().Reads)
	assert.NotZero(db.Stats().IdxReads)
}

func TestIteratorDataRangeWithoutIndex(t *testing.T) {
	assert := assertion.New(t)

	o := testOptions()
	o.Parameters = UseMaxMin | UseBitmap
	db := mustOpen(t, o)
	for i := uint32(0); i < 3000; i++ {
		assert.NoError(db.Put(key32(i), data12(i%1000)))
	}
	assert.NoError(db.Flush())

	it := &Iterator{MinData: data12(100), MaxData: data12(199)}
	db.InitIterator(it)
	n := 0
	for {
		_, data, ok := it.Next()
		if !ok {
			break
		}
		v := decodeUint(data[:4])
		assert.True(v >= 100 && v <= 199)
		n++
	}
	assert.Equal(300, n)
}

func TestIteratorAfterWrap(t *testing.T) {
	assert := assertion.New(t)

	o := testOptions()
	o.Parameters = UseMaxMin | UseBitmap
	o.EndAddress = 512 * 16
	db := mustOpen(t, o)

	for i := uint32(0); i < 2000; i++ {
		assert.NoError(db.Put(key32(i), data12(i%100)))
	}
	assert.NoError(db.Flush())
	assert.True(db.data.wrapped)

	// The scan starts at the oldest live record and stays in key order.
	it := &Iterator{}
	db.InitIterator(it)
	oldest := uint32(db.data.firstLogicalID) * uint32(db.layout.maxRecords)
	expect := oldest
	for {
		key, _, ok := it.Next()
		if !ok {
			break
		}
		if !assert.Equal(key32(expect), key, "at %d", expect) {
			break
		}
		expect++
	}
	assert.Equal(uint32(2000), expect)
}

func TestIteratorYieldsBorrowedSlices(t *testing.T) {
	assert := assertion.New(t)

	db := mustOpen(t, testOptions())
	for i := uint32(0); i < 100; i++ {
		assert.NoError(db.Put(key32(i), data12(i)))
	}
	assert.NoError(db.Flush())

	it := &Iterator{}
	db.InitIterator(it)
	key, _, ok := it.Next()
	assert.True(ok)
	got := append([]byte(nil), key...)
	// The yielded slice aliases the read frame: a copy survives the next
	// call, the borrow does not have to.
	_, _, _ = it.Next()
	assert.Equal(key32(0), got)
}
