package sbits

import (
	"bytes"
	"testing"

	assertion "github.com/stretchr/testify/assert"
)

func TestCompressorRoundTrip(t *testing.T) {
	assert := assertion.New(t)

	in := bytes.Repeat([]byte("sbits page payload "), 20)

	out, err := SnappyDeCompress(SnappyCompress(in))
	assert.NoError(err)
	assert.Equal(in, out)

	out, err = Lz4DeCompress(Lz4Compress(in))
	assert.NoError(err)
	assert.Equal(in, out)

	out, err = NoDeCompress(NoCompress(in))
	assert.NoError(err)
	assert.Equal(in, out)
}

func TestDumpRestore(t *testing.T) {
	for _, alg := range []CompressAlgorithm{CompSnappy, CompLz4, CompNone} {
		assert := assertion.New(t)

		o := testOptions()
		o.Compression = alg
		db := mustOpen(t, o)
		for i := uint32(0); i < 2000; i++ {
			assert.NoError(db.Put(key32(i), data12(i%1000)))
		}

		var buf bytes.Buffer
		assert.NoError(db.Dump(&buf))

		db2 := mustOpen(t, testOptions())
		assert.NoError(db2.Restore(&buf))
		assert.NoError(db2.Flush())

		out := make([]byte, 12)
		for i := uint32(0); i < 2000; i += 13 {
			if !assert.NoError(db2.Get(key32(i), out), "alg %d key %d", alg, i) {
				break
			}
			if !assert.Equal(data12(i%1000), out) {
				break
			}
		}
	}
}

func TestDumpIncludesBufferedRecords(t *testing.T) {
	assert := assertion.New(t)

	db := mustOpen(t, testOptions())
	// Less than a page, never explicitly flushed.
	for i := uint32(0); i < 10; i++ {
		assert.NoError(db.Put(key32(i), data12(i)))
	}

	var buf bytes.Buffer
	assert.NoError(db.Dump(&buf))

	db2 := mustOpen(t, testOptions())
	assert.NoError(db2.Restore(&buf))
	assert.NoError(db2.Flush())

	out := make([]byte, 12)
	assert.NoError(db2.Get(key32(9), out))
	assert.Equal(data12(9), out)
}

func TestRestoreRejectsBadArchive(t *testing.T) {
	assert := assertion.New(t)

	db := mustOpen(t, testOptions())
	assert.Error(db.Restore(bytes.NewReader([]byte("not an archive at all....."))))

	// A mismatched record layout is refused before any page is replayed.
	src := mustOpen(t, testOptions())
	assert.NoError(src.Put(key32(1), data12(1)))
	var buf bytes.Buffer
	assert.NoError(src.Dump(&buf))

	o := testOptions()
	o.KeySize = 8
	o.CompareKey = Uint64Comparator
	dst := mustOpen(t, o)
	assert.ErrorIs(dst.Restore(&buf), ErrConfigInvalid)
}
