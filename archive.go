package sbits

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4"
	"github.com/pkg/errors"
)

type CompressAlgorithm uint16

const (
	CompSnappy CompressAlgorithm = iota // default
	CompNone
	CompLz4
)

type Compressor func([]byte) []byte
type DeCompressor func([]byte) ([]byte, error)

var (
	SnappyCompress Compressor = func(in []byte) []byte {
		return snappy.Encode(nil, in)
	}
	SnappyDeCompress DeCompressor = func(in []byte) ([]byte, error) {
		return snappy.Decode(nil, in)
	}
)

var (
	Lz4Compress Compressor = func(in []byte) []byte {
		buf := &bytes.Buffer{}
		writer := lz4.NewWriter(buf)
		writer.NoChecksum = true
		_, err := writer.Write(in)
		if err != nil {
			panic(err)
		}
		// Close, not Flush: the frame footer must land in buf before it is
		// captured.
		_ = writer.Close()
		return buf.Bytes()
	}

	Lz4DeCompress DeCompressor = func(in []byte) ([]byte, error) {
		buf := &bytes.Buffer{}
		reader := lz4.NewReader(bytes.NewReader(in))
		_, err := buf.ReadFrom(reader)
		return buf.Bytes(), err
	}
)

var (
	NoCompress   Compressor   = func(in []byte) []byte { return in }
	NoDeCompress DeCompressor = func(in []byte) ([]byte, error) { return in, nil }
)

func (c CompressAlgorithm) pair() (Compressor, DeCompressor, error) {
	switch c {
	case CompSnappy:
		return SnappyCompress, SnappyDeCompress, nil
	case CompLz4:
		return Lz4Compress, Lz4DeCompress, nil
	case CompNone:
		return NoCompress, NoDeCompress, nil
	}
	return nil, nil, errors.Errorf("sbits: unknown compression algorithm %d", c)
}

const (
	// archiveMagic = "SBIT" in littleEndian
	archiveMagic   uint32 = 0x54494253
	archiveVersion uint16 = 1

	// magic(4) version(2) compression(2) pageSize(4) keySize(2) dataSize(2) pageCount(4)
	archiveHeaderSize = 20
)

// Dump flushes buffered records and writes every live data page to w, each
// page individually compressed with the configured algorithm. Since init
// truncates the engine files, a dump is the way to carry data across
// process restarts; feed it back through Restore.
func (db *DB) Dump(w io.Writer) error {
	if !db.opened {
		return ErrClosed
	}
	comp, _, err := db.opts.Compression.pair()
	if err != nil {
		return err
	}
	if err := db.Flush(); err != nil {
		return err
	}

	live := db.data.liveCount()
	var hdr [archiveHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], archiveMagic)
	binary.LittleEndian.PutUint16(hdr[4:], archiveVersion)
	binary.LittleEndian.PutUint16(hdr[6:], uint16(db.opts.Compression))
	binary.LittleEndian.PutUint32(hdr[8:], uint32(db.opts.PageSize))
	binary.LittleEndian.PutUint16(hdr[12:], uint16(db.opts.KeySize))
	binary.LittleEndian.PutUint16(hdr[14:], uint16(db.opts.DataSize))
	binary.LittleEndian.PutUint32(hdr[16:], live)
	if _, err := w.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "sbits: write archive header")
	}

	buf := db.pool.frame(dataReadFrame)
	var sz [4]byte
	for i := uint32(0); i < live; i++ {
		if err := db.readPage(db.data.physForLiveIndex(i)); err != nil {
			return err
		}
		enc := comp(buf)
		binary.LittleEndian.PutUint32(sz[:], uint32(len(enc)))
		if _, err := w.Write(sz[:]); err != nil {
			return errors.Wrapf(err, "sbits: write archive page %d", i)
		}
		if _, err := w.Write(enc); err != nil {
			return errors.Wrapf(err, "sbits: write archive page %d", i)
		}
	}
	return nil
}

// Restore replays the records of an archive through Put. The engine must be
// configured with the same page and record layout the archive was dumped
// with; records arrive in the archive's key order.
func (db *DB) Restore(r io.Reader) error {
	if !db.opened {
		return ErrClosed
	}
	var hdr [archiveHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return errors.Wrap(err, "sbits: read archive header")
	}
	if binary.LittleEndian.Uint32(hdr[0:]) != archiveMagic {
		return errors.New("sbits: bad archive magic")
	}
	if binary.LittleEndian.Uint16(hdr[4:]) != archiveVersion {
		return errors.Errorf("sbits: unsupported archive version %d", binary.LittleEndian.Uint16(hdr[4:]))
	}
	_, decomp, err := CompressAlgorithm(binary.LittleEndian.Uint16(hdr[6:])).pair()
	if err != nil {
		return err
	}
	if int(binary.LittleEndian.Uint32(hdr[8:])) != db.opts.PageSize ||
		int(binary.LittleEndian.Uint16(hdr[12:])) != db.opts.KeySize ||
		int(binary.LittleEndian.Uint16(hdr[14:])) != db.opts.DataSize {
		return errors.Wrap(ErrConfigInvalid, "archive layout does not match engine configuration")
	}

	pages := binary.LittleEndian.Uint32(hdr[16:])
	var sz [4]byte
	for i := uint32(0); i < pages; i++ {
		if _, err := io.ReadFull(r, sz[:]); err != nil {
			return errors.Wrapf(err, "sbits: read archive page %d", i)
		}
		n := binary.LittleEndian.Uint32(sz[:])
		if n > uint32(db.opts.PageSize)*2 {
			return errors.Errorf("sbits: archive page %d compressed size %d", i, n)
		}
		enc := make([]byte, n)
		if _, err := io.ReadFull(r, enc); err != nil {
			return errors.Wrapf(err, "sbits: read archive page %d", i)
		}
		page, err := decomp(enc)
		if err != nil {
			return errors.Wrapf(err, "sbits: decompress archive page %d", i)
		}
		if len(page) != db.opts.PageSize {
			return errors.Errorf("sbits: archive page %d decoded to %d bytes", i, len(page))
		}
		cnt := db.layout.count(page)
		for j := 0; j < cnt; j++ {
			if err := db.Put(db.layout.recordKey(page, j), db.layout.recordData(page, j)); err != nil {
				return err
			}
		}
	}
	return nil
}
