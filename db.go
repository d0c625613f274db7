package sbits

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// File names created inside the directory passed to Open. Both files are
// truncated on open; recovery from an existing file is not supported.
const (
	DataFileName  = "datafile.bin"
	IndexFileName = "idxfile.bin"
)

var (
	ErrConfigInvalid = errors.New("sbits: invalid configuration")
	ErrNotFound      = errors.New("sbits: key not found")
	ErrClosed        = errors.New("sbits: database closed")
)

// Options carries the engine configuration. All fields except BinarySearch
// and Compression must be populated before Open; BitmapSize, UpdateBitmap
// and InBitmap are only used when UseBitmap is set.
type Options struct {
	// Record layout. RecordSize is KeySize+DataSize; keys are little-endian
	// unsigned integers inserted in non-decreasing order.
	KeySize  int
	DataSize int

	// Size of a physical page on the device.
	PageSize int

	// Number of page frames in the buffer pool. Two minimum; four when the
	// secondary index is enabled.
	BufferSizeInBlocks int

	// Storage region bounds in bytes. When indexing, the index region's
	// share of these pages is taken off the tail of the data region; index
	// pages themselves are written to the index file from its start.
	StartAddress uint32
	EndAddress   uint32

	// Pages reclaimed together, modeling flash erase semantics.
	EraseSizeInPages uint32

	// Feature bitset: UseIndex | UseMaxMin | UseSum | UseBitmap.
	Parameters Feature

	// Bytes per page bitmap. Required whenever UseBitmap is set.
	BitmapSize int

	CompareKey   Comparator
	CompareData  Comparator
	UpdateBitmap BitmapUpdater
	InBitmap     BitmapTester

	// BinarySearch selects the pure binary-search variant of Get instead of
	// the default interpolated search.
	BinarySearch bool

	// Compression selects the page compression used by Dump.
	Compression CompressAlgorithm
}

// Stats counts page-granular I/O since the last ResetStats.
type Stats struct {
	Reads      uint64
	Writes     uint64
	IdxReads   uint64
	IdxWrites  uint64
	BufferHits uint64
}

// DB is a single-threaded, append-only page store for monotone keys. It is
// not safe for concurrent use.
type DB struct {
	opts Options
	dir  string

	file      *os.File
	indexFile *os.File

	pool   *bufferPool
	layout pageLayout

	data                 regionAllocator
	index                regionAllocator
	indexing             bool
	maxIdxRecordsPerPage int

	// Running floor of the oldest reachable key and the interpolation
	// estimator driving Get's first page guess.
	minKey     int64
	haveMinKey bool
	avgKeyDiff int64

	stats Stats

	// Physical page resident in each read frame, -1 when empty.
	bufferedPageID    int64
	bufferedIdxPageID int64

	opened bool

	ops struct {
		writeAt    func(b []byte, off int64) (n int, err error)
		idxWriteAt func(b []byte, off int64) (n int, err error)
	}
}

// Open creates the engine files inside dir and initializes the engine.
func Open(dir string, mode os.FileMode, options *Options) (*DB, error) {
	if options == nil {
		return nil, errors.Wrap(ErrConfigInvalid, "options required")
	}
	db := &DB{
		opts:              *options,
		dir:               dir,
		opened:            true,
		bufferedPageID:    -1,
		bufferedIdxPageID: -1,
		avgKeyDiff:        1,
	}
	o := &db.opts

	if o.KeySize <= 0 || o.KeySize > 8 || o.DataSize <= 0 {
		return nil, errors.Wrapf(ErrConfigInvalid, "key size %d, data size %d", o.KeySize, o.DataSize)
	}
	if o.CompareKey == nil || o.CompareData == nil {
		return nil, errors.Wrap(ErrConfigInvalid, "key and data comparators required")
	}
	if o.EraseSizeInPages == 0 {
		return nil, errors.Wrap(ErrConfigInvalid, "erase size required")
	}
	if o.EndAddress <= o.StartAddress {
		return nil, errors.Wrapf(ErrConfigInvalid, "region [%d, %d)", o.StartAddress, o.EndAddress)
	}
	if Has(o.Parameters, UseBitmap) {
		if o.BitmapSize <= 0 || o.UpdateBitmap == nil || o.InBitmap == nil {
			return nil, errors.Wrap(ErrConfigInvalid, "bitmap feature requires BitmapSize and an encoder pair")
		}
	} else {
		o.BitmapSize = 0
	}
	if o.BufferSizeInBlocks < 2 {
		return nil, errors.Wrapf(ErrConfigInvalid, "buffer of %d blocks, need at least 2", o.BufferSizeInBlocks)
	}

	db.layout = newPageLayout(o.KeySize, o.DataSize, o.BitmapSize, o.PageSize, Has(o.Parameters, UseMaxMin))
	if db.layout.maxRecords < 2 {
		return nil, errors.Wrapf(ErrConfigInvalid, "page size %d holds %d records", o.PageSize, db.layout.maxRecords)
	}

	if Has(o.Parameters, UseIndex) && o.BufferSizeInBlocks < 4 {
		log.Warn("sbits: index requires at least 4 page buffers, defaulting to no index")
		o.Parameters = Clear(o.Parameters, UseIndex)
	}
	if Has(o.Parameters, UseIndex) && !Has(o.Parameters, UseBitmap) {
		return nil, errors.Wrap(ErrConfigInvalid, "index requires the bitmap feature")
	}
	db.indexing = Has(o.Parameters, UseIndex)

	numPages := (o.EndAddress - o.StartAddress) / uint32(o.PageSize)
	minPages := 2 * o.EraseSizeInPages
	if db.indexing {
		minPages = 4 * o.EraseSizeInPages
	}
	if numPages < minPages {
		return nil, errors.Wrapf(ErrConfigInvalid,
			"region of %d pages, need at least twice the erase block size and four times when indexing", numPages)
	}

	startPage := PhysicalPageID(o.StartAddress / uint32(o.PageSize))
	endPage := PhysicalPageID(o.EndAddress / uint32(o.PageSize))
	var numIdxPages uint32
	if db.indexing {
		// The index region holds one entry for every page of the region,
		// plus slack for the erase block its own reclamation discards and
		// an oldest index page that is only partly live, always a whole
		// number of erase blocks (at least two). Live data pages therefore
		// never lose their index entries to an index wrap.
		db.maxIdxRecordsPerPage = (o.PageSize - idxHeaderSize) / o.BitmapSize
		perIdxPage := uint32(db.maxIdxRecordsPerPage)
		numIdxPages = (numPages + perIdxPage - 1) / perIdxPage
		numIdxPages = (numIdxPages/o.EraseSizeInPages + 2) * o.EraseSizeInPages
		endPage -= PhysicalPageID(numIdxPages)
	}
	db.data = newRegionAllocator(startPage, endPage, o.EraseSizeInPages)
	db.index = newRegionAllocator(0, PhysicalPageID(numIdxPages), o.EraseSizeInPages)

	db.pool = newBufferPool(o.BufferSizeInBlocks, o.PageSize)
	db.layout.init(db.pool.frame(dataWriteFrame))
	if db.indexing {
		db.initIdxWriteFrame(0)
	}

	// Lock before truncating so a failed concurrent open cannot wipe the
	// files of a running engine.
	var err error
	flag := os.O_RDWR | os.O_CREATE
	if db.file, err = os.OpenFile(filepath.Join(dir, DataFileName), flag, mode); err != nil {
		return nil, errors.Wrap(err, "sbits: open data file")
	}
	if err = flock(db.file); err != nil {
		_ = db.file.Close()
		return nil, err
	}
	if err = db.file.Truncate(0); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "sbits: truncate data file")
	}
	db.ops.writeAt = db.file.WriteAt
	if db.indexing {
		if db.indexFile, err = os.OpenFile(filepath.Join(dir, IndexFileName), flag|os.O_TRUNC, mode); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "sbits: open index file")
		}
		db.ops.idxWriteAt = db.indexFile.WriteAt
	}

	log.WithFields(log.Fields{
		"pageSize":       o.PageSize,
		"recordSize":     db.layout.recordSize,
		"headerSize":     db.layout.headerSize,
		"recordsPerPage": db.layout.maxRecords,
		"dataPages":      uint32(endPage - startPage),
		"indexPages":     numIdxPages,
		"buffers":        o.BufferSizeInBlocks,
	}).Debug("sbits: initialized")

	return db, nil
}

// Put appends a record. Keys must arrive in non-decreasing order; this is
// not enforced.
func (db *DB) Put(key, data []byte) error {
	if !db.opened {
		return ErrClosed
	}
	if len(key) != db.opts.KeySize || len(data) != db.opts.DataSize {
		return errors.Wrapf(ErrConfigInvalid, "record of %d+%d bytes", len(key), len(data))
	}

	buf := db.pool.frame(dataWriteFrame)
	count := db.layout.count(buf)

	if !db.haveMinKey {
		db.minKey = int64(decodeUint(key))
		db.haveMinKey = true
	}

	if count >= db.layout.maxRecords {
		if err := db.flushDataPage(buf); err != nil {
			return err
		}
		count = 0
	}

	db.layout.writeRecord(buf, count, key, data)
	db.layout.incCount(buf)

	if db.layout.useMaxMin {
		if count == 0 {
			copy(db.layout.minKey(buf), key)
			copy(db.layout.maxKey(buf), key)
			copy(db.layout.minData(buf), data)
			copy(db.layout.maxData(buf), data)
		} else {
			// Keys are monotone, every insert updates max and min is fixed
			// after the first record.
			copy(db.layout.maxKey(buf), key)
			if db.opts.CompareData(data, db.layout.minData(buf)) < 0 {
				copy(db.layout.minData(buf), data)
			}
			if db.opts.CompareData(data, db.layout.maxData(buf)) > 0 {
				copy(db.layout.maxData(buf), data)
			}
		}
	}

	if Has(db.opts.Parameters, UseBitmap) {
		db.opts.UpdateBitmap(data, db.layout.bitmap(buf))
	}
	return nil
}

// flushDataPage writes the full write frame, emits its index entry, refits
// the interpolation estimate and resets the frame. On write failure the
// frame is left intact.
func (db *DB) flushDataPage(buf []byte) error {
	pageNum, err := db.writePage(buf)
	if err != nil {
		return err
	}
	if db.indexing {
		if err := db.appendIndexEntry(db.layout.bitmap(buf), pageNum); err != nil {
			return err
		}
	}

	numBlocks := int64(db.data.liveCount())
	if numBlocks == 0 {
		numBlocks = 1
	}
	maxK := int64(decodeUint(db.layout.lastKey(buf)))
	avg := (maxK - db.minKey) / numBlocks / int64(db.layout.maxRecords-1)
	if avg < 1 {
		avg = 1
	}
	db.avgKeyDiff = avg

	db.layout.init(buf)
	return nil
}

// appendIndexEntry adds the bitmap of a just-flushed data page to the index
// write frame, rolling the frame over when full.
func (db *DB) appendIndexEntry(bm []byte, dataPage LogicalPageID) error {
	idxbuf := db.pool.frame(idxWriteFrame)
	if idxCount(idxbuf) >= db.maxIdxRecordsPerPage {
		if err := db.writeIndexPage(idxbuf); err != nil {
			return err
		}
		db.initIdxWriteFrame(dataPage)
	}
	copy(idxEntry(idxbuf, idxCount(idxbuf), db.layout.bitmapSize), bm)
	idxIncCount(idxbuf)
	return nil
}

func (db *DB) initIdxWriteFrame(minCovered LogicalPageID) {
	buf := db.pool.frame(idxWriteFrame)
	for i := range buf {
		buf[i] = 0
	}
	setIdxMinDataPage(buf, minCovered)
}

// writePage stamps the next logical id into the frame and writes it to the
// next physical slot, advancing the reclamation frontier as needed.
func (db *DB) writePage(buf []byte) (LogicalPageID, error) {
	saved := db.data
	savedMinKey := db.minKey

	logical, phys, reclaimed := db.data.allocate()
	if reclaimed > 0 {
		// Estimated lower bound for the keys discarded with the erased
		// block. Assumes uniform key density.
		db.minKey += int64(reclaimed) * db.avgKeyDiff * int64(db.layout.maxRecords)
	}
	db.layout.setPageID(buf, logical)

	if _, err := db.ops.writeAt(buf, int64(phys)*int64(db.opts.PageSize)); err != nil {
		db.data = saved
		db.minKey = savedMinKey
		return 0, errors.Wrapf(err, "sbits: write data page %d", phys)
	}
	if db.bufferedPageID == int64(phys) {
		db.bufferedPageID = -1
	}
	db.stats.Writes++
	return logical, nil
}

func (db *DB) writeIndexPage(buf []byte) error {
	saved := db.index

	logical, slot, _ := db.index.allocate()
	setIdxPageID(buf, logical)

	if _, err := db.ops.idxWriteAt(buf, int64(slot)*int64(db.opts.PageSize)); err != nil {
		db.index = saved
		return errors.Wrapf(err, "sbits: write index page %d", slot)
	}
	if db.bufferedIdxPageID == int64(slot) {
		db.bufferedIdxPageID = -1
	}
	db.stats.IdxWrites++
	return nil
}

// readPage loads a physical data page into the read frame, reusing the
// resident page when it matches.
func (db *DB) readPage(phys PhysicalPageID) error {
	if int64(phys) == db.bufferedPageID {
		db.stats.BufferHits++
		return nil
	}
	buf := db.pool.frame(dataReadFrame)
	if _, err := db.file.ReadAt(buf, int64(phys)*int64(db.opts.PageSize)); err != nil {
		return errors.Wrapf(err, "sbits: read data page %d", phys)
	}
	db.stats.Reads++
	db.bufferedPageID = int64(phys)
	return nil
}

func (db *DB) readIndexPage(slot PhysicalPageID) error {
	if int64(slot) == db.bufferedIdxPageID {
		db.stats.BufferHits++
		return nil
	}
	buf := db.pool.frame(idxReadFrame)
	if _, err := db.indexFile.ReadAt(buf, int64(slot)*int64(db.opts.PageSize)); err != nil {
		return errors.Wrapf(err, "sbits: read index page %d", slot)
	}
	db.stats.IdxReads++
	db.bufferedIdxPageID = int64(slot)
	return nil
}

// Flush persists the buffered data page (when non-empty) and the buffered
// index page, then syncs the files. Empty frames are never written.
func (db *DB) Flush() error {
	if !db.opened {
		return ErrClosed
	}
	buf := db.pool.frame(dataWriteFrame)
	if db.layout.count(buf) > 0 {
		pageNum, err := db.writePage(buf)
		if err != nil {
			return err
		}
		if db.indexing {
			if err := db.appendIndexEntry(db.layout.bitmap(buf), pageNum); err != nil {
				return err
			}
		}
		db.layout.init(buf)
	}
	if db.indexing {
		idxbuf := db.pool.frame(idxWriteFrame)
		if idxCount(idxbuf) > 0 {
			if err := db.writeIndexPage(idxbuf); err != nil {
				return err
			}
			db.initIdxWriteFrame(db.data.nextLogicalID)
		}
	}
	if err := db.file.Sync(); err != nil {
		return errors.Wrap(err, "sbits: sync data file")
	}
	if db.indexFile != nil {
		if err := db.indexFile.Sync(); err != nil {
			return errors.Wrap(err, "sbits: sync index file")
		}
	}
	return nil
}

// Close releases the file lock and closes the files. Call Flush first to
// persist buffered records.
func (db *DB) Close() error {
	if !db.opened {
		return nil
	}
	db.opened = false
	db.ops.writeAt = nil
	db.ops.idxWriteAt = nil

	if db.indexFile != nil {
		if err := db.indexFile.Close(); err != nil {
			return errors.Wrap(err, "sbits: close index file")
		}
		db.indexFile = nil
	}
	if db.file != nil {
		if err := funlock(db.file); err != nil {
			log.Printf("sbits.Close(): funlock error: %s", err)
		}
		if err := db.file.Close(); err != nil {
			return errors.Wrap(err, "sbits: close data file")
		}
		db.file = nil
	}
	return nil
}

// Stats returns a snapshot of the I/O counters.
func (db *DB) Stats() Stats {
	return db.stats
}

func (db *DB) ResetStats() {
	db.stats = Stats{}
}

func (db *DB) PrintStats() {
	log.WithFields(log.Fields{
		"reads":      db.stats.Reads,
		"writes":     db.stats.Writes,
		"idxReads":   db.stats.IdxReads,
		"idxWrites":  db.stats.IdxWrites,
		"bufferHits": db.stats.BufferHits,
	}).Info("sbits: statistics")
}
