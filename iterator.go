package sbits

// Iterator scans records in key order, fusing a key range and a data range.
// Any filter may be nil. When bitmaps are enabled and a data range is set, a
// query bitmap prunes non-overlapping pages; with the secondary index
// enabled the scan is driven from the index pages instead of reading every
// data page.
//
// Yielded slices borrow from the data read frame and are invalidated by the
// next call to Next, Get, Put or Flush.
type Iterator struct {
	MinKey  []byte
	MaxKey  []byte
	MinData []byte
	MaxData []byte

	db          *DB
	queryBitmap []byte
	useIdx      bool

	// Sequential cursor over physical data pages.
	curPage   int64
	rec       int
	pageReady bool
	wrapped   bool

	// Index-driven cursor.
	idxPage      int64
	idxRec       int
	idxReady     bool
	wrappedIdx   bool
	dataPageBase int64 // logical data page covered by entry 0 of the current index page

	done bool
}

// InitIterator binds it to the engine and materializes the query bitmap.
// The filter fields must be set before the call; the first Next forces a
// page read.
func (db *DB) InitIterator(it *Iterator) {
	it.db = db
	it.queryBitmap = nil
	it.useIdx = false
	if Has(db.opts.Parameters, UseBitmap) && (it.MinData != nil || it.MaxData != nil) {
		it.queryBitmap = buildRangeBitmap(db.opts.UpdateBitmap, it.MinData, it.MaxData, db.layout.bitmapSize)
		if db.indexing {
			it.useIdx = true
			it.idxPage = int64(db.index.firstPhysical)
			it.idxRec = 0
			it.idxReady = false
			it.wrappedIdx = false
		}
	}
	it.curPage = int64(db.data.firstPhysical) - 1
	it.rec = 0
	it.pageReady = false
	it.wrapped = false
	it.done = false
}

// Next returns the next matching record, or ok=false at end of iteration.
func (it *Iterator) Next() (key, data []byte, ok bool) {
	if it.db == nil || it.done {
		return nil, nil, false
	}
	db := it.db
	buf := db.pool.frame(dataReadFrame)

	for {
		if !it.pageReady || it.rec >= db.layout.count(buf) {
			if !it.advancePage() {
				it.done = true
				return nil, nil, false
			}
			it.rec = 0
			it.pageReady = true
		}

		key = db.layout.recordKey(buf, it.rec)
		data = db.layout.recordData(buf, it.rec)
		it.rec++

		if it.MinKey != nil && db.opts.CompareKey(key, it.MinKey) < 0 {
			continue
		}
		if it.MaxKey != nil && db.opts.CompareKey(key, it.MaxKey) > 0 {
			// Keys are monotone, nothing later can match.
			it.done = true
			return nil, nil, false
		}
		if it.MinData != nil && db.opts.CompareData(data, it.MinData) < 0 {
			continue
		}
		if it.MaxData != nil && db.opts.CompareData(data, it.MaxData) > 0 {
			continue
		}
		return key, data, true
	}
}

// advancePage loads the next candidate data page into the read frame,
// skipping pages whose bitmap does not overlap the query bitmap. Returns
// false at end of iteration or on a read error.
func (it *Iterator) advancePage() bool {
	db := it.db
	buf := db.pool.frame(dataReadFrame)

	for {
		var phys PhysicalPageID
		if it.useIdx {
			p, ok := it.nextIndexMatch()
			if !ok {
				return false
			}
			phys = p
		} else {
			it.curPage++
			if it.curPage >= int64(db.data.end) {
				if it.wrapped {
					return false // full circle
				}
				it.curPage = int64(db.data.start)
				it.wrapped = true
			}
			if it.wrapped && !db.data.wrapped {
				return false
			}
			if !db.data.isLive(PhysicalPageID(it.curPage)) {
				return false
			}
			phys = PhysicalPageID(it.curPage)
		}

		if db.readPage(phys) != nil {
			return false
		}
		if it.queryBitmap == nil {
			return true
		}
		if bitmapOverlap(db.layout.bitmap(buf), it.queryBitmap) {
			return true
		}
	}
}

// nextIndexMatch walks index pages until an entry bitmap overlaps the query
// bitmap and returns the physical slot of the covered data page. Entries for
// data pages already reclaimed by wrap are skipped.
func (it *Iterator) nextIndexMatch() (PhysicalPageID, bool) {
	db := it.db
	idxbuf := db.pool.frame(idxReadFrame)

	for {
		if !it.idxReady || it.idxRec >= idxCount(idxbuf) {
			if it.idxPage >= int64(db.index.end) {
				if it.wrappedIdx {
					return 0, false // full circle
				}
				it.idxPage = int64(db.index.start)
				it.wrappedIdx = true
			}
			if it.wrappedIdx && !db.index.wrapped {
				return 0, false
			}
			if !db.index.wrapped || it.wrappedIdx {
				if it.idxPage >= int64(db.index.nextPhysical) {
					return 0, false
				}
			}
			if db.readIndexPage(PhysicalPageID(it.idxPage)) != nil {
				return 0, false
			}
			it.idxPage++
			it.idxRec = 0
			it.idxReady = true

			minCovered := idxMinDataPage(idxbuf)
			it.dataPageBase = int64(minCovered)
			if db.data.firstLogicalID > minCovered {
				// Entries below the first live data page are reclaimed.
				it.idxRec += int(db.data.firstLogicalID - minCovered)
			}
			if it.idxRec >= idxCount(idxbuf) {
				// Whole page reclaimed; jump ahead over fully-skipped pages.
				if jump := int64(it.idxRec/db.maxIdxRecordsPerPage) - 1; jump > 0 {
					it.idxPage += jump
				}
				continue
			}
		}

		cnt := idxCount(idxbuf)
		for it.idxRec < cnt {
			bm := idxEntry(idxbuf, it.idxRec, db.layout.bitmapSize)
			if bitmapOverlap(bm, it.queryBitmap) {
				phys := db.data.physForLogical(LogicalPageID(it.dataPageBase + int64(it.idxRec)))
				it.idxRec++
				return phys, true
			}
			it.idxRec++
		}
		// All entries checked, read the next index page.
	}
}
