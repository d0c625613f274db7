package sbits

// Get copies the data for key into data. Only flushed pages are searched;
// returns ErrNotFound when no flushed record matches.
//
// The default strategy is a self-correcting interpolated search: the first
// page is guessed from the key's distance to the engine's minimum key scaled
// by the avgKeyDiff estimate, then each miss against a page's key span jumps
// by the estimated page distance, clamped to a shrinking [first, last]
// envelope. Options.BinarySearch swaps in a plain bisection.
func (db *DB) Get(key, data []byte) error {
	if !db.opened {
		return ErrClosed
	}
	live := int64(db.data.liveCount())
	if live == 0 {
		return ErrNotFound
	}
	buf := db.pool.frame(dataReadFrame)

	first, last := int64(0), live-1
	keyVal := int64(decodeUint(key))
	denom := int64(db.layout.maxRecords) * db.avgKeyDiff

	var pageID int64
	if db.opts.BinarySearch {
		pageID = (first + last) / 2
	} else if keyVal < db.minKey {
		pageID = 0
	} else {
		pageID = (keyVal - db.minKey) / denom
		if pageID > last {
			pageID = last
		}
	}

	for {
		if err := db.readPage(db.data.physForLiveIndex(uint32(pageID))); err != nil {
			return err
		}
		if first >= last {
			break
		}
		if db.layout.count(buf) == 0 {
			return ErrNotFound
		}

		if db.opts.CompareKey(key, db.layout.firstKey(buf)) < 0 {
			// Key is below the smallest record in this page.
			last = pageID - 1
			if db.opts.BinarySearch {
				pageID = (first + last) / 2
			} else {
				off := (keyVal-int64(decodeUint(db.layout.firstKey(buf))))/denom - 1
				if pageID+off < first {
					off = first - pageID
				}
				pageID += off
			}
		} else if db.opts.CompareKey(key, db.layout.lastKey(buf)) > 0 {
			// Key is above the largest record in this page.
			first = pageID + 1
			if db.opts.BinarySearch {
				pageID = (first + last) / 2
			} else {
				off := (keyVal-int64(decodeUint(db.layout.lastKey(buf))))/denom + 1
				if pageID+off > last {
					off = last - pageID
				}
				pageID += off
			}
		} else {
			// This page's key span brackets the key.
			break
		}
	}

	slot := db.searchPage(buf, key)
	if slot < 0 {
		return ErrNotFound
	}
	copy(data, db.layout.recordData(buf, slot))
	return nil
}

// searchPage binary-searches the records of the page in buf for an exact
// key match, returning its slot or -1.
func (db *DB) searchPage(buf []byte, key []byte) int {
	first, last := 0, db.layout.count(buf)-1
	for first <= last {
		middle := (first + last) / 2
		switch cmp := db.opts.CompareKey(db.layout.recordKey(buf, middle), key); {
		case cmp < 0:
			first = middle + 1
		case cmp > 0:
			last = middle - 1
		default:
			return middle
		}
	}
	return -1
}
