package sbits

// regionAllocator hands out write slots over an erase-block-aligned circular
// region [start, end). Logical ids grow without bound; physical slots wrap.
// Reclamation is modeled at allocation time: when the write cursor catches up
// with the erase frontier, the next erase block ahead of it is discarded.
type regionAllocator struct {
	start     PhysicalPageID // first physical slot, inclusive
	end       PhysicalPageID // last physical slot, exclusive
	eraseSize uint32

	nextLogicalID  LogicalPageID
	nextPhysical   PhysicalPageID
	firstPhysical  PhysicalPageID
	firstLogicalID LogicalPageID
	erasedEnd      PhysicalPageID
	wrapped        bool
}

func newRegionAllocator(start, end PhysicalPageID, eraseSize uint32) regionAllocator {
	return regionAllocator{
		start:         start,
		end:           end,
		eraseSize:     eraseSize,
		nextPhysical:  start,
		firstPhysical: start,
		erasedEnd:     start,
	}
}

func (a *regionAllocator) size() uint32 {
	return uint32(a.end - a.start)
}

// liveCount is the number of flushed pages still reachable.
func (a *regionAllocator) liveCount() uint32 {
	if !a.wrapped {
		return uint32(a.nextPhysical - a.firstPhysical)
	}
	return uint32(a.end-a.firstPhysical) + uint32(a.nextPhysical-a.start)
}

// isLive reports whether a physical slot holds a reachable page. The live
// span is [firstPhysical, nextPhysical) taken circularly within the region.
func (a *regionAllocator) isLive(p PhysicalPageID) bool {
	if p < a.start || p >= a.end {
		return false
	}
	if !a.wrapped {
		return p >= a.firstPhysical && p < a.nextPhysical
	}
	return p >= a.firstPhysical || p < a.nextPhysical
}

// allocate claims the next write slot. The returned reclaimed count is the
// number of live pages discarded to make room; zero until the region wraps.
func (a *regionAllocator) allocate() (LogicalPageID, PhysicalPageID, uint32) {
	var reclaimed uint32

	// Advance the erase frontier when the cursor catches up and a whole
	// erase block still fits before the region end.
	if a.nextPhysical >= a.erasedEnd && uint32(a.nextPhysical)+a.eraseSize < uint32(a.end) {
		if a.erasedEnd != a.start {
			a.erasedEnd += PhysicalPageID(a.eraseSize)
		} else {
			// first block: slot zero is about to be written, not erased
			a.erasedEnd += PhysicalPageID(a.eraseSize - 1)
		}
		if a.wrapped {
			a.firstPhysical = a.erasedEnd + 1
			a.firstLogicalID += LogicalPageID(a.eraseSize)
			reclaimed += a.eraseSize
		}
	}

	// Wrap when the cursor runs off the region end.
	if a.nextPhysical >= a.end {
		a.firstLogicalID += LogicalPageID(a.eraseSize)
		a.erasedEnd = a.start + PhysicalPageID(a.eraseSize-1)
		a.firstPhysical = a.erasedEnd + 1
		a.wrapped = true
		a.nextPhysical = a.start
		reclaimed += a.eraseSize
	}

	logical := a.nextLogicalID
	phys := a.nextPhysical
	a.nextLogicalID++
	a.nextPhysical++
	return logical, phys, reclaimed
}

// translate maps a live logical page id to its physical slot.
func (a *regionAllocator) translate(id LogicalPageID) PhysicalPageID {
	idx := uint32(id - a.firstLogicalID)
	phys := uint32(a.firstPhysical) + idx
	if phys >= uint32(a.end) {
		phys -= a.size()
	}
	return PhysicalPageID(phys)
}

// physForLiveIndex maps an index into the live span (0 = oldest live page)
// to its physical slot.
func (a *regionAllocator) physForLiveIndex(i uint32) PhysicalPageID {
	phys := uint32(a.firstPhysical) + i
	if phys >= uint32(a.end) {
		phys -= a.size()
	}
	return PhysicalPageID(phys)
}

// physForLogical maps any logical id to the slot it was written to. Pages are
// written one per slot in order, so the slot is the id modulo the region size.
func (a *regionAllocator) physForLogical(id LogicalPageID) PhysicalPageID {
	return a.start + PhysicalPageID(uint32(id)%a.size())
}
