package sbits

import (
	"testing"

	assertion "github.com/stretchr/testify/assert"
)

func TestAllocatorSequential(t *testing.T) {
	assert := assertion.New(t)

	a := newRegionAllocator(0, 16, 4)
	for i := 0; i < 16; i++ {
		logical, phys, reclaimed := a.allocate()
		assert.Equal(LogicalPageID(i), logical)
		assert.Equal(PhysicalPageID(i), phys)
		assert.Zero(reclaimed)
	}
	assert.False(a.wrapped)
	assert.Equal(uint32(16), a.liveCount())
	assert.True(a.isLive(0))
	assert.True(a.isLive(15))
}

func TestAllocatorWrap(t *testing.T) {
	assert := assertion.New(t)

	a := newRegionAllocator(0, 16, 4)
	for i := 0; i < 16; i++ {
		a.allocate()
	}

	logical, phys, reclaimed := a.allocate()
	assert.Equal(LogicalPageID(16), logical)
	assert.Equal(PhysicalPageID(0), phys)
	assert.Equal(uint32(4), reclaimed)
	assert.True(a.wrapped)
	assert.Equal(LogicalPageID(4), a.firstLogicalID)
	assert.Equal(PhysicalPageID(4), a.firstPhysical)

	// The reclaimed erase block is no longer live; the rewritten slot is.
	assert.True(a.isLive(0))
	assert.False(a.isLive(1))
	assert.False(a.isLive(3))
	assert.True(a.isLive(4))
	assert.Equal(uint32(13), a.liveCount())
}

func TestAllocatorTranslate(t *testing.T) {
	assert := assertion.New(t)

	a := newRegionAllocator(0, 16, 4)
	slotOf := make(map[LogicalPageID]PhysicalPageID)
	for i := 0; i < 100; i++ {
		logical, phys, _ := a.allocate()
		slotOf[logical] = phys

		// Every live logical id maps back to the slot it was written to,
		// through both mapping forms.
		for id := a.firstLogicalID; id < a.nextLogicalID; id++ {
			if !a.isLive(a.translate(id)) {
				continue // transient frontier state right before a wrap
			}
			assert.Equal(slotOf[id], a.translate(id), "logical %d", id)
			assert.Equal(slotOf[id], a.physForLogical(id), "logical %d", id)
		}
	}
	assert.True(a.wrapped)
	assert.LessOrEqual(a.liveCount(), uint32(16))
}

func TestAllocatorEraseFrontier(t *testing.T) {
	assert := assertion.New(t)

	a := newRegionAllocator(0, 16, 4)
	a.allocate()
	// First block special case: slot zero is being written, not erased.
	assert.Equal(PhysicalPageID(3), a.erasedEnd)

	for i := 0; i < 3; i++ {
		a.allocate()
	}
	// Writing into the last slot of a block pre-erases the next one.
	assert.Equal(PhysicalPageID(7), a.erasedEnd)
}

func TestAllocatorStartOffset(t *testing.T) {
	assert := assertion.New(t)

	a := newRegionAllocator(8, 24, 4)
	logical, phys, _ := a.allocate()
	assert.Equal(LogicalPageID(0), logical)
	assert.Equal(PhysicalPageID(8), phys)
	assert.False(a.isLive(0))

	for i := 0; i < 16; i++ {
		logical, phys, _ = a.allocate()
	}
	assert.True(a.wrapped)
	assert.Equal(PhysicalPageID(8), phys)
	assert.Equal(LogicalPageID(16), logical)
}
