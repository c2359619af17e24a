package storage

import (
	"fmt"

	"wisc.edu/cs564/badgerdb/common"
)

// FrameDescriptorTable is the fixed-length array of frame metadata slots,
// one per frame, described in base spec §4.1. Its length equals numBufs
// and never changes after construction (invariant 7).
type FrameDescriptorTable struct {
	descriptors []FrameDescriptor
}

// NewFrameDescriptorTable allocates numBufs descriptors, all initially
// invalid, each stamped with its own constant frame number.
func NewFrameDescriptorTable(numBufs int) *FrameDescriptorTable {
	t := &FrameDescriptorTable{descriptors: make([]FrameDescriptor, numBufs)}
	for i := range t.descriptors {
		t.descriptors[i].frameNo = common.FrameID(i)
		t.descriptors[i].valid = false
	}
	return t
}

// Len returns numBufs.
func (t *FrameDescriptorTable) Len() int {
	return len(t.descriptors)
}

// At returns the descriptor for frameNo. The returned pointer aliases the
// table's backing array; callers holding the buffer manager's lock may
// mutate it in place.
func (t *FrameDescriptorTable) At(frameNo common.FrameID) *FrameDescriptor {
	return &t.descriptors[frameNo]
}

// Print dumps every descriptor and the count of valid frames, matching
// BufMgr.PrintSelf in the reference implementation.
func (t *FrameDescriptorTable) Print() {
	validFrames := 0
	for i := range t.descriptors {
		t.descriptors[i].Print()
		if t.descriptors[i].valid {
			validFrames++
		}
	}
	fmt.Println("total valid frames:", validFrames)
}
