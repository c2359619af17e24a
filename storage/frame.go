package storage

import (
	"fmt"

	"wisc.edu/cs564/badgerdb/common"
)

// fingerprint is the (File, PageID) pair that uniquely identifies a
// logical page. File is compared by identity (its concrete type is always
// a pointer), so two fingerprints referring to the same open file and page
// number are equal even if constructed independently.
type fingerprint struct {
	file   File
	pageNo common.PageID
}

func (fp fingerprint) String() string {
	return fmt.Sprintf("%v:%v", fp.file, fp.pageNo)
}

// FrameDescriptor is the metadata slot for one frame: which fingerprint it
// holds, how many pins are outstanding, and its dirty/refbit/valid state.
// See base spec §3 for the invariants a FrameDescriptorTable must uphold
// across all of its descriptors at every observable point.
type FrameDescriptor struct {
	file    File
	pageNo  common.PageID
	frameNo common.FrameID
	pinCnt  uint32
	dirty   bool
	refbit  bool
	valid   bool
}

// File returns the file this descriptor's frame holds a page of. The
// result is meaningless when !Valid().
func (d *FrameDescriptor) File() File { return d.file }

// PageNo returns the page id this descriptor's frame holds. The result is
// meaningless when !Valid().
func (d *FrameDescriptor) PageNo() common.PageID { return d.pageNo }

// FrameNo returns the frame's own constant index.
func (d *FrameDescriptor) FrameNo() common.FrameID { return d.frameNo }

// PinCnt returns the number of outstanding pins on this frame.
func (d *FrameDescriptor) PinCnt() uint32 { return d.pinCnt }

// Dirty reports whether the frame's bytes differ from the on-disk page.
func (d *FrameDescriptor) Dirty() bool { return d.dirty }

// Valid reports whether the frame currently holds meaningful contents.
func (d *FrameDescriptor) Valid() bool { return d.valid }

// Set initializes a descriptor for a freshly-loaded page: the fingerprint
// is recorded, the frame starts pinned once (the caller that triggered the
// load), and dirty/refbit start clear.
func (d *FrameDescriptor) Set(file File, pageNo common.PageID) {
	d.file = file
	d.pageNo = pageNo
	d.pinCnt = 1
	d.dirty = false
	d.refbit = false
	d.valid = true
}

// Clear returns the descriptor to the invalid/zero state (invariant 5:
// !valid implies pinCnt == 0, dirty == false, refbit == false).
func (d *FrameDescriptor) Clear() {
	d.file = nil
	d.pageNo = common.InvalidPageID
	d.pinCnt = 0
	d.dirty = false
	d.refbit = false
	d.valid = false
}

// Print is a diagnostic one-line dump of the descriptor's state.
func (d *FrameDescriptor) Print() {
	fmt.Printf("frame %d: file=%v page=%v pinCnt=%d dirty=%t refbit=%t valid=%t\n",
		d.frameNo, d.file, d.pageNo, d.pinCnt, d.dirty, d.refbit, d.valid)
}
