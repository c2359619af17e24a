package storage

import (
	"errors"
	"log/slog"
	"sync"

	"wisc.edu/cs564/badgerdb/common"
)

// BufMgr is the buffer pool manager: it owns a fixed pool of frames, a
// FrameDescriptorTable of per-frame metadata, and a LookupIndex from
// fingerprint to frame. All five public operations and the private clock
// sweep are serialized by a single mutex, the baseline concurrency
// discipline base spec §5 requires ("treat the pool as a critical section
// protected by a single exclusive lock covering the descriptor table, the
// lookup index, and clockHand"). This trades the reference course engine's
// finer-grained per-frame latching for straightforward correctness of the
// exact two-lap clock termination rule in allocBuf -- see DESIGN.md.
type BufMgr struct {
	mu          sync.Mutex
	frames      []Page
	descriptors *FrameDescriptorTable
	index       *LookupIndex
	numBufs     int
	clockHand   int
}

var logger = slog.Default()

// NewBufMgr constructs a pool of numBufs frames. Per base spec §6, this is
// the only configuration surface the buffer pool exposes.
func NewBufMgr(numBufs int) *BufMgr {
	common.Assert(numBufs > 0, "NewBufMgr: numBufs must be positive, got %d", numBufs)
	return &BufMgr{
		frames:      make([]Page, numBufs),
		descriptors: NewFrameDescriptorTable(numBufs),
		index:       NewLookupIndex(),
		numBufs:     numBufs,
		// The first advance in allocBuf lands on frame 0.
		clockHand: numBufs - 1,
	}
}

// ReadPage returns a reference to the requested page, pinning it. On a
// cache hit the refbit is set and the pin count bumped; on a miss, a
// victim frame is evicted (writing it back if dirty), the page is loaded
// from file, and a fresh descriptor/index entry is installed.
func (bm *BufMgr) ReadPage(file File, pageNo common.PageID) (*Page, error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	fp := fingerprint{file: file, pageNo: pageNo}
	if frameNo, err := bm.index.lookup(fp); err == nil {
		d := bm.descriptors.At(frameNo)
		d.refbit = true
		d.pinCnt++
		return &bm.frames[frameNo], nil
	} else if !errors.Is(err, ErrHashNotFound) {
		return nil, err
	}

	frameNo, err := bm.allocBuf()
	if err != nil {
		return nil, err
	}

	page, err := file.ReadPage(pageNo)
	if err != nil {
		return nil, err
	}

	bm.frames[frameNo] = *page
	bm.index.insert(fp, frameNo)
	bm.descriptors.At(frameNo).Set(file, pageNo)
	return &bm.frames[frameNo], nil
}

// UnpinPage releases one pin on (file, pageNo). If dirty is true, the
// frame's dirty flag is set before the pin count is checked, so a
// caller's intent to mark a page dirty is never lost even on an erroneous
// over-unpin (base spec §4.3, §9 recommended ordering). Unpinning a
// fingerprint that isn't loaded is a silent no-op (§7 propagation policy).
func (bm *BufMgr) UnpinPage(file File, pageNo common.PageID, dirty bool) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	fp := fingerprint{file: file, pageNo: pageNo}
	frameNo, err := bm.index.lookup(fp)
	if err != nil {
		return nil
	}

	d := bm.descriptors.At(frameNo)
	if dirty {
		d.dirty = true
	}
	if d.pinCnt == 0 {
		return common.NewBufMgrError(common.PageNotPinned, "unpin %v: pin count already zero", fp)
	}
	d.pinCnt--
	return nil
}

// AllocPage asks file for a brand-new page, loads it into a victim frame
// pinned once, and returns its id and a reference to it.
func (bm *BufMgr) AllocPage(file File) (common.PageID, *Page, error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	frameNo, err := bm.allocBuf()
	if err != nil {
		return common.InvalidPageID, nil, err
	}

	page, err := file.AllocatePage()
	if err != nil {
		return common.InvalidPageID, nil, err
	}

	bm.frames[frameNo] = *page
	bm.index.insert(fingerprint{file: file, pageNo: page.id}, frameNo)
	bm.descriptors.At(frameNo).Set(file, page.id)
	return page.id, &bm.frames[frameNo], nil
}

// DisposePage drops (file, pageNo) from the pool, if present, and asks
// file to delete it. The base spec permits either ignoring pin count here
// or failing fast on a pinned page; per DESIGN.md this implementation
// takes the reference's original behavior and ignores it -- disposing a
// pinned page is a programmer error the caller is responsible for
// avoiding, not a condition the pool detects.
func (bm *BufMgr) DisposePage(file File, pageNo common.PageID) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	fp := fingerprint{file: file, pageNo: pageNo}
	for i := 0; i < bm.numBufs; i++ {
		d := bm.descriptors.At(common.FrameID(i))
		if d.valid && d.file == file && d.pageNo == pageNo {
			_ = bm.index.remove(fp)
			d.Clear()
			break
		}
	}
	return file.DeletePage(pageNo)
}

// FlushFile sweeps every frame belonging to file: pinned frames abort the
// sweep with PagePinned, invalid-but-file-tagged frames (an invariant
// violation) abort with BadBuffer, dirty frames are written back, and
// every matching frame's descriptor and index entry are cleared. The
// sweep is all-or-nothing per frame but not transactional across frames:
// on failure at frame k, frames before k have already been flushed and
// cleared (base spec §4.3).
func (bm *BufMgr) FlushFile(file File) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	for i := 0; i < bm.numBufs; i++ {
		d := bm.descriptors.At(common.FrameID(i))
		if d.file != file {
			continue
		}
		if !d.valid {
			return common.NewBufMgrError(common.BadBuffer, "frame %d carries file identity but is invalid", i)
		}
		if d.pinCnt > 0 {
			return common.NewBufMgrError(common.PagePinned, "frame %d (page %v) is pinned", i, d.pageNo)
		}
		if d.dirty {
			if err := bm.writeBackLocked(d); err != nil {
				return err
			}
			d.dirty = false
		}
		logger.Debug("flushFile: clearing frame", "frame", i, "page", d.pageNo)
		_ = bm.index.remove(fingerprint{file: d.file, pageNo: d.pageNo})
		d.Clear()
	}
	return nil
}

// Close performs pool teardown: every dirty valid descriptor is written
// back to its file regardless of pin count (quiescing outstanding
// activity is the caller's responsibility, not Close's), and the pool's
// internal structures are left ready for garbage collection. It does not
// close any File -- the pool never owned their lifecycle.
func (bm *BufMgr) Close() error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	for i := 0; i < bm.numBufs; i++ {
		d := bm.descriptors.At(common.FrameID(i))
		if d.valid && d.dirty {
			if err := bm.writeBackLocked(d); err != nil {
				return err
			}
			d.dirty = false
		}
	}
	return nil
}

// PrintSelf dumps every frame descriptor for diagnostics.
func (bm *BufMgr) PrintSelf() {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.descriptors.Print()
}

func (bm *BufMgr) writeBackLocked(d *FrameDescriptor) error {
	page := &bm.frames[d.frameNo]
	logger.Debug("writing back dirty frame", "frame", d.frameNo, "page", d.pageNo)
	return d.file.WritePage(page)
}

// allocBuf runs the clock (second-chance) eviction sweep and returns the
// FrameID of a frame now guaranteed to have pinCnt == 0 and !valid, or
// fails with BufferExceeded if a lap of the sweep sees no unpinned frame.
// Callers must hold bm.mu. Base spec §4.4 orders the sweep's steps as: (1)
// advance the hand, (2) if it has come back around to where this call
// started, either fail or begin another lap, and only then (3) examine the
// frame now under the hand, (4) act on it. That order is load-bearing, not
// cosmetic: whether the frame sitting at the call's starting position gets
// inspected before or after a same-lap BufferExceeded verdict changes the
// outcome whenever that frame is the lap's only evictable one.
//
// The one exception is numBufs == 1, where the hand comes back to its
// starting position on every single advance -- including the very first,
// before any frame has ever been inspected. Applying the check there
// verbatim would report a brand-new, fully-unpinned single-frame pool as
// exhausted without ever looking at its one frame. scanned == 1 identifies
// exactly that first advance; for numBufs > 1 the hand can never equal
// start on the first advance, so the guard never fires there and the
// ordering above is followed exactly.
func (bm *BufMgr) allocBuf() (common.FrameID, error) {
	start := bm.clockHand
	unpinnedFrameExists := false
	scanned := 0

	for {
		bm.clockHand = (bm.clockHand + 1) % bm.numBufs
		scanned++

		if bm.clockHand == start && scanned > 1 {
			if !unpinnedFrameExists {
				return 0, common.NewBufMgrError(common.BufferExceeded, "no unpinned frame found in a lap of %d frames", bm.numBufs)
			}
			unpinnedFrameExists = false
		}

		cur := bm.descriptors.At(common.FrameID(bm.clockHand))

		if cur.pinCnt == 0 {
			unpinnedFrameExists = true
		}

		if !cur.valid {
			cur.Clear()
			return common.FrameID(bm.clockHand), nil
		}

		if cur.refbit {
			cur.refbit = false
			continue
		}

		if cur.pinCnt > 0 {
			continue
		}

		if cur.dirty {
			if err := bm.writeBackLocked(cur); err != nil {
				return 0, err
			}
			cur.dirty = false
		}

		logger.Debug("evicting frame", "frame", cur.frameNo, "page", cur.pageNo)
		if err := bm.index.remove(fingerprint{file: cur.file, pageNo: cur.pageNo}); err != nil {
			common.Assert(false, "lookup index missing entry for evicted fingerprint %v:%v", cur.file, cur.pageNo)
		}
		cur.Clear()
		return common.FrameID(bm.clockHand), nil
	}
}
