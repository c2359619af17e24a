package storage

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"wisc.edu/cs564/badgerdb/common"
)

// statsFile wraps a real File to count ReadPage/WritePage calls, mirroring
// StatsDBFile in the reference course engine's buffer_pool_test.go.
type statsFile struct {
	File
	reads, writes int
}

func (f *statsFile) ReadPage(pageNo common.PageID) (*Page, error) {
	f.reads++
	return f.File.ReadPage(pageNo)
}

func (f *statsFile) WritePage(page *Page) error {
	f.writes++
	return f.File.WritePage(page)
}

func newTestFile(t *testing.T, numPages int) (*statsFile, *DiskFileManager) {
	t.Helper()
	mgr := NewDiskFileManager(t.TempDir())
	inner, err := mgr.Open("t")
	require.NoError(t, err)
	sf := &statsFile{File: inner}
	for i := 0; i < numPages; i++ {
		p, err := sf.AllocatePage()
		require.NoError(t, err)
		var data [common.PageSize]byte
		copy(data[:], []byte{byte('A' + i)})
		p.Data = data
		require.NoError(t, sf.WritePage(p))
	}
	sf.reads, sf.writes = 0, 0
	return sf, mgr
}

func TestBufMgr_MissThenHit(t *testing.T) {
	bm := NewBufMgr(4)
	f, _ := newTestFile(t, 1)

	page1, err := bm.ReadPage(f, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, f.reads)

	page2, err := bm.ReadPage(f, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, f.reads, "second access should be served from cache")
	assert.Same(t, page1, page2)

	require.NoError(t, bm.UnpinPage(f, 0, false))
	require.NoError(t, bm.UnpinPage(f, 0, false))
}

// TestBufMgr_MissHitUnpinEvict follows the literal scenario 1 of the base
// spec's §8: numBufs=4, clockHand starts at 3, four distinct pages fill
// every frame, and a fifth read must evict the first frame loaded once it
// becomes unpinned again.
func TestBufMgr_MissHitUnpinEvict(t *testing.T) {
	bm := NewBufMgr(4)
	fa, _ := newTestFile(t, 1)
	fb, _ := newTestFile(t, 3)
	fc, _ := newTestFile(t, 8)

	// readPage(A, 0) -> victim frame 0 (first advance: 3 -> 0).
	_, err := bm.ReadPage(fa, 0)
	require.NoError(t, err)
	d0 := bm.descriptors.At(0)
	assert.True(t, d0.valid)
	assert.Equal(t, uint32(1), d0.pinCnt)

	// readPage(A, 0) again -> hit, pin=2, refbit=1.
	_, err = bm.ReadPage(fa, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), d0.pinCnt)
	assert.True(t, d0.refbit)

	require.NoError(t, bm.UnpinPage(fa, 0, false))
	require.NoError(t, bm.UnpinPage(fa, 0, false))
	assert.Equal(t, uint32(0), d0.pinCnt)

	// Fill frames 1, 2, 3 with B's pages, each pinned once.
	_, err = bm.ReadPage(fb, 0)
	require.NoError(t, err)
	_, err = bm.ReadPage(fb, 1)
	require.NoError(t, err)
	_, err = bm.ReadPage(fb, 2)
	require.NoError(t, err)

	// readPage(C, 7): the clock revolves 0->1->2->3->0, clearing frame 0's
	// leftover refbit and skipping the pinned frames 1-3 (their refbits are
	// already clear) on lap one, then selects frame 0 on lap two.
	page, err := bm.ReadPage(fc, 7)
	require.NoError(t, err)
	assert.Same(t, &bm.frames[0], page)
	assert.Equal(t, fc, d0.file)
	assert.Equal(t, common.PageID(7), d0.pageNo)
	assert.Equal(t, uint32(1), d0.pinCnt)
}

// TestBufMgr_BufferExceeded follows scenario 2: with numBufs=2 and both
// frames pinned and never released, a third distinct page must fail.
func TestBufMgr_BufferExceeded(t *testing.T) {
	bm := NewBufMgr(2)
	fa, _ := newTestFile(t, 3)

	_, err := bm.ReadPage(fa, 0)
	require.NoError(t, err)
	_, err = bm.ReadPage(fa, 1)
	require.NoError(t, err)

	_, err = bm.ReadPage(fa, 2)
	require.Error(t, err)
	var bmErr *common.BufMgrError
	require.True(t, errors.As(err, &bmErr))
	assert.Equal(t, common.BufferExceeded, bmErr.Code)
}

// TestBufMgr_DirtyEvictionWritesBack follows scenario 3: a dirty unpinned
// page, once evicted, must be written back exactly once with the mutated
// bytes.
func TestBufMgr_DirtyEvictionWritesBack(t *testing.T) {
	bm := NewBufMgr(1)
	fa, _ := newTestFile(t, 2)

	page, err := bm.ReadPage(fa, 0)
	require.NoError(t, err)
	copy(page.Data[:], []byte("mutated"))
	require.NoError(t, bm.UnpinPage(fa, 0, true))

	// Force eviction of frame 0 by reading a different page.
	_, err = bm.ReadPage(fa, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, fa.writes)

	// Re-read page 0 from disk and confirm the mutated bytes persisted.
	require.NoError(t, bm.UnpinPage(fa, 1, false))
	reread, err := bm.ReadPage(fa, 0)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(reread.Data[:], []byte("mutated")))
}

// TestBufMgr_FlushFile follows scenario 4.
func TestBufMgr_FlushFile(t *testing.T) {
	bm := NewBufMgr(4)
	fa, _ := newTestFile(t, 2)
	fb, _ := newTestFile(t, 1)

	_, err := bm.ReadPage(fa, 0)
	require.NoError(t, err)
	_, err = bm.ReadPage(fa, 1)
	require.NoError(t, err)
	_, err = bm.ReadPage(fb, 0)
	require.NoError(t, err)

	require.NoError(t, bm.UnpinPage(fa, 0, true))
	require.NoError(t, bm.UnpinPage(fa, 1, false))
	require.NoError(t, bm.UnpinPage(fb, 0, false))

	require.NoError(t, bm.FlushFile(fa))
	assert.Equal(t, 1, fa.writes, "only the dirty page should be written back")

	_, err = bm.index.lookup(fingerprint{fa, 0})
	assert.ErrorIs(t, err, ErrHashNotFound)
	_, err = bm.index.lookup(fingerprint{fa, 1})
	assert.ErrorIs(t, err, ErrHashNotFound)

	_, err = bm.index.lookup(fingerprint{fb, 0})
	assert.NoError(t, err, "B's page should be untouched by flushing A")
}

// TestBufMgr_FlushFileFailsOnPinned follows scenario 5.
func TestBufMgr_FlushFileFailsOnPinned(t *testing.T) {
	bm := NewBufMgr(4)
	fa, _ := newTestFile(t, 1)

	_, err := bm.ReadPage(fa, 0)
	require.NoError(t, err)

	err = bm.FlushFile(fa)
	require.Error(t, err)
	var bmErr *common.BufMgrError
	require.True(t, errors.As(err, &bmErr))
	assert.Equal(t, common.PagePinned, bmErr.Code)
}

// TestBufMgr_FlushFileIdempotent: flushing twice in a row is a no-op the
// second time, since no frame references the file anymore.
func TestBufMgr_FlushFileIdempotent(t *testing.T) {
	bm := NewBufMgr(4)
	fa, _ := newTestFile(t, 1)

	_, err := bm.ReadPage(fa, 0)
	require.NoError(t, err)
	require.NoError(t, bm.UnpinPage(fa, 0, true))

	require.NoError(t, bm.FlushFile(fa))
	assert.Equal(t, 1, fa.writes)
	require.NoError(t, bm.FlushFile(fa))
	assert.Equal(t, 1, fa.writes, "second flush should not write anything more")
}

// TestBufMgr_UnpinUnknownIsSilent follows scenario 6.
func TestBufMgr_UnpinUnknownIsSilent(t *testing.T) {
	bm := NewBufMgr(4)
	fa, _ := newTestFile(t, 1)

	err := bm.UnpinPage(fa, 999, false)
	assert.NoError(t, err)
}

func TestBufMgr_UnpinOverUnpinFails(t *testing.T) {
	bm := NewBufMgr(4)
	fa, _ := newTestFile(t, 1)

	_, err := bm.ReadPage(fa, 0)
	require.NoError(t, err)
	require.NoError(t, bm.UnpinPage(fa, 0, false))

	err = bm.UnpinPage(fa, 0, false)
	require.Error(t, err)
	var bmErr *common.BufMgrError
	require.True(t, errors.As(err, &bmErr))
	assert.Equal(t, common.PageNotPinned, bmErr.Code)
}

// TestBufMgr_UnpinDirtyOrderedBeforePinCheck ensures the dirty flag is set
// even when the unpin is itself erroneous (over-unpin), matching the
// recommended ordering in base spec §4.3/§9.
func TestBufMgr_UnpinDirtyOrderedBeforePinCheck(t *testing.T) {
	bm := NewBufMgr(4)
	fa, _ := newTestFile(t, 1)

	_, err := bm.ReadPage(fa, 0)
	require.NoError(t, err)
	require.NoError(t, bm.UnpinPage(fa, 0, false))

	err = bm.UnpinPage(fa, 0, true)
	require.Error(t, err)
	assert.True(t, bm.descriptors.At(0).dirty, "dirty intent must survive an over-unpin")
}

func TestBufMgr_AllocPage(t *testing.T) {
	bm := NewBufMgr(4)
	fa, mgr := newTestFile(t, 0)
	_ = mgr

	pageNo, page, err := bm.AllocPage(fa)
	require.NoError(t, err)
	assert.Equal(t, common.PageID(0), pageNo)
	assert.Equal(t, uint32(1), bm.descriptors.At(0).pinCnt)
	assert.Same(t, &bm.frames[0], page)
}

func TestBufMgr_DisposePage(t *testing.T) {
	bm := NewBufMgr(4)
	fa, _ := newTestFile(t, 2)

	_, err := bm.ReadPage(fa, 0)
	require.NoError(t, err)
	require.NoError(t, bm.UnpinPage(fa, 0, false))

	require.NoError(t, bm.DisposePage(fa, 0))
	assert.False(t, bm.descriptors.At(0).valid)
	_, err = bm.index.lookup(fingerprint{fa, 0})
	assert.ErrorIs(t, err, ErrHashNotFound)

	// The underlying id should now be reusable.
	newPage, err := fa.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, common.PageID(0), newPage.PageNumber())
}

func TestBufMgr_AllocBufTerminationBound(t *testing.T) {
	bm := NewBufMgr(3)
	fa, _ := newTestFile(t, 3)

	// Load and immediately unpin all three: every frame is unpinned with
	// refbit unset by the time we ask for a fourth distinct page, so the
	// eviction should succeed within the documented 2*numBufs+1 bound
	// without ever hitting BufferExceeded.
	for i := common.PageID(0); i < 3; i++ {
		_, err := bm.ReadPage(fa, i)
		require.NoError(t, err)
		require.NoError(t, bm.UnpinPage(fa, i, false))
	}

	_, _, err := bm.AllocPage(fa)
	require.NoError(t, err)
}

// TestBufMgr_StartFrameNotInspectedBeforeVerdict pins every frame except
// the one sitting at allocBuf's own starting position, and leaves that one
// frame's refbit cleared so it is the lap's only evictable frame. Per base
// spec §4.4 the wrap check at the starting position is evaluated using
// only what earlier frames in the lap revealed, before the starting
// frame itself is ever inspected, so this must fail with BufferExceeded on
// the first lap even though the starting frame would otherwise have been
// evictable.
func TestBufMgr_StartFrameNotInspectedBeforeVerdict(t *testing.T) {
	bm := NewBufMgr(3)
	fa, _ := newTestFile(t, 3)

	for i := common.PageID(0); i < 3; i++ {
		_, err := bm.ReadPage(fa, i)
		require.NoError(t, err)
		require.NoError(t, bm.UnpinPage(fa, i, false))
	}
	// clockHand is now 2: frames 0, 1, 2 hold pages 0, 1, 2 respectively,
	// all unpinned with refbit clear.

	// Re-pin 0 and 1 by reading them again (a hit sets refbit and bumps
	// pinCnt); leave frame 2 alone.
	_, err := bm.ReadPage(fa, 0)
	require.NoError(t, err)
	_, err = bm.ReadPage(fa, 1)
	require.NoError(t, err)

	fb, _ := newTestFile(t, 1)
	_, err = bm.ReadPage(fb, 0)
	require.Error(t, err)
	var bmErr *common.BufMgrError
	require.True(t, errors.As(err, &bmErr))
	assert.Equal(t, common.BufferExceeded, bmErr.Code)
}

// TestBufMgr_SingleFrameDegenerateCase guards against allocBuf declaring a
// lap complete before the pool's one and only frame has ever been
// inspected, which would make a brand-new numBufs=1 pool unusable.
func TestBufMgr_SingleFrameDegenerateCase(t *testing.T) {
	bm := NewBufMgr(1)
	fa, _ := newTestFile(t, 2)

	_, err := bm.ReadPage(fa, 0)
	require.NoError(t, err)
	require.NoError(t, bm.UnpinPage(fa, 0, false))

	_, err = bm.ReadPage(fa, 1)
	require.NoError(t, err)
}

func TestBufMgr_CloseFlushesDirtyRegardlessOfPin(t *testing.T) {
	bm := NewBufMgr(2)
	fa, _ := newTestFile(t, 1)

	page, err := bm.ReadPage(fa, 0)
	require.NoError(t, err)
	copy(page.Data[:], []byte("still pinned"))
	require.NoError(t, bm.UnpinPage(fa, 0, true))
	_, err = bm.ReadPage(fa, 0) // re-pin, leave pinned across Close
	require.NoError(t, err)

	require.NoError(t, bm.Close())
	assert.Equal(t, 1, fa.writes)
}
