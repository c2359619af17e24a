package common

import "fmt"

// ErrorCode enumerates the buffer pool's caller-visible failure kinds.
// HashNotFound is deliberately absent: it is an internal control-flow
// signal from the lookup index, caught inside the buffer manager, and
// never returned to a client (see storage.ErrHashNotFound).
type ErrorCode int

const (
	// BufferExceeded signals that the clock sweep of an allocation attempt
	// completed a lap without seeing an unpinned frame (see
	// storage.BufMgr's allocBuf for which frames the first lap inspects).
	// The caller must release pins and retry.
	BufferExceeded ErrorCode = iota
	// PageNotPinned signals unPinPage was called on a frame whose pin
	// count is already zero -- a caller bug.
	PageNotPinned
	// PagePinned signals flushFile encountered a pinned frame belonging
	// to the target file.
	PagePinned
	// BadBuffer signals flushFile found an invalid descriptor still
	// carrying the target file's identity, which violates invariant 5.
	BadBuffer
)

func (c ErrorCode) String() string {
	switch c {
	case BufferExceeded:
		return "BufferExceeded"
	case PageNotPinned:
		return "PageNotPinned"
	case PagePinned:
		return "PagePinned"
	case BadBuffer:
		return "BadBuffer"
	}
	return "unknown"
}

// BufMgrError is the error type returned by the buffer manager's public
// operations. It carries an ErrorCode so callers can branch on failure
// kind with errors.Is/errors.As without string matching.
type BufMgrError struct {
	Code ErrorCode
	Msg  string
}

func (e *BufMgrError) Error() string {
	return fmt.Sprintf("bufmgr: %s: %s", e.Code, e.Msg)
}

// Is allows errors.Is(err, &BufMgrError{Code: X}) to match on code alone.
func (e *BufMgrError) Is(target error) bool {
	other, ok := target.(*BufMgrError)
	if !ok {
		return false
	}
	return other.Code == e.Code
}

// NewBufMgrError constructs a BufMgrError with a formatted message.
func NewBufMgrError(code ErrorCode, format string, args ...any) *BufMgrError {
	return &BufMgrError{Code: code, Msg: fmt.Sprintf(format, args...)}
}
