package storage

import "wisc.edu/cs564/badgerdb/common"

// Page is a fixed-size byte block, the unit of I/O between the buffer pool
// and the file store. The buffer pool treats a Page as an opaque byte
// container except for reading its id.
type Page struct {
	id   common.PageID
	Data [common.PageSize]byte
}

// PageNumber returns the page's id within its file.
func (p *Page) PageNumber() common.PageID {
	return p.id
}

// File is an open, page-addressable random-access container. The buffer
// pool holds references to File handles but does not own their lifecycle
// -- construction and closing are the caller's responsibility. Two File
// references are equal iff they refer to the same open file (identity, not
// content); concrete implementations are expected to be pointer types so
// Go's == operator gives identity comparison for free.
type File interface {
	// ReadPage reads the page identified by pageNo from disk.
	ReadPage(pageNo common.PageID) (*Page, error)
	// WritePage persists page's bytes; page carries its own id.
	WritePage(page *Page) error
	// AllocatePage reserves a new page in the file and returns it, zeroed,
	// with its newly assigned id.
	AllocatePage() (*Page, error)
	// DeletePage deallocates pageNo. Reading a deleted page is undefined;
	// concrete file stores may return an error or serve zeroed bytes.
	DeletePage(pageNo common.PageID) error
	// NumPages reports the size of the file's page-id range [0, NumPages()),
	// which can include deleted ids -- used by callers that need to size a
	// scan.
	NumPages() int
}

// FileManager is the registry of open files a buffer pool's client code
// consults to turn a table/index name into a File handle. The buffer pool
// itself never calls FileManager -- callers pass it File handles directly
// -- but every concrete File implementation in this module is produced by
// one, mirroring how the file store is provisioned in practice.
type FileManager interface {
	// Open returns the File handle for name, creating it if it does not
	// yet exist on disk.
	Open(name string) (File, error)
	// Delete permanently removes the file backing name. The caller must
	// ensure nothing still references it through a buffer pool.
	Delete(name string) error
}
