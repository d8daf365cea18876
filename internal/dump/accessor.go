package dump

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dump-sleuth/pkg/model"
)

// Accessor is random read access over dump bytes.
//
// Read never fails: offsets outside the dump or past EOF yield a short or
// empty slice, and size -1 reads to the end. Returned slices may alias a
// memory mapping and must not be used after Close unless the reader holds
// a Lease. Implementations are safe for concurrent readers.
type Accessor interface {
	Read(offset int64, size int) []byte
	Size() int64
	Mode() model.AccessMode
	Close() error
}

// clampRange returns the readable length at offset, or -1 when nothing is
// readable.
func clampRange(total, offset int64, size int) int64 {
	if offset < 0 || offset >= total || size == 0 || size < -1 {
		return -1
	}
	avail := total - offset
	if size == -1 || int64(size) > avail {
		return avail
	}
	return int64(size)
}

// fileAccessor serves reads with positional ReadAt calls, so it carries no
// shared seek cursor.
type fileAccessor struct {
	file   *os.File
	size   int64
	closed atomic.Bool
	once   sync.Once
	err    error
}

func newFileAccessor(f *os.File, size int64) *fileAccessor {
	return &fileAccessor{file: f, size: size}
}

func (a *fileAccessor) Read(offset int64, size int) []byte {
	if a.closed.Load() {
		return nil
	}
	n := clampRange(a.size, offset, size)
	if n <= 0 {
		return []byte{}
	}
	buf := make([]byte, n)
	// a short read (EOF or I/O error) yields the prefix that was read
	read, _ := a.file.ReadAt(buf, offset)
	return buf[:read]
}

func (a *fileAccessor) Size() int64            { return a.size }
func (a *fileAccessor) Mode() model.AccessMode { return model.AccessPread }

func (a *fileAccessor) Close() error {
	a.once.Do(func() {
		a.closed.Store(true)
		a.err = a.file.Close()
	})
	return a.err
}

// mmapAccessor serves reads from a read-only shared mapping.
type mmapAccessor struct {
	mu     sync.RWMutex
	data   []byte
	file   *os.File
	closed bool
	err    error
}

func (a *mmapAccessor) Read(offset int64, size int) []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}
	n := clampRange(int64(len(a.data)), offset, size)
	if n <= 0 {
		return []byte{}
	}
	return a.data[offset : offset+n : offset+n]
}

func (a *mmapAccessor) Size() int64            { return int64(len(a.data)) }
func (a *mmapAccessor) Mode() model.AccessMode { return model.AccessMmap }

func (a *mmapAccessor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		a.err = errors.Join(unmapFile(a.data), a.file.Close())
	}
	return a.err
}

// Leaser is implemented by accessors that can outlive Close while readers
// still hold slices into them.
type Leaser interface {
	// Lease registers a reader. ok is false once the accessor is closed.
	Lease() (release func(), ok bool)
}

// Lease takes a reader lease on acc when it supports one. Accessors without
// leases get a no-op release.
func Lease(acc Accessor) (release func(), ok bool) {
	if l, is := acc.(Leaser); is {
		return l.Lease()
	}
	return func() {}, true
}

// sharedAccessor defers closing the wrapped accessor until the last lease
// is released, so a reader abandoned after a timeout never touches
// unmapped memory.
type sharedAccessor struct {
	Accessor

	mu      sync.Mutex
	leases  int
	closing bool
	done    bool
	err     error
}

func newSharedAccessor(a Accessor) *sharedAccessor {
	return &sharedAccessor{Accessor: a}
}

func (s *sharedAccessor) Lease() (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return func() {}, false
	}
	s.leases++
	var once sync.Once
	return func() { once.Do(s.release) }, true
}

func (s *sharedAccessor) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leases--
	if s.closing && s.leases == 0 {
		s.closeLocked()
	}
}

// Leases returns the number of outstanding leases.
func (s *sharedAccessor) Leases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leases
}

// Close closes the wrapped accessor now, or when the last lease goes.
func (s *sharedAccessor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	if s.leases == 0 {
		s.closeLocked()
	}
	return s.err
}

func (s *sharedAccessor) closeLocked() {
	if !s.done {
		s.done = true
		s.err = s.Accessor.Close()
	}
}

// BytesAccessor serves reads from an in-memory buffer.
type BytesAccessor struct {
	data   []byte
	mode   model.AccessMode
	closed atomic.Bool
}

// NewBytesAccessor wraps data. The slice is not copied.
func NewBytesAccessor(data []byte) *BytesAccessor {
	return &BytesAccessor{data: data, mode: model.AccessPread}
}

// emptyAccessor is used when a dump could not be opened in recovery mode.
func emptyAccessor() *BytesAccessor {
	return &BytesAccessor{data: nil, mode: model.AccessDegraded}
}

// Read implements Accessor.
func (a *BytesAccessor) Read(offset int64, size int) []byte {
	if a.closed.Load() {
		return nil
	}
	n := clampRange(int64(len(a.data)), offset, size)
	if n <= 0 {
		return []byte{}
	}
	return a.data[offset : offset+n : offset+n]
}

// Size implements Accessor.
func (a *BytesAccessor) Size() int64 { return int64(len(a.data)) }

// Mode implements Accessor.
func (a *BytesAccessor) Mode() model.AccessMode { return a.mode }

// Close implements Accessor.
func (a *BytesAccessor) Close() error {
	a.closed.Store(true)
	return nil
}
