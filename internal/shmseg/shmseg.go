// Package shmseg provides the low-level named-shared-memory-region
// primitives the ring package builds its header/tail/slot layout on top
// of: locate, create-or-open, open, map and unmap a region of a known
// size.
package shmseg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const namePrefix = "ringbuf_"

// ErrSizeMismatch indicates an existing region's on-disk size does not
// match the size the caller expected.
var ErrSizeMismatch = errors.New("shmseg: size mismatch")

// Region is a memory-mapped named region together with the file handle
// that backs it. The mapping stays valid after Close unmaps it only for
// processes that still hold their own Region; Close on this handle does
// not affect other processes' mappings.
type Region struct {
	Mem  []byte
	Path string
	file *os.File
}

// Close unmaps the region and closes the backing file descriptor. It does
// not unlink the name from the namespace; callers that created the
// region are responsible for calling Remove separately on teardown.
func (r *Region) Close() error {
	var firstErr error
	if r.Mem != nil {
		if err := unix.Munmap(r.Mem); err != nil {
			firstErr = fmt.Errorf("munmap: %w", err)
		}
		r.Mem = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.file = nil
	}
	return firstErr
}

// path resolves the filesystem path backing a named region, preferring
// /dev/shm and falling back to the system temp directory when it is
// unavailable.
func path(name string) string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return filepath.Join("/dev/shm", namePrefix+name)
	}
	return filepath.Join(os.TempDir(), namePrefix+name)
}

// Exists reports whether a region with this name is currently linked in
// the namespace.
func Exists(name string) bool {
	_, err := os.Stat(path(name))
	return err == nil
}

// Stat returns the current size in bytes of an existing region. The
// returned error satisfies os.IsNotExist when the region is not linked.
func Stat(name string) (int64, error) {
	info, err := os.Stat(path(name))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Remove unlinks the region from the namespace. A missing region is not
// an error: unlink is idempotent, matching POSIX shm_unlink semantics.
func Remove(name string) error {
	err := os.Remove(path(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unlink %s: %w", name, err)
	}
	return nil
}

// CreateOrOpen opens a region by name, creating it if absent, and maps it
// read-write at exactly size bytes. It does not use O_EXCL: per the
// create-or-attach protocol, two processes may legitimately race to
// create the same region, and whichever header-initialization check
// happens on the mapped header decides who actually initializes it, not
// who performed the file open. Truncating an already-correctly-sized
// existing file is a no-op.
func CreateOrOpen(name string, size uint64) (*Region, error) {
	p := path(name)
	file, err := os.OpenFile(p, os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	if err := file.Truncate(int64(size)); err != nil {
		file.Close()
		return nil, fmt.Errorf("truncate %s: %w", name, err)
	}
	mem, err := mmap(file, int(size), true)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mmap %s: %w", name, err)
	}
	return &Region{Mem: mem, Path: p, file: file}, nil
}

// OpenReadWrite maps an existing region read-write. It fails if the
// region's actual size does not equal size.
func OpenReadWrite(name string, size uint64) (*Region, error) {
	return open(name, size, true)
}

// OpenReadOnly maps an existing region read-only. It fails if the
// region's actual size does not equal size.
func OpenReadOnly(name string, size uint64) (*Region, error) {
	return open(name, size, false)
}

// OpenPrefixReadOnly maps the first n bytes of an existing region
// read-only without requiring the caller to know its full size. It fails
// if the region's actual size is smaller than n. Used by introspection,
// which must read the header before it knows the region's geometry and
// therefore its full size.
func OpenPrefixReadOnly(name string, n uint64) (*Region, error) {
	p := path(name)
	file, err := os.OpenFile(p, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if uint64(info.Size()) < n {
		file.Close()
		return nil, fmt.Errorf("region %s is %d bytes, too small for a %d-byte prefix: %w", name, info.Size(), n, ErrSizeMismatch)
	}
	mem, err := mmap(file, int(n), false)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mmap %s: %w", name, err)
	}
	return &Region{Mem: mem, Path: p, file: file}, nil
}

func open(name string, size uint64, writable bool) (*Region, error) {
	p := path(name)
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	file, err := os.OpenFile(p, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if uint64(info.Size()) != size {
		file.Close()
		return nil, fmt.Errorf("region %s is %d bytes, expected %d: %w", name, info.Size(), size, ErrSizeMismatch)
	}
	mem, err := mmap(file, int(size), writable)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mmap %s: %w", name, err)
	}
	return &Region{Mem: mem, Path: p, file: file}, nil
}

func mmap(file *os.File, size int, writable bool) ([]byte, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	return unix.Mmap(int(file.Fd()), 0, size, prot, unix.MAP_SHARED)
}
