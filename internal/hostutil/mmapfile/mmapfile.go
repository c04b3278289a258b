// Package mmapfile backs a buffer with a memory-mapped file instead of
// the Go heap, demonstrating that the buffer the core engine operates on
// may be a file mapping shared across processes rather than an
// in-process allocation.
package mmapfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// File is an open, memory-mapped file. Buf is the mapped region; callers
// pass it directly to the engine's attach call.
type File struct {
	f   *os.File
	Buf []byte
}

// Open opens (creating if necessary) path, truncates it to size bytes if
// it is smaller, and maps the whole file read-write and shared so writes
// are visible to every other mapper of the same file.
func Open(path string, size int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("mmapfile: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmapfile: stat %s: %w", path, err)
	}
	if info.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("mmapfile: truncate %s: %w", path, err)
		}
	}

	buf, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmapfile: mmap %s: %w", path, err)
	}

	return &File{f: f, Buf: buf}, nil
}

// Sync flushes dirty mapped pages to disk, serving as the SYNC host
// callback for a buffer backed by this mapping.
func (m *File) Sync() error {
	return unix.Msync(m.Buf, unix.MS_SYNC)
}

// Close unmaps the buffer and closes the underlying file descriptor.
func (m *File) Close() error {
	if err := unix.Munmap(m.Buf); err != nil {
		m.f.Close()
		return fmt.Errorf("mmapfile: munmap: %w", err)
	}
	return m.f.Close()
}
