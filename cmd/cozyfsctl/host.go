package main

import (
	"github.com/cozis/cozyfs/internal/hostutil"
	"github.com/cozis/cozyfs/internal/hostutil/mmapfile"
	"github.com/cozis/cozyfs/internal/page"
)

const pageSize = page.Size

// fileHost composes hostutil.Default's heap allocator, condvar waiter, and
// wall clock with a memory-mapped file's Sync. Session operations do not
// call Sync: committed changes reach the file through the shared mapping,
// and only the init command flushes the file explicitly.
type fileHost struct {
	*hostutil.Default
	file *mmapfile.File
}

func newFileHost(f *mmapfile.File) *fileHost {
	return &fileHost{Default: hostutil.NewDefault(page.Size), file: f}
}

func (h *fileHost) Sync() error {
	return h.file.Sync()
}
