package main

import (
	"fmt"
	"os"

	"github.com/cozis/cozyfs"
	"github.com/cozis/cozyfs/internal/hostutil/mmapfile"
	"github.com/cozis/cozyfs/internal/page"
	"github.com/cozis/cozyfs/logger"
	"github.com/cozis/cozyfs/metrics"
)

// openSession maps path (which must already have been formatted by the
// init subcommand) and attaches a Session to it. Whether backup mode is
// active is read back from the file's own backup flag rather than taken
// on faith from a flag, since getting it wrong would make Attach split
// the buffer into halves that do not match how Init laid it out. The
// returned closer unmaps the file; callers should defer it.
func openSession(path string) (*cozyfs.Session, func() error, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w (run `cozyfsctl init` first)", path, err)
	}

	f, err := mmapfile.Open(path, int(info.Size()))
	if err != nil {
		return nil, nil, err
	}

	enableBackup := page.BackupFlag(f.Buf[:page.Size]) != -1

	host := newFileHost(f)
	log, err := logger.New(rootConfig.Log)
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	s, err := cozyfs.Attach(f.Buf, enableBackup, host, rootConfig, metrics.New(), log)
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	return s, f.Close, nil
}
