package cozyfs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jacobsa/syncutil"

	"github.com/cozis/cozyfs/cfg"
	"github.com/cozis/cozyfs/internal/backup"
	"github.com/cozis/cozyfs/internal/entity"
	"github.com/cozis/cozyfs/internal/handle"
	"github.com/cozis/cozyfs/internal/lock"
	"github.com/cozis/cozyfs/internal/page"
	"github.com/cozis/cozyfs/internal/pathutil"
	"github.com/cozis/cozyfs/internal/txn"
	"github.com/cozis/cozyfs/metrics"
)

// TxnMode tracks where a session sits relative to an explicit Begin/
// Commit/Rollback bracket.
type TxnMode int

const (
	// TxnOff means every public operation runs its own one-shot
	// transaction: acquire the lock, build a fresh Txn, run, commit (or
	// roll back on error), release the lock.
	TxnOff TxnMode = iota
	// TxnOn means a Begin has opened a transaction that persists across
	// calls until Commit or Rollback; the session holds the lock for
	// the whole span.
	TxnOn
	// TxnTimeout means an open transaction's lock ticket expired before
	// it reached Commit or Rollback; every operation fails ETIMEDOUT
	// until the caller calls Rollback (or Commit, which reports
	// ETIMEDOUT) to acknowledge and reset.
	TxnTimeout
)

// Session is one attacher's view of a buffer: its own host callbacks,
// configuration, and (if TxnOn) in-progress transaction. A buffer may be
// attached from many sessions, in one process or several sharing the
// same memory, each coordinating through the buffer's single lock word.
type Session struct {
	mu syncutil.InvariantMutex

	id  uuid.UUID
	buf []byte
	// halfSize is 0 when backup mode is disabled, meaning the whole
	// buffer is one region; otherwise buf is split into two equal
	// halves and halfSize is the size of one.
	halfSize int

	host    *hostAdapter
	cfg     cfg.Config
	metrics *metrics.Metrics
	logger  *slog.Logger

	ticket lock.Ticket
	mode   TxnMode
	tx     *txn.Txn
}

func (s *Session) checkInvariants() {
	if s.mode == TxnOff && s.tx != nil {
		panic("cozyfs: session has a live transaction while TxnOff")
	}
	if s.mode != TxnOff && s.tx == nil {
		panic("cozyfs: session has no transaction while a Begin is open")
	}
}

// Attach wraps buf with a Session ready to run operations against it. buf
// must already have been formatted by Init. enableBackup must match the
// value Init was called with, since it determines whether buf is treated
// as one region or two equal halves.
func Attach(buf []byte, enableBackup bool, host HostCallbacks, c cfg.Config, m *metrics.Metrics, logger *slog.Logger) (*Session, error) {
	halfSize := 0
	if enableBackup {
		halfSize = len(buf) / 2
	}

	s := &Session{
		id:       uuid.New(),
		buf:      buf,
		halfSize: halfSize,
		host:     newHostAdapter(host),
		cfg:      c,
		metrics:  m,
		logger:   logger,
		mode:     TxnOff,
	}
	s.mu = syncutil.NewInvariantMutex(s.checkInvariants)
	return s, nil
}

// rootVolatile returns the fixed page holding the lock word, backup flag,
// and last-backup time, valid regardless of which half is active.
func (s *Session) rootVolatile() []byte {
	return backup.VolatileRoot(s.buf)
}

// activeRegion reslices s.buf to the half currently selected by the
// backup flag (or the whole buffer, if backup mode is off). It must be
// recalled fresh for every operation rather than cached, since a backup
// flip between calls can change which half is active.
func (s *Session) activeRegion() []byte {
	if s.halfSize == 0 {
		return s.buf
	}
	off := backup.ActiveOffset(s.buf, s.halfSize)
	return s.buf[off : off+s.halfSize]
}

func (s *Session) maxPatches() int64 {
	if s.cfg.Transaction.MaxPatches > 0 {
		return s.cfg.Transaction.MaxPatches
	}
	return 256
}

// acquireLock takes the buffer's lock word, performing crash recovery
// first if the previous holder's ticket had already expired.
func (s *Session) acquireLock() error {
	res, ok := lock.Acquire(s.rootVolatile(), s.host, s.host, s.cfg.Lock.WaitTimeout, s.cfg.Lock.HoldTimeout)
	if !ok {
		s.metrics.LockWaitTimeouts.Inc()
		return ETIMEDOUT
	}
	s.metrics.LockAcquisitions.WithLabelValues(boolLabel(res.CrashDetected)).Inc()
	s.ticket = res.Ticket

	if res.CrashDetected && s.halfSize != 0 {
		if err := backup.Restore(s.buf, s.halfSize); err != nil {
			return ECORRUPT
		}
		s.metrics.LockCrashRecoveries.Inc()
	}
	return nil
}

func (s *Session) releaseLock() {
	if !lock.Release(s.rootVolatile(), s.host, s.ticket) {
		s.logger.Warn("lock ticket already stolen at release", "session", s.id)
	}
	s.ticket = 0
}

// validateTicket re-checks (and extends) the held lock ticket by CAS
// against the lock word, the same fence Refresh uses for an explicit
// Idle call. A transaction must pass this immediately before its patch
// pages are copied back into the shared buffer: if the ticket already
// expired and was stolen by another acquirer, copying now would corrupt
// whatever the new holder is doing, so the patches are discarded instead
// and the session reports ETIMEDOUT.
func (s *Session) validateTicket() error {
	newTicket, ok := lock.Refresh(s.rootVolatile(), s.host, s.ticket, s.cfg.Lock.HoldTimeout)
	if !ok {
		return ETIMEDOUT
	}
	s.ticket = newTicket
	return nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// withTxn is the central dispatcher every mutating public operation goes
// through: it resolves which transaction (a fresh one-shot, or the
// session's persistent one) fn should run against, and handles the
// acquire/commit-or-rollback/release bracket for the one-shot case.
func (s *Session) withTxn(ctx context.Context, op string, fn func(em *entity.Manager, hm *handle.Manager) error) error {
	ctx = contextOrBackground(ctx)
	start := time.Now()
	var resultErr error
	defer func() {
		s.logResult(op, start, resultErr)
	}()

	if s.mode == TxnTimeout {
		resultErr = ETIMEDOUT
		return resultErr
	}

	if s.mode == TxnOn {
		em := entity.New(s.tx)
		hm := handle.New(s.tx, em)
		err := fn(em, hm)
		if hostOp, hostErr := s.host.takeErr(); hostErr != nil {
			resultErr = s.translateHostErr(hostOp, hostErr)
			return resultErr
		}
		if err == txn.ErrPatchTableFull {
			resultErr = ENOMEM
			return resultErr
		}
		resultErr = err
		return resultErr
	}

	if err := s.acquireLock(); err != nil {
		resultErr = err
		return resultErr
	}

	tx := txn.New(s.activeRegion(), page.Size, s.host, s.maxPatches())
	em := entity.New(tx)
	hm := handle.New(tx, em)

	err := fn(em, hm)
	if hostOp, hostErr := s.host.takeErr(); hostErr != nil {
		err = s.translateHostErr(hostOp, hostErr)
	} else if err == txn.ErrPatchTableFull {
		err = ENOMEM
	}

	if err != nil {
		tx.Rollback()
		s.metrics.TransactionsRolledBack.Inc()
		s.releaseLock()
		resultErr = err
		return resultErr
	}

	s.metrics.PatchesPerTransaction.Observe(float64(tx.PatchCount()))
	if verr := s.validateTicket(); verr != nil {
		tx.Rollback()
		s.mode = TxnTimeout
		s.tx = tx
		s.metrics.TransactionsTimedOut.Inc()
		resultErr = verr
		return resultErr
	}
	tx.Commit()
	s.metrics.TransactionsCommitted.Inc()
	if s.halfSize != 0 {
		if backup.Perform(s.buf, s.halfSize, s.host, s.cfg.Backup.MinInterval) {
			s.metrics.BackupsPerformed.Inc()
		} else {
			s.metrics.BackupsSkipped.Inc()
		}
	}
	s.releaseLock()
	resultErr = nil
	return nil
}

func (s *Session) translateHostErr(op Op, err error) error {
	switch op {
	case OpMalloc:
		return ENOMEM
	case OpFree:
		return ESYSFREE
	case OpSync:
		return ESYSSYNC
	case OpTime:
		return ESYSTIME
	case OpWait:
		return ESYSWAIT
	case OpWake:
		return ESYSWAKE
	default:
		return err
	}
}

func (s *Session) logResult(op string, start time.Time, err error) {
	elapsed := time.Since(start)
	attrs := []any{"op", op, "session", s.id.String(), "elapsed", elapsed}
	if err == nil {
		s.logger.Debug("cozyfs operation", attrs...)
		return
	}
	attrs = append(attrs, "error", err)
	if errno, ok := err.(Errno); ok && (errno == ENOENT || errno == EBADF) {
		s.logger.Debug("cozyfs operation", attrs...)
		return
	}
	s.logger.Warn("cozyfs operation failed", attrs...)
}

// readOnly runs fn against a throwaway transaction over the current
// active region without taking the lock, for read-only operations
// (Stat, ReadDir) that never call Writable and so can run lock-free.
func (s *Session) readOnly(fn func(em *entity.Manager) error) error {
	tx := txn.New(s.activeRegion(), page.Size, s.host, s.maxPatches())
	em := entity.New(tx)
	return fn(em)
}

// resolve walks path from the root directory to the offset of the
// entity it names.
func (s *Session) resolve(em *entity.Manager, path string) (page.Offset, error) {
	components, err := pathutil.Parse(path)
	if err != nil {
		return page.None, EINVAL
	}
	off := page.Offset(page.RootInodeOffset)
	for _, name := range components {
		child, ok := em.LookupChild(off, name)
		if !ok {
			return page.None, ENOENT
		}
		off = child
	}
	return off, nil
}

// resolveParent splits path into its containing directory's offset and
// final component name, the shape every create/remove/link operation
// needs.
func (s *Session) resolveParent(em *entity.Manager, path string) (page.Offset, string, error) {
	parent, name, err := pathutil.Split(path)
	if err != nil {
		return page.None, "", EINVAL
	}
	off := page.Offset(page.RootInodeOffset)
	for _, c := range parent {
		child, ok := em.LookupChild(off, c)
		if !ok {
			return page.None, "", ENOENT
		}
		off = child
	}
	return off, name, nil
}

// Idle refreshes the session's lock ticket without performing any other
// operation, for a caller that wants to keep a long Begin/Commit bracket
// alive across an otherwise quiet interval.
func (s *Session) Idle(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()

	if s.mode != TxnOn {
		s.logResult("idle", start, nil)
		return nil
	}
	newTicket, ok := lock.Refresh(s.rootVolatile(), s.host, s.ticket, s.cfg.Lock.HoldTimeout)
	if !ok {
		s.tx.Rollback()
		s.mode = TxnTimeout
		s.metrics.TransactionsTimedOut.Inc()
		s.logResult("idle", start, ETIMEDOUT)
		return ETIMEDOUT
	}
	s.ticket = newTicket
	s.logResult("idle", start, nil)
	return nil
}

// Mkdir creates a fresh, empty directory at path.
func (s *Session) Mkdir(ctx context.Context, path string, ownerUID int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTxn(ctx, "mkdir", func(em *entity.Manager, hm *handle.Manager) error {
		dirOff, name, err := s.resolveParent(em, path)
		if err != nil {
			return err
		}
		_, cerr := em.CreateEntity(ctx, dirOff, name, page.InodeIsDir, ownerUID)
		return translateEntityErr(cerr)
	})
}

// Rmdir removes the empty directory at path. A non-empty directory fails
// with EINVAL.
func (s *Session) Rmdir(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTxn(ctx, "rmdir", func(em *entity.Manager, hm *handle.Manager) error {
		dirOff, name, err := s.resolveParent(em, path)
		if err != nil {
			return err
		}
		return translateEntityErr(em.RemoveEntity(ctx, dirOff, name))
	})
}

// Link adds newPath as a second name for the existing regular file at
// oldPath and bumps its reference count. It does not create files: a
// missing oldPath fails with ENOENT, and ownerUID is not used. Hard-linking
// a directory is rejected with EPERM.
func (s *Session) Link(ctx context.Context, oldPath, newPath string, ownerUID int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTxn(ctx, "link", func(em *entity.Manager, hm *handle.Manager) error {
		targetOff, err := s.resolve(em, oldPath)
		if err != nil {
			return err
		}
		target := em.ReadInode(targetOff)
		if target.IsDir() {
			return EPERM
		}

		dirOff, name, err := s.resolveParent(em, newPath)
		if err != nil {
			return err
		}
		if aerr := em.AddChild(ctx, dirOff, name, targetOff); aerr != nil {
			return translateEntityErr(aerr)
		}
		return translateEntityErr(em.IncRef(ctx, targetOff))
	})
}

// Unlink removes a name from its containing directory and drops the
// target's reference count, freeing its content once the count reaches
// zero. Unlinking a non-empty directory fails with EINVAL, the same as
// Rmdir.
func (s *Session) Unlink(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTxn(ctx, "unlink", func(em *entity.Manager, hm *handle.Manager) error {
		dirOff, name, err := s.resolveParent(em, path)
		if err != nil {
			return err
		}
		return translateEntityErr(em.RemoveEntity(ctx, dirOff, name))
	})
}

// Mkusr registers a new account name, returning its account id.
func (s *Session) Mkusr(ctx context.Context, name string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var id uint32
	err := s.withTxn(ctx, "mkusr", func(em *entity.Manager, hm *handle.Manager) error {
		var merr error
		id, merr = em.Mkusr(ctx, name)
		return translateEntityErr(merr)
	})
	return id, err
}

// Rmusr removes a previously registered account name.
func (s *Session) Rmusr(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTxn(ctx, "rmusr", func(em *entity.Manager, hm *handle.Manager) error {
		return translateEntityErr(em.Rmusr(ctx, name))
	})
}

// Chown records a new owning account id for path's entity. Nothing
// downstream enforces this value against a caller's identity; it is
// only ever recorded for Stat to report.
func (s *Session) Chown(ctx context.Context, path string, ownerUID int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTxn(ctx, "chown", func(em *entity.Manager, hm *handle.Manager) error {
		off, err := s.resolve(em, path)
		if err != nil {
			return err
		}
		return translateEntityErr(em.SetOwner(ctx, off, ownerUID))
	})
}

// Chmod records new permission bits for path's entity, with the same
// unenforced-by-design status as Chown.
func (s *Session) Chmod(ctx context.Context, path string, mode uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTxn(ctx, "chmod", func(em *entity.Manager, hm *handle.Manager) error {
		off, err := s.resolve(em, path)
		if err != nil {
			return err
		}
		return translateEntityErr(em.SetMode(ctx, off, mode))
	})
}

// Open resolves path to a handle, optionally creating a fresh regular
// file there if it does not exist and create is set (the idiomatic
// O_CREAT-style surface for the create-entity operation's "fresh inode"
// branch; Link is the other branch, hard-linking an existing target).
func (s *Session) Open(ctx context.Context, path string, create bool, ownerUID int32) (handle.Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var d handle.Descriptor
	err := s.withTxn(ctx, "open", func(em *entity.Manager, hm *handle.Manager) error {
		off, rerr := s.resolve(em, path)
		if rerr != nil {
			if rerr != ENOENT || !create {
				return rerr
			}
			dirOff, name, perr := s.resolveParent(em, path)
			if perr != nil {
				return perr
			}
			var cerr error
			off, cerr = em.CreateEntity(ctx, dirOff, name, page.InodeIsRegular, ownerUID)
			if cerr != nil {
				return translateEntityErr(cerr)
			}
		}

		in := em.ReadInode(off)
		if in.IsDir() {
			return EISDIR
		}

		var oerr error
		d, oerr = hm.Open(ctx, off)
		return translateHandleErr(oerr)
	})
	return d, err
}

// Close invalidates a descriptor; a later operation using it fails with
// EBADF.
func (s *Session) Close(ctx context.Context, d handle.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTxn(ctx, "close", func(em *entity.Manager, hm *handle.Manager) error {
		return translateHandleErr(hm.Close(ctx, d))
	})
}

// Read copies up to len(dst) bytes from d's underlying file into dst,
// starting at the handle's stored cursor (or the front of the file, if
// restart is set), and returns the number of bytes actually copied. If
// consume is set, the copied bytes are dropped from the front of the
// file and the handle's cursor is reset to zero; otherwise the cursor
// advances by the number of bytes copied.
func (s *Session) Read(ctx context.Context, d handle.Descriptor, dst []byte, restart, consume bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.withTxn(ctx, "read", func(em *entity.Manager, hm *handle.Manager) error {
		inodeOff, cursor, serr := hm.Stat(d)
		if serr != nil {
			return translateHandleErr(serr)
		}

		var rerr error
		var newCursor uint32
		n, newCursor, rerr = em.ReadFile(ctx, inodeOff, dst, cursor, restart, consume)
		if rerr != nil {
			return rerr
		}
		return translateHandleErr(hm.Seek(ctx, d, newCursor))
	})
	if err == nil {
		s.metrics.BytesRead.Add(float64(n))
	}
	return n, err
}

// Write appends src to d's underlying file's content, independent of the
// handle's read cursor, and returns the number of bytes accepted.
func (s *Session) Write(ctx context.Context, d handle.Descriptor, src []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.withTxn(ctx, "write", func(em *entity.Manager, hm *handle.Manager) error {
		inodeOff, _, serr := hm.Stat(d)
		if serr != nil {
			return translateHandleErr(serr)
		}
		var werr error
		n, werr = em.WriteFile(ctx, inodeOff, src)
		return werr
	})
	if err == nil {
		s.metrics.BytesWritten.Add(float64(n))
	}
	return n, err
}

// Begin opens a transaction that persists across calls until Commit or
// Rollback, holding the buffer's lock for the whole span.
func (s *Session) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	if s.mode != TxnOff {
		s.logResult("begin", start, EINVAL)
		return EINVAL
	}
	if err := s.acquireLock(); err != nil {
		s.logResult("begin", start, err)
		return err
	}
	s.tx = txn.New(s.activeRegion(), page.Size, s.host, s.maxPatches())
	s.mode = TxnOn
	s.logResult("begin", start, nil)
	return nil
}

// Commit applies every change made since Begin and releases the lock.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	if s.mode == TxnTimeout {
		s.mode, s.tx = TxnOff, nil
		s.logResult("commit", start, ETIMEDOUT)
		return ETIMEDOUT
	}
	if s.mode != TxnOn {
		s.logResult("commit", start, EINVAL)
		return EINVAL
	}

	s.metrics.PatchesPerTransaction.Observe(float64(s.tx.PatchCount()))
	if verr := s.validateTicket(); verr != nil {
		s.tx.Rollback()
		s.mode = TxnTimeout
		s.metrics.TransactionsTimedOut.Inc()
		s.logResult("commit", start, ETIMEDOUT)
		return ETIMEDOUT
	}
	s.tx.Commit()
	s.metrics.TransactionsCommitted.Inc()
	if s.halfSize != 0 {
		if backup.Perform(s.buf, s.halfSize, s.host, s.cfg.Backup.MinInterval) {
			s.metrics.BackupsPerformed.Inc()
		} else {
			s.metrics.BackupsSkipped.Inc()
		}
	}
	s.releaseLock()
	s.mode, s.tx = TxnOff, nil
	s.logResult("commit", start, nil)
	return nil
}

// Rollback discards every change made since Begin and releases the lock.
// It is also how a caller acknowledges a TxnTimeout session and returns
// it to TxnOff.
func (s *Session) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	if s.mode == TxnTimeout {
		s.mode, s.tx = TxnOff, nil
		s.logResult("rollback", start, nil)
		return nil
	}
	if s.mode != TxnOn {
		s.logResult("rollback", start, EINVAL)
		return EINVAL
	}
	s.tx.Rollback()
	s.metrics.TransactionsRolledBack.Inc()
	s.releaseLock()
	s.mode, s.tx = TxnOff, nil
	s.logResult("rollback", start, nil)
	return nil
}

// Stat reports kind, size, link count, and owner for path's entity. It
// performs no mutation and takes no lock.
func (s *Session) Stat(path string) (Stat, error) {
	var st Stat
	err := s.readOnly(func(em *entity.Manager) error {
		off, rerr := s.resolve(em, path)
		if rerr != nil {
			return rerr
		}
		in := em.ReadInode(off)
		st = Stat{
			IsDir:    in.IsDir(),
			RefCount: in.RefCount,
			OwnerUID: in.OwnerUID,
			Mode:     in.Mode,
		}
		if !st.IsDir {
			st.Size = em.FileSize(off)
		}
		return nil
	})
	return st, err
}

// ReadDir lists path's immediate children.
func (s *Session) ReadDir(path string) ([]DirEntry, error) {
	var entries []DirEntry
	err := s.readOnly(func(em *entity.Manager) error {
		off, rerr := s.resolve(em, path)
		if rerr != nil {
			return rerr
		}
		in := em.ReadInode(off)
		if !in.IsDir() {
			return EISDIR
		}
		em.ListChildren(off, func(name string, childOff page.Offset) {
			entries = append(entries, DirEntry{
				Name:  name,
				IsDir: em.ReadInode(childOff).IsDir(),
			})
		})
		return nil
	})
	return entries, err
}

// Stat is the result of a Stat call.
type Stat struct {
	IsDir    bool
	Size     uint64
	RefCount uint32
	OwnerUID int32
	Mode     uint32
}

// DirEntry is one entry returned by ReadDir.
type DirEntry struct {
	Name  string
	IsDir bool
}
