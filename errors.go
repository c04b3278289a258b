package cozyfs

import "strconv"

// Errno is the flat, allocation-free error taxonomy every operation in
// this package returns through, per the fixed-size signalling channel the
// buffer-resident design requires: no wrapped error chains on the hot
// path, just a small set of distinguishable negative codes.
type Errno int32

const (
	errnoOK = Errno(iota)
	errnoEINVAL
	errnoENOMEM
	errnoENOENT
	errnoEPERM
	errnoEBUSY
	errnoEISDIR
	errnoENFILE
	errnoEBADF
	errnoETIMEDOUT
	errnoECORRUPT
	errnoESYSFREE
	errnoESYSSYNC
	errnoESYSTIME
	errnoESYSWAIT
	errnoESYSWAKE
)

var (
	// EINVAL marks a malformed argument: an invalid path, an empty name,
	// or a parameter outside its documented range.
	EINVAL Errno = -errnoEINVAL
	// ENOMEM marks a capacity exhaustion the caller can legitimately
	// retry after freeing something: no free page left, or the patch
	// table is full.
	ENOMEM Errno = -errnoENOMEM
	// ENOENT marks a missing entity: no such path, user, or handle
	// target.
	ENOENT Errno = -errnoENOENT
	// EPERM marks an operation this design does not allow regardless of
	// state, such as hard-linking a directory.
	EPERM Errno = -errnoEPERM
	// EBUSY marks the buffer's lock held with no timeout. No operation in
	// this package returns it: a failed lock acquire, including one with a
	// zero wait timeout, reports ETIMEDOUT.
	EBUSY Errno = -errnoEBUSY
	// EISDIR marks an operation that requires a regular file given a
	// directory instead.
	EISDIR Errno = -errnoEISDIR
	// ENFILE marks the handle table at capacity.
	ENFILE Errno = -errnoENFILE
	// EBADF marks a descriptor whose generation no longer matches its
	// slot.
	EBADF Errno = -errnoEBADF
	// ETIMEDOUT marks a lock acquire that gave up after the wait timeout,
	// or a session whose lock ticket expired before its changes were
	// committed; in the latter case the session is in TxnTimeout and every
	// operation fails with ETIMEDOUT until Commit or Rollback resets it.
	ETIMEDOUT Errno = -errnoETIMEDOUT
	// ECORRUPT marks a crash-recovery attempt that could not restore a
	// consistent backup half.
	ECORRUPT Errno = -errnoECORRUPT
	// ESYSFREE marks a HostCallbacks.Free failure.
	ESYSFREE Errno = -errnoESYSFREE
	// ESYSSYNC marks a HostCallbacks.Sync failure.
	ESYSSYNC Errno = -errnoESYSSYNC
	// ESYSTIME marks a HostCallbacks.Time failure.
	ESYSTIME Errno = -errnoESYSTIME
	// ESYSWAIT marks a HostCallbacks.Wait failure.
	ESYSWAIT Errno = -errnoESYSWAIT
	// ESYSWAKE marks a HostCallbacks.Wake failure.
	ESYSWAKE Errno = -errnoESYSWAKE
)

var errnoNames = map[Errno]string{
	0:             "success",
	EINVAL:        "EINVAL",
	ENOMEM:        "ENOMEM",
	ENOENT:        "ENOENT",
	EPERM:         "EPERM",
	EBUSY:         "EBUSY",
	EISDIR:        "EISDIR",
	ENFILE:        "ENFILE",
	EBADF:         "EBADF",
	ETIMEDOUT:     "ETIMEDOUT",
	ECORRUPT:      "ECORRUPT",
	ESYSFREE:      "ESYSFREE",
	ESYSSYNC:      "ESYSSYNC",
	ESYSTIME:      "ESYSTIME",
	ESYSWAIT:      "ESYSWAIT",
	ESYSWAKE:      "ESYSWAKE",
}

// Error implements the error interface so an Errno can be returned
// directly wherever Go idiom expects one, while callers that want the
// bare numeric code can still type-assert back to Errno.
func (e Errno) Error() string {
	if name, ok := errnoNames[e]; ok {
		return name
	}
	return "errno(" + strconv.Itoa(int(e)) + ")"
}

// Op tags which host callback produced an ESYS* error, so a caller
// inspecting a failed operation's logs can tell a failed Free from a
// failed Sync without parsing the error string.
type Op int

const (
	OpMalloc Op = iota
	OpFree
	OpWait
	OpWake
	OpSync
	OpTime
)

func (o Op) String() string {
	switch o {
	case OpMalloc:
		return "malloc"
	case OpFree:
		return "free"
	case OpWait:
		return "wait"
	case OpWake:
		return "wake"
	case OpSync:
		return "sync"
	case OpTime:
		return "time"
	default:
		return "unknown"
	}
}
