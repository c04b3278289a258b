package page

// Root page layout: a stream of 4096-byte pages, page 0 of the active half
// is the root. Its bytes hold, in order: the page-kind byte (bytes 0-3),
// lock word, backup flag, last-backup-time, generation stamp, next account
// id, free-list head, total and in-use page counts, handle-overflow head,
// user-list head, the root inode, the inline handle array, then padding.
// The lock word, backup flag and last-backup time are the
// "volatile fields": they are grouped together so backup/restore can copy
// every other root byte while leaving this range untouched in either
// direction.
const (
	rootVolatileOff = 4
	rootLockWord    = rootVolatileOff
	rootBackupFlag  = rootLockWord + 8
	rootLastBackup  = rootBackupFlag + 4
	rootVolatileEnd = rootLastBackup + 8 // = 24

	rootGeneration         = rootVolatileEnd // 24
	rootNextAccountID      = rootGeneration + 4
	rootFreeListHead       = rootNextAccountID + 4
	rootTotalPages         = rootFreeListHead + 4
	rootInUsePages         = rootTotalPages + 4
	rootHandleOverflowHead = rootInUsePages + 4         // 44
	rootUserListHead       = rootHandleOverflowHead + 4 // 48
	rootInode              = rootUserListHead + 4       // 52
	rootHandleArray        = rootInode + InodeSize      // 84
)

// RootVolatileOffset and RootVolatileLength bound the byte range that a
// backup/restore copy must NEVER touch.
const (
	RootVolatileOffset = rootVolatileOff
	RootVolatileLength = rootVolatileEnd - rootVolatileOff
)

// RootLockWordOffset is the byte offset of the 64-bit timeout-lock word
// within the root page, exported so internal/lock can take its address for
// atomic compare-and-swap.
const RootLockWordOffset = rootLockWord

// RootBackupFlagOffset is the byte offset of the 32-bit backup-half
// selector within the root page, exported so internal/backup can take its
// address for an atomic flip.
const RootBackupFlagOffset = rootBackupFlag

// RootInodeOffset is the byte offset of the root directory's inode record
// within the root page, exported so internal/entity can address it the
// same way it addresses a pool slot inside an ordinary directory page.
const RootInodeOffset = rootInode

// InlineHandleCount is the number of handle slots that fit inline in the
// root page after its fixed header, roughly matching the reference
// implementation's "≈333 slots".
const InlineHandleCount = (Size - rootHandleArray) / HandleSlotSize

// RootInlineHandleSlot returns the byte offset of inline handle slot i.
func RootInlineHandleSlot(i int) int { return rootHandleArray + i*HandleSlotSize }

// LockWord reads the 64-bit timeout-lock word (0 = free, else a millisecond
// UTC expiry timestamp).
func LockWord(root []byte) uint64 { return getU64(root, rootLockWord) }

// SetLockWord writes the lock word via a plain store. The lock package uses
// atomic operations on this same memory directly; this helper exists for
// initialization and tests.
func SetLockWord(root []byte, v uint64) { putU64(root, rootLockWord, v) }

// BackupFlag reads the backup-half selector: -1 (no backup mode), 0 or 1.
func BackupFlag(root []byte) int32 { return getI32(root, rootBackupFlag) }

// SetBackupFlag writes the backup-half selector.
func SetBackupFlag(root []byte, v int32) { putI32(root, rootBackupFlag, v) }

// LastBackupTimeMillis reads the millisecond UTC timestamp of the last
// successful PerformBackup, or 0 if none has ever run.
func LastBackupTimeMillis(root []byte) int64 { return getI64(root, rootLastBackup) }

// SetLastBackupTimeMillis writes the last-backup timestamp.
func SetLastBackupTimeMillis(root []byte, v int64) { putI64(root, rootLastBackup, v) }

// Generation reads the format generation stamp.
func Generation(root []byte) uint32 { return getU32(root, rootGeneration) }

// SetGeneration writes the format generation stamp.
func SetGeneration(root []byte, v uint32) { putU32(root, rootGeneration, v) }

// NextAccountID reads the next account id to hand out from Mkusr.
func NextAccountID(root []byte) uint32 { return getU32(root, rootNextAccountID) }

// SetNextAccountID writes the next account id.
func SetNextAccountID(root []byte, v uint32) { putU32(root, rootNextAccountID, v) }

// FreeListHead reads the head of the free-page singly linked list.
func FreeListHead(root []byte) Offset { return getOffset(root, rootFreeListHead) }

// SetFreeListHead writes the head of the free-page list.
func SetFreeListHead(root []byte, o Offset) { putOffset(root, rootFreeListHead, o) }

// TotalPages reads the half's total page count (high-water mark ceiling).
func TotalPages(root []byte) uint32 { return getU32(root, rootTotalPages) }

// SetTotalPages writes the half's total page count.
func SetTotalPages(root []byte, v uint32) { putU32(root, rootTotalPages, v) }

// InUsePages reads the current high-water mark of claimed pages.
func InUsePages(root []byte) uint32 { return getU32(root, rootInUsePages) }

// SetInUsePages writes the current high-water mark of claimed pages.
func SetInUsePages(root []byte, v uint32) { putU32(root, rootInUsePages, v) }

// HandleOverflowHead reads the head of the chain of handle-overflow pages
// used once the inline handle array is full.
func HandleOverflowHead(root []byte) Offset { return getOffset(root, rootHandleOverflowHead) }

// SetHandleOverflowHead writes the head of the handle-overflow page chain.
func SetHandleOverflowHead(root []byte, o Offset) { putOffset(root, rootHandleOverflowHead, o) }

// UserListHead reads the head of the chain of user pages holding account
// records, or None if no user has ever been created.
func UserListHead(root []byte) Offset { return getOffset(root, rootUserListHead) }

// SetUserListHead writes the head of the user-page chain.
func SetUserListHead(root []byte, o Offset) { putOffset(root, rootUserListHead, o) }

// RootInode reads the root directory's inode record.
func RootInode(root []byte) Inode { return DecodeInode(root, rootInode) }

// SetRootInode writes the root directory's inode record.
func SetRootInode(root []byte, in Inode) { EncodeInode(root, rootInode, in) }

// InitRootPage formats a fresh root page: kind stamp, a free lock word, a
// backup flag of -1 (no backup mode), no last-backup time, generation 1,
// empty free list, one page in use (the root page itself), and an inline
// handle array marked entirely free. TotalPages is set to totalPages, which
// the caller computes from the half size.
func InitRootPage(root []byte, totalPages uint32) {
	for i := range root {
		root[i] = 0
	}
	SetKind(root, KindRoot)
	SetLockWord(root, 0)
	SetBackupFlag(root, -1)
	SetLastBackupTimeMillis(root, 0)
	SetGeneration(root, 1)
	SetNextAccountID(root, 1)
	SetFreeListHead(root, None)
	SetTotalPages(root, totalPages)
	SetInUsePages(root, 1)
	SetHandleOverflowHead(root, None)
	SetUserListHead(root, None)

	rootDirInode := ZeroInode()
	rootDirInode.RefCount = 1
	rootDirInode.Flags = InodeIsDir
	SetRootInode(root, rootDirInode)

	for i := 0; i < InlineHandleCount; i++ {
		EncodeHandleSlot(root, RootInlineHandleSlot(i), HandleSlot{InodeOff: None})
	}
}
