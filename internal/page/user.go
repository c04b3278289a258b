package page

// UserRecordSize is the on-disk size of one user account record.
const UserRecordSize = 4 + MaxNameLen

// UsersPerPage is the number of user records a user page holds after its
// chain header.
const UsersPerPage = (Size - headerSize) / UserRecordSize

const userPageOff = headerSize

// User is a decoded user account record. AccountID 0 marks an empty slot.
type User struct {
	AccountID uint32
	Name      string
}

// UserSlot returns the byte offset of user record i within a user page.
func UserSlot(i int) int { return userPageOff + i*UserRecordSize }

// DecodeUser reads a user record from b[at:at+UserRecordSize].
func DecodeUser(b []byte, at int) User {
	return User{
		AccountID: getU32(b, at),
		Name:      GetName(b[at+4 : at+UserRecordSize]),
	}
}

// EncodeUser writes a user record into b[at:at+UserRecordSize].
func EncodeUser(b []byte, at int, u User) {
	putU32(b, at, u.AccountID)
	PutName(b[at+4:at+UserRecordSize], u.Name)
}

// InitUserPage formats a fresh user page with every slot empty.
func InitUserPage(p []byte) {
	InitChainPage(p, KindUser)
	for i := 0; i < UsersPerPage; i++ {
		EncodeUser(p, UserSlot(i), User{})
	}
}
