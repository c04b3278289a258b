package entity

import (
	"context"
	"errors"

	"github.com/cozis/cozyfs/internal/page"
)

// ErrUserExists is returned when Mkusr is asked to create an account name
// that already has a slot somewhere in the user-page chain.
var ErrUserExists = errors.New("entity: user already exists")

// ErrUserNotFound is returned when Rmusr or FindUser cannot locate the
// requested account.
var ErrUserNotFound = errors.New("entity: user not found")

func (m *Manager) forEachUserPage(ctx context.Context, fn func(off page.Offset, buf []byte) bool) error {
	root, err := m.rootBuf(ctx)
	if err != nil {
		return err
	}
	for off := page.UserListHead(root); off != page.None; {
		buf := m.tx.Read(off)
		if !fn(off, buf) {
			return nil
		}
		off = page.Next(buf)
	}
	return nil
}

// FindUser scans the user-page chain for name, returning its account id.
func (m *Manager) FindUser(ctx context.Context, name string) (uint32, error) {
	var found uint32
	err := m.forEachUserPage(ctx, func(_ page.Offset, buf []byte) bool {
		for i := 0; i < page.UsersPerPage; i++ {
			u := page.DecodeUser(buf, page.UserSlot(i))
			if u.AccountID != 0 && u.Name == name {
				found = u.AccountID
				return false
			}
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if found == 0 {
		return 0, ErrUserNotFound
	}
	return found, nil
}

// Mkusr allocates the next account id and records name in the first free
// slot of the user-page chain, appending a new user page if every
// existing one is full. Returns the new account id.
func (m *Manager) Mkusr(ctx context.Context, name string) (uint32, error) {
	if _, err := m.FindUser(ctx, name); err == nil {
		return 0, ErrUserExists
	} else if err != ErrUserNotFound {
		return 0, err
	}

	root, err := m.rootBuf(ctx)
	if err != nil {
		return 0, err
	}

	var slotOff page.Offset
	found := false
	m.forEachUserPage(ctx, func(off page.Offset, buf []byte) bool {
		for i := 0; i < page.UsersPerPage; i++ {
			at := page.UserSlot(i)
			if page.DecodeUser(buf, at).AccountID == 0 {
				slotOff = off + page.Offset(at)
				found = true
				return false
			}
		}
		return true
	})

	if !found {
		newOff, q, err := m.reserveDirPage(ctx)
		if err != nil {
			return 0, err
		}
		newBuf, err := m.tx.Writable(ctx, newOff)
		if err != nil {
			m.releaseQueue(ctx, q)
			return 0, err
		}
		page.InitUserPage(newBuf)

		head := page.UserListHead(root)
		if head == page.None {
			page.SetUserListHead(root, newOff)
		} else {
			tailOff := head
			for {
				tailBuf := m.tx.Read(tailOff)
				next := page.Next(tailBuf)
				if next == page.None {
					break
				}
				tailOff = next
			}
			tailBuf, err := m.tx.Writable(ctx, tailOff)
			if err != nil {
				m.releaseQueue(ctx, q)
				return 0, err
			}
			page.SetNext(tailBuf, newOff)
			page.SetPrev(newBuf, tailOff)
		}
		slotOff = newOff + page.Offset(page.UserSlot(0))
	}

	id := page.NextAccountID(root)
	page.SetNextAccountID(root, id+1)

	slotBuf, err := m.tx.Writable(ctx, slotOff)
	if err != nil {
		return 0, err
	}
	page.EncodeUser(slotBuf, withinPage(slotOff), page.User{AccountID: id, Name: name})
	return id, nil
}

// Rmusr clears name's slot, freeing the account id for lookup failure but
// not for reuse (NextAccountID never rewinds).
func (m *Manager) Rmusr(ctx context.Context, name string) error {
	var target page.Offset = page.None
	err := m.forEachUserPage(ctx, func(off page.Offset, buf []byte) bool {
		for i := 0; i < page.UsersPerPage; i++ {
			at := page.UserSlot(i)
			u := page.DecodeUser(buf, at)
			if u.AccountID != 0 && u.Name == name {
				target = off + page.Offset(at)
				return false
			}
		}
		return true
	})
	if err != nil {
		return err
	}
	if target == page.None {
		return ErrUserNotFound
	}

	buf, err := m.tx.Writable(ctx, target)
	if err != nil {
		return err
	}
	page.EncodeUser(buf, withinPage(target), page.User{})
	return nil
}
