package state

import (
	"homeescrow/native/deed"
)

type storedDeed struct {
	ID       uint64
	Owner    [20]byte
	Approved [20]byte
}

// DeedGet loads the deed with the given id.
func (m *Manager) DeedGet(id uint64) (*deed.Deed, bool, error) {
	var stored storedDeed
	ok, err := m.KVGet(DeedTokenKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &deed.Deed{ID: stored.ID, Owner: stored.Owner, Approved: stored.Approved}, true, nil
}

// DeedPut stores the deed record.
func (m *Manager) DeedPut(d *deed.Deed) error {
	return m.KVPut(DeedTokenKey(d.ID), storedDeed{ID: d.ID, Owner: d.Owner, Approved: d.Approved})
}

// DeedOperator reports whether operator may manage every deed of owner.
func (m *Manager) DeedOperator(owner, operator [20]byte) (bool, error) {
	var approved bool
	if _, err := m.KVGet(DeedOperatorKey(owner, operator), &approved); err != nil {
		return false, err
	}
	return approved, nil
}

// DeedSetOperator grants or revokes an operator.
func (m *Manager) DeedSetOperator(owner, operator [20]byte, approved bool) error {
	if !approved {
		return m.KVDelete(DeedOperatorKey(owner, operator))
	}
	return m.KVPut(DeedOperatorKey(owner, operator), true)
}

// DeedLastID returns the most recently minted deed id.
func (m *Manager) DeedLastID() (uint64, error) {
	var id uint64
	if _, err := m.KVGet(DeedLastIDKey(), &id); err != nil {
		return 0, err
	}
	return id, nil
}

// DeedSetLastID records the most recently minted deed id.
func (m *Manager) DeedSetLastID(id uint64) error {
	return m.KVPut(DeedLastIDKey(), id)
}
