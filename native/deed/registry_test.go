package deed

import (
	"bytes"
	"errors"
	"testing"

	"homeescrow/core/events"
	"homeescrow/core/types"
)

type operatorKey struct {
	owner    [20]byte
	operator [20]byte
}

type mockState struct {
	deeds     map[uint64]*Deed
	operators map[operatorKey]bool
	lastID    uint64
}

func newMockState() *mockState {
	return &mockState{
		deeds:     make(map[uint64]*Deed),
		operators: make(map[operatorKey]bool),
	}
}

func (m *mockState) DeedGet(id uint64) (*Deed, bool, error) {
	d, ok := m.deeds[id]
	if !ok {
		return nil, false, nil
	}
	return d.Clone(), true, nil
}

func (m *mockState) DeedPut(d *Deed) error {
	m.deeds[d.ID] = d.Clone()
	return nil
}

func (m *mockState) DeedOperator(owner, operator [20]byte) (bool, error) {
	return m.operators[operatorKey{owner, operator}], nil
}

func (m *mockState) DeedSetOperator(owner, operator [20]byte, approved bool) error {
	if approved {
		m.operators[operatorKey{owner, operator}] = true
	} else {
		delete(m.operators, operatorKey{owner, operator})
	}
	return nil
}

func (m *mockState) DeedLastID() (uint64, error) { return m.lastID, nil }

func (m *mockState) DeedSetLastID(id uint64) error {
	m.lastID = id
	return nil
}

type capturingEmitter struct {
	events []*types.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	if payload, ok := evt.(events.Payload); ok {
		c.events = append(c.events, payload.Event())
	}
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newTestRegistry() (*Registry, *capturingEmitter) {
	reg := NewRegistry()
	reg.SetState(newMockState())
	emitter := &capturingEmitter{}
	reg.SetEmitter(emitter)
	return reg, emitter
}

func TestMintAssignsSequentialIDs(t *testing.T) {
	reg, emitter := newTestRegistry()
	owner := newTestAddress(0x01)

	first, err := reg.Mint(owner)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	second, err := reg.Mint(owner)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if first != 1 || second != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first, second)
	}
	got, err := reg.OwnerOf(2)
	if err != nil || got != owner {
		t.Fatalf("unexpected owner %x err %v", got, err)
	}
	if len(emitter.events) != 2 || emitter.events[0].Type != EventTypeMinted {
		t.Fatalf("expected two mint events, got %+v", emitter.events)
	}
	if _, err := reg.Mint([20]byte{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
}

func TestTransferRequiresApproval(t *testing.T) {
	reg, _ := newTestRegistry()
	owner := newTestAddress(0x01)
	vault := newTestAddress(0x0A)
	buyer := newTestAddress(0x02)
	id, err := reg.Mint(owner)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := reg.TransferFrom(vault, owner, vault, id); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := reg.Approve(buyer, vault, id); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("non-owner approval must fail, got %v", err)
	}
	if err := reg.Approve(owner, vault, id); err != nil {
		t.Fatalf("approve: %v", err)
	}
	approved, _ := reg.GetApproved(id)
	if approved != vault {
		t.Fatalf("expected vault approval")
	}
	if err := reg.TransferFrom(vault, owner, vault, id); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	current, _ := reg.OwnerOf(id)
	if current != vault {
		t.Fatalf("expected vault ownership")
	}
	approved, _ = reg.GetApproved(id)
	if approved != ([20]byte{}) {
		t.Fatalf("approval must clear on transfer")
	}
	if err := reg.TransferFrom(vault, owner, buyer, id); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner for stale from, got %v", err)
	}
	if err := reg.TransferFrom(vault, vault, buyer, id); err != nil {
		t.Fatalf("owner transfer: %v", err)
	}
}

func TestOperatorMayTransferAndApprove(t *testing.T) {
	reg, _ := newTestRegistry()
	owner := newTestAddress(0x01)
	operator := newTestAddress(0x03)
	other := newTestAddress(0x04)
	id, _ := reg.Mint(owner)

	if err := reg.SetApprovalForAll(owner, operator, true); err != nil {
		t.Fatalf("set operator: %v", err)
	}
	ok, _ := reg.IsApprovedForAll(owner, operator)
	if !ok {
		t.Fatalf("expected operator approval")
	}
	if err := reg.Approve(operator, other, id); err != nil {
		t.Fatalf("operator approve: %v", err)
	}
	if err := reg.TransferFrom(operator, owner, other, id); err != nil {
		t.Fatalf("operator transfer: %v", err)
	}
	if err := reg.SetApprovalForAll(owner, owner, true); !errors.Is(err, ErrSelfApproval) {
		t.Fatalf("expected ErrSelfApproval, got %v", err)
	}
}

func TestUnknownDeed(t *testing.T) {
	reg, _ := newTestRegistry()
	if _, err := reg.OwnerOf(99); !errors.Is(err, ErrUnknownDeed) {
		t.Fatalf("expected ErrUnknownDeed, got %v", err)
	}
}
