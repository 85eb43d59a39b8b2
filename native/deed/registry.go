package deed

import (
	"fmt"
	"strconv"

	"homeescrow/core/events"
	"homeescrow/core/types"
	"homeescrow/crypto"
	"homeescrow/native/common"
)

const (
	EventTypeMinted         = "deed.minted"
	EventTypeTransferred    = "deed.transferred"
	EventTypeApproved       = "deed.approved"
	EventTypeOperatorUpdate = "deed.operator_updated"
)

type registryState interface {
	DeedGet(id uint64) (*Deed, bool, error)
	DeedPut(*Deed) error
	DeedOperator(owner, operator [20]byte) (bool, error)
	DeedSetOperator(owner, operator [20]byte, approved bool) error
	DeedLastID() (uint64, error)
	DeedSetLastID(id uint64) error
}

type deedEvent struct {
	evt *types.Event
}

func (e deedEvent) EventType() string   { return e.evt.Type }
func (e deedEvent) Event() *types.Event { return e.evt }

// Registry owns deed state. Calls are not journaled here; the caller wraps
// them in the surrounding state transition.
type Registry struct {
	state   registryState
	address [20]byte
	emitter events.Emitter
	pauses  common.PauseView
}

// NewRegistry returns a registry whose address is derived from the module name.
func NewRegistry() *Registry {
	return &Registry{
		address: crypto.DeriveModuleAddress(ModuleName),
		emitter: events.NoopEmitter{},
	}
}

// SetState configures the state backend used by the registry.
func (r *Registry) SetState(state registryState) { r.state = state }

// SetPauses wires the module pause view consulted before each mutation.
func (r *Registry) SetPauses(p common.PauseView) { r.pauses = p }

// SetEmitter configures the event emitter. Nil resets to a no-op emitter.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// Address identifies the registry.
func (r *Registry) Address() [20]byte { return r.address }

func (r *Registry) emit(eventType string, attrs map[string]string) {
	r.emitter.Emit(deedEvent{evt: &types.Event{Type: eventType, Attributes: attrs}})
}

func (r *Registry) mutable() error {
	if r == nil || r.state == nil {
		return errNilState
	}
	return common.Guard(r.pauses, ModuleName)
}

func (r *Registry) load(id uint64) (*Deed, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	d, ok, err := r.state.DeedGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDeed, id)
	}
	return d, nil
}

// Mint creates the next deed and assigns it to owner. Ids start at 1.
func (r *Registry) Mint(owner [20]byte) (uint64, error) {
	if err := r.mutable(); err != nil {
		return 0, err
	}
	if owner == ([20]byte{}) {
		return 0, ErrZeroAddress
	}
	last, err := r.state.DeedLastID()
	if err != nil {
		return 0, err
	}
	id := last + 1
	if err := r.state.DeedPut(&Deed{ID: id, Owner: owner}); err != nil {
		return 0, err
	}
	if err := r.state.DeedSetLastID(id); err != nil {
		return 0, err
	}
	r.emit(EventTypeMinted, map[string]string{
		"id":    strconv.FormatUint(id, 10),
		"owner": crypto.FormatAccount(owner),
	})
	return id, nil
}

// OwnerOf returns the current owner of the deed.
func (r *Registry) OwnerOf(id uint64) ([20]byte, error) {
	d, err := r.load(id)
	if err != nil {
		return [20]byte{}, err
	}
	return d.Owner, nil
}

// GetApproved returns the single-token approval for the deed.
func (r *Registry) GetApproved(id uint64) ([20]byte, error) {
	d, err := r.load(id)
	if err != nil {
		return [20]byte{}, err
	}
	return d.Approved, nil
}

// IsApprovedForAll reports whether operator may move every deed of owner.
func (r *Registry) IsApprovedForAll(owner, operator [20]byte) (bool, error) {
	if r == nil || r.state == nil {
		return false, errNilState
	}
	return r.state.DeedOperator(owner, operator)
}

// Approve lets to move the deed once. The caller must be the owner or one of
// the owner's operators. Approving the zero address clears the approval.
func (r *Registry) Approve(caller, to [20]byte, id uint64) error {
	if err := r.mutable(); err != nil {
		return err
	}
	d, err := r.load(id)
	if err != nil {
		return err
	}
	if to == d.Owner {
		return ErrSelfApproval
	}
	if caller != d.Owner {
		operator, err := r.state.DeedOperator(d.Owner, caller)
		if err != nil {
			return err
		}
		if !operator {
			return ErrNotAuthorized
		}
	}
	d.Approved = to
	if err := r.state.DeedPut(d); err != nil {
		return err
	}
	r.emit(EventTypeApproved, map[string]string{
		"id":       strconv.FormatUint(id, 10),
		"owner":    crypto.FormatAccount(d.Owner),
		"approved": crypto.FormatAccount(to),
	})
	return nil
}

// SetApprovalForAll grants or revokes operator rights over all of owner's deeds.
func (r *Registry) SetApprovalForAll(owner, operator [20]byte, approved bool) error {
	if err := r.mutable(); err != nil {
		return err
	}
	if operator == ([20]byte{}) {
		return ErrZeroAddress
	}
	if operator == owner {
		return ErrSelfApproval
	}
	if err := r.state.DeedSetOperator(owner, operator, approved); err != nil {
		return err
	}
	r.emit(EventTypeOperatorUpdate, map[string]string{
		"owner":    crypto.FormatAccount(owner),
		"operator": crypto.FormatAccount(operator),
		"approved": strconv.FormatBool(approved),
	})
	return nil
}

// TransferFrom moves the deed from its owner to a new holder. The operator
// must be the owner, the approved address or an operator of the owner. The
// single-token approval is cleared on every transfer.
func (r *Registry) TransferFrom(operator, from, to [20]byte, id uint64) error {
	if err := r.mutable(); err != nil {
		return err
	}
	if to == ([20]byte{}) {
		return ErrZeroAddress
	}
	d, err := r.load(id)
	if err != nil {
		return err
	}
	if d.Owner != from {
		return ErrNotOwner
	}
	if operator != from && operator != d.Approved {
		allowed, err := r.state.DeedOperator(from, operator)
		if err != nil {
			return err
		}
		if !allowed {
			return ErrNotAuthorized
		}
	}
	d.Owner = to
	d.Approved = [20]byte{}
	if err := r.state.DeedPut(d); err != nil {
		return err
	}
	r.emit(EventTypeTransferred, map[string]string{
		"id":   strconv.FormatUint(id, 10),
		"from": crypto.FormatAccount(from),
		"to":   crypto.FormatAccount(to),
	})
	return nil
}
