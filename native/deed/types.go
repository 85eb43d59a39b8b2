// Package deed is the asset registry for escrowed property deeds. Each deed is
// a non-fungible token with a single owner, an optional approved address and
// per-owner operators, following ERC-721 transfer rules.
package deed

import "errors"

// ModuleName is the pause-guard key for the deed registry.
const ModuleName = "deed"

var (
	ErrUnknownDeed   = errors.New("deed: unknown deed")
	ErrNotOwner      = errors.New("deed: from is not the owner")
	ErrNotAuthorized = errors.New("deed: caller is not owner, approved or operator")
	ErrZeroAddress   = errors.New("deed: zero address")
	ErrSelfApproval  = errors.New("deed: approval to current owner")
	errNilState      = errors.New("deed registry: state not configured")
)

// Deed is the ownership record for a single token.
type Deed struct {
	ID       uint64
	Owner    [20]byte
	Approved [20]byte
}

// Clone returns a copy of the record.
func (d *Deed) Clone() *Deed {
	if d == nil {
		return nil
	}
	clone := *d
	return &clone
}
