package escrow

import (
	"fmt"
	"math/big"

	"homeescrow/crypto"
)

// Approvals tracks the consent of each party to a listing.
type Approvals struct {
	Buyer  bool
	Seller bool
	Lender bool
}

// Complete reports whether all three parties have approved.
func (a Approvals) Complete() bool {
	return a.Buyer && a.Seller && a.Lender
}

// Listing is the per-asset escrow record. Funds held for the listing are split
// by contributor so cancellation can return each share to whoever sent it.
type Listing struct {
	AssetID          uint64
	Seller           [20]byte
	Buyer            [20]byte
	PurchasePrice    *big.Int
	RequiredDeposit  *big.Int
	BuyerFunds       *big.Int
	LenderFunds      *big.Int
	Listed           bool
	InspectionPassed bool
	BuyerInspected   bool
	Approvals        Approvals
}

// Deposited returns the total value held against the listing.
func (l *Listing) Deposited() *big.Int {
	if l == nil {
		return big.NewInt(0)
	}
	total := cloneBigInt(l.BuyerFunds)
	return total.Add(total, cloneBigInt(l.LenderFunds))
}

// Clone returns a deep copy of the listing so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	clone.PurchasePrice = cloneBigInt(l.PurchasePrice)
	clone.RequiredDeposit = cloneBigInt(l.RequiredDeposit)
	clone.BuyerFunds = cloneBigInt(l.BuyerFunds)
	clone.LenderFunds = cloneBigInt(l.LenderFunds)
	return &clone
}

// zeroListing returns the reset state used after cancellation.
func zeroListing(id uint64) *Listing {
	return &Listing{
		AssetID:         id,
		PurchasePrice:   big.NewInt(0),
		RequiredDeposit: big.NewInt(0),
		BuyerFunds:      big.NewInt(0),
		LenderFunds:     big.NewInt(0),
	}
}

// SanitizeListing validates the supplied listing and returns a normalised
// clone with non-nil amounts. The original value is not mutated.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("nil listing")
	}
	clone := l.Clone()
	amounts := []struct {
		name  string
		value *big.Int
	}{
		{"purchase price", clone.PurchasePrice},
		{"required deposit", clone.RequiredDeposit},
		{"buyer funds", clone.BuyerFunds},
		{"lender funds", clone.LenderFunds},
	}
	for _, amt := range amounts {
		if amt.value.Sign() < 0 {
			return nil, fmt.Errorf("listing %d: %s must be non-negative", clone.AssetID, amt.name)
		}
	}
	if clone.RequiredDeposit.Cmp(clone.PurchasePrice) > 0 {
		return nil, fmt.Errorf("listing %d: required deposit exceeds purchase price", clone.AssetID)
	}
	return clone, nil
}

// Roles are the engine-wide parties. The buyer varies per listing.
type Roles struct {
	Seller    [20]byte
	Inspector [20]byte
	Lender    [20]byte
}

// Validate ensures every role is configured.
func (r Roles) Validate() error {
	if r.Seller == ([20]byte{}) {
		return fmt.Errorf("escrow roles: seller not configured")
	}
	if r.Inspector == ([20]byte{}) {
		return fmt.Errorf("escrow roles: inspector not configured")
	}
	if r.Lender == ([20]byte{}) {
		return fmt.Errorf("escrow roles: lender not configured")
	}
	vault := VaultAddress()
	if r.Seller == vault || r.Inspector == vault || r.Lender == vault {
		return fmt.Errorf("escrow roles: the vault cannot hold a role")
	}
	return nil
}

// VaultAddress returns the module account that custodies escrowed deeds and
// value. It never acts as a party to a listing.
func VaultAddress() [20]byte {
	return crypto.DeriveModuleAddress(ModuleName)
}

// Call is the envelope the execution environment attaches to every
// operation: who is invoking it and how much value accompanies the call.
type Call struct {
	Caller [20]byte
	Value  *big.Int
}

// value returns a copy of the attached value, zero when absent.
func (c Call) value() *big.Int {
	return cloneBigInt(c.Value)
}

type targetKind uint8

const (
	targetSingle targetKind = iota
	targetList
)

// CommentTarget selects the assets that receive an inspection comment: either
// a single asset id or an ordered list of ids.
type CommentTarget struct {
	kind targetKind
	ids  []uint64
}

// SingleID targets exactly one asset.
func SingleID(id uint64) CommentTarget {
	return CommentTarget{kind: targetSingle, ids: []uint64{id}}
}

// IDList targets every listed asset id in order.
func IDList(ids ...uint64) CommentTarget {
	return CommentTarget{kind: targetList, ids: append([]uint64(nil), ids...)}
}

// IsList reports whether the target was built from a list of ids.
func (t CommentTarget) IsList() bool { return t.kind == targetList }

// IDs returns a copy of the targeted ids.
func (t CommentTarget) IDs() []uint64 { return append([]uint64(nil), t.ids...) }

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
