package state

import (
	"fmt"
	"math/big"

	"homeescrow/native/escrow"
)

type storedListing struct {
	AssetID          uint64
	Seller           [20]byte
	Buyer            [20]byte
	PurchasePrice    *big.Int
	RequiredDeposit  *big.Int
	BuyerFunds       *big.Int
	LenderFunds      *big.Int
	Listed           bool
	InspectionPassed bool
	BuyerApproved    bool
	SellerApproved   bool
	LenderApproved   bool
	BuyerInspected   bool `rlp:"optional"`
}

func newStoredListing(l *escrow.Listing) *storedListing {
	return &storedListing{
		AssetID:          l.AssetID,
		Seller:           l.Seller,
		Buyer:            l.Buyer,
		PurchasePrice:    l.PurchasePrice,
		RequiredDeposit:  l.RequiredDeposit,
		BuyerFunds:       l.BuyerFunds,
		LenderFunds:      l.LenderFunds,
		Listed:           l.Listed,
		InspectionPassed: l.InspectionPassed,
		BuyerApproved:    l.Approvals.Buyer,
		SellerApproved:   l.Approvals.Seller,
		LenderApproved:   l.Approvals.Lender,
		BuyerInspected:   l.BuyerInspected,
	}
}

func (s *storedListing) toListing() *escrow.Listing {
	return &escrow.Listing{
		AssetID:          s.AssetID,
		Seller:           s.Seller,
		Buyer:            s.Buyer,
		PurchasePrice:    s.PurchasePrice,
		RequiredDeposit:  s.RequiredDeposit,
		BuyerFunds:       s.BuyerFunds,
		LenderFunds:      s.LenderFunds,
		Listed:           s.Listed,
		InspectionPassed: s.InspectionPassed,
		BuyerInspected:   s.BuyerInspected,
		Approvals: escrow.Approvals{
			Buyer:  s.BuyerApproved,
			Seller: s.SellerApproved,
			Lender: s.LenderApproved,
		},
	}
}

// ListingPut stores the listing after validating it.
func (m *Manager) ListingPut(l *escrow.Listing) error {
	sanitized, err := escrow.SanitizeListing(l)
	if err != nil {
		return err
	}
	return m.KVPut(EscrowListingKey(sanitized.AssetID), newStoredListing(sanitized))
}

// ListingGet loads the listing for id. The boolean reports whether a record
// exists.
func (m *Manager) ListingGet(id uint64) (*escrow.Listing, bool, error) {
	var stored storedListing
	ok, err := m.KVGet(EscrowListingKey(id), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	listing, err := escrow.SanitizeListing(stored.toListing())
	if err != nil {
		return nil, false, err
	}
	return listing, true, nil
}

// ListingComments returns the inspection comments recorded for id.
func (m *Manager) ListingComments(id uint64) (string, error) {
	var text string
	if _, err := m.KVGet(EscrowCommentsKey(id), &text); err != nil {
		return "", err
	}
	return text, nil
}

// ListingSetComments replaces the inspection comments for id. Empty text
// removes the entry.
func (m *Manager) ListingSetComments(id uint64, text string) error {
	if text == "" {
		return m.KVDelete(EscrowCommentsKey(id))
	}
	return m.KVPut(EscrowCommentsKey(id), text)
}

// EscrowBalance returns the value the vault holds for id.
func (m *Manager) EscrowBalance(id uint64) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := m.KVGet(EscrowVaultKey(id), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// EscrowCredit increases the value held for id.
func (m *Manager) EscrowCredit(id uint64, amt *big.Int) error {
	if amt == nil || amt.Sign() <= 0 {
		return fmt.Errorf("escrow vault: credit amount must be positive")
	}
	balance, err := m.EscrowBalance(id)
	if err != nil {
		return err
	}
	balance.Add(balance, amt)
	return m.KVPut(EscrowVaultKey(id), balance)
}

// EscrowDebit decreases the value held for id. Debiting more than is held
// fails and leaves the balance untouched.
func (m *Manager) EscrowDebit(id uint64, amt *big.Int) error {
	if amt == nil || amt.Sign() <= 0 {
		return fmt.Errorf("escrow vault: debit amount must be positive")
	}
	balance, err := m.EscrowBalance(id)
	if err != nil {
		return err
	}
	if balance.Cmp(amt) < 0 {
		return fmt.Errorf("escrow vault: asset %d holds %s, cannot debit %s", id, balance, amt)
	}
	balance.Sub(balance, amt)
	if balance.Sign() == 0 {
		return m.KVDelete(EscrowVaultKey(id))
	}
	return m.KVPut(EscrowVaultKey(id), balance)
}
