package state

import (
	"bytes"
	"math/big"
	"testing"

	"homeescrow/core/types"
	"homeescrow/native/deed"
	"homeescrow/native/escrow"
	"homeescrow/storage"
)

func newTestManager(t *testing.T) (*Manager, storage.Database) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db), db
}

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func TestKeyFormats(t *testing.T) {
	listingKey := EscrowListingKey(7)
	expected := append([]byte("escrow/listing/"), 0, 0, 0, 0, 0, 0, 0, 7)
	if !bytes.Equal(listingKey, expected) {
		t.Fatalf("unexpected listing key: %x", listingKey)
	}
	if bytes.Equal(EscrowListingKey(7), EscrowCommentsKey(7)) {
		t.Fatalf("listing and comment keys must differ")
	}
	op := DeedOperatorKey(testAddress(1), testAddress(2))
	if len(op) != len("deed/operator/")+40 {
		t.Fatalf("unexpected operator key length %d", len(op))
	}
}

func TestSnapshotRevert(t *testing.T) {
	mgr, _ := newTestManager(t)
	addr := testAddress(0x01)

	if err := mgr.Credit(addr[:], big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	snap := mgr.Snapshot()
	if err := mgr.Credit(addr[:], big.NewInt(50)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := mgr.EscrowCredit(3, big.NewInt(9)); err != nil {
		t.Fatalf("escrow credit: %v", err)
	}
	mgr.RevertToSnapshot(snap)

	account, err := mgr.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected balance 100 after revert, got %s", account.Balance)
	}
	held, _ := mgr.EscrowBalance(3)
	if held.Sign() != 0 {
		t.Fatalf("expected vault credit to be reverted, got %s", held)
	}
}

func TestCommitAndDiscard(t *testing.T) {
	mgr, db := newTestManager(t)
	addr := testAddress(0x02)

	if err := mgr.Credit(addr[:], big.NewInt(10)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if mgr.Pending() != 0 {
		t.Fatalf("expected empty overlay after commit")
	}

	if err := mgr.Credit(addr[:], big.NewInt(5)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	mgr.Discard()

	reopened := NewManager(db)
	account, err := reopened.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Balance.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected committed balance 10, got %s", account.Balance)
	}
}

func TestAccountDefaults(t *testing.T) {
	mgr, _ := newTestManager(t)
	addr := testAddress(0x03)
	account, err := mgr.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Balance == nil || account.Balance.Sign() != 0 {
		t.Fatalf("expected zero balance for unknown account")
	}
	if err := mgr.PutAccount(addr[:], &types.Account{Balance: big.NewInt(-1)}); err == nil {
		t.Fatalf("expected negative balance to be rejected")
	}
	if _, err := mgr.GetAccount([]byte{0x01}); err == nil {
		t.Fatalf("expected short address to be rejected")
	}
}

func TestListingRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)
	listing := &escrow.Listing{
		AssetID:          4,
		Seller:           testAddress(0x0A),
		Buyer:            testAddress(0x0B),
		PurchasePrice:    big.NewInt(1000),
		RequiredDeposit:  big.NewInt(100),
		BuyerFunds:       big.NewInt(100),
		LenderFunds:      big.NewInt(0),
		Listed:           true,
		InspectionPassed: true,
		BuyerInspected:   true,
		Approvals:        escrow.Approvals{Buyer: true, Lender: true},
	}
	if err := mgr.ListingPut(listing); err != nil {
		t.Fatalf("listing put: %v", err)
	}
	stored, ok, err := mgr.ListingGet(4)
	if err != nil || !ok {
		t.Fatalf("listing get: ok=%v err=%v", ok, err)
	}
	if stored.Buyer != listing.Buyer || stored.Seller != listing.Seller {
		t.Fatalf("addresses mutated during round trip")
	}
	if stored.PurchasePrice.Cmp(big.NewInt(1000)) != 0 || stored.Deposited().Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected amounts: %+v", stored)
	}
	if !stored.Listed || !stored.InspectionPassed || !stored.BuyerInspected {
		t.Fatalf("flags lost during round trip")
	}
	if !stored.Approvals.Buyer || stored.Approvals.Seller || !stored.Approvals.Lender {
		t.Fatalf("unexpected approvals: %+v", stored.Approvals)
	}
	if _, ok, _ := mgr.ListingGet(5); ok {
		t.Fatalf("expected missing listing")
	}

	bad := listing.Clone()
	bad.RequiredDeposit = big.NewInt(2000)
	if err := mgr.ListingPut(bad); err == nil {
		t.Fatalf("expected deposit above price to be rejected")
	}
}

func TestListingComments(t *testing.T) {
	mgr, _ := newTestManager(t)
	if err := mgr.ListingSetComments(1, "roof needs work"); err != nil {
		t.Fatalf("set comments: %v", err)
	}
	text, err := mgr.ListingComments(1)
	if err != nil || text != "roof needs work" {
		t.Fatalf("unexpected comments %q err %v", text, err)
	}
	if err := mgr.ListingSetComments(1, ""); err != nil {
		t.Fatalf("clear comments: %v", err)
	}
	text, _ = mgr.ListingComments(1)
	if text != "" {
		t.Fatalf("expected cleared comments, got %q", text)
	}
}

func TestEscrowCreditDebit(t *testing.T) {
	mgr, _ := newTestManager(t)

	if err := mgr.EscrowCredit(1, big.NewInt(5)); err != nil {
		t.Fatalf("credit #1 failed: %v", err)
	}
	if err := mgr.EscrowCredit(1, big.NewInt(7)); err != nil {
		t.Fatalf("credit #2 failed: %v", err)
	}
	if err := mgr.EscrowCredit(2, big.NewInt(3)); err != nil {
		t.Fatalf("credit other asset failed: %v", err)
	}
	if err := mgr.EscrowDebit(1, big.NewInt(13)); err == nil {
		t.Fatalf("expected debit to fail when exceeding balance")
	}
	if err := mgr.EscrowDebit(1, big.NewInt(12)); err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if err := mgr.EscrowDebit(1, big.NewInt(1)); err == nil {
		t.Fatalf("expected debit on empty balance to fail")
	}
	if err := mgr.EscrowCredit(1, big.NewInt(-1)); err == nil {
		t.Fatalf("expected negative credit to fail")
	}
	other, _ := mgr.EscrowBalance(2)
	if other.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("debits leaked across assets: %s", other)
	}
}

func TestDeedState(t *testing.T) {
	mgr, _ := newTestManager(t)
	owner := testAddress(0x01)
	operator := testAddress(0x02)

	if err := mgr.DeedPut(&deed.Deed{ID: 9, Owner: owner}); err != nil {
		t.Fatalf("deed put: %v", err)
	}
	d, ok, err := mgr.DeedGet(9)
	if err != nil || !ok || d.Owner != owner {
		t.Fatalf("unexpected deed %+v ok=%v err=%v", d, ok, err)
	}
	if err := mgr.DeedSetOperator(owner, operator, true); err != nil {
		t.Fatalf("set operator: %v", err)
	}
	approved, _ := mgr.DeedOperator(owner, operator)
	if !approved {
		t.Fatalf("expected operator grant")
	}
	if err := mgr.DeedSetOperator(owner, operator, false); err != nil {
		t.Fatalf("revoke operator: %v", err)
	}
	approved, _ = mgr.DeedOperator(owner, operator)
	if approved {
		t.Fatalf("expected operator revoked")
	}
	if err := mgr.DeedSetLastID(9); err != nil {
		t.Fatalf("set last id: %v", err)
	}
	last, _ := mgr.DeedLastID()
	if last != 9 {
		t.Fatalf("unexpected last id %d", last)
	}
}
