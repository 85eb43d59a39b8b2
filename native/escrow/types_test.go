package escrow

import (
	"math/big"
	"strings"
	"testing"
)

func TestSanitizeListingRejectsInvalidAmounts(t *testing.T) {
	base := &Listing{
		AssetID:         1,
		PurchasePrice:   big.NewInt(10),
		RequiredDeposit: big.NewInt(5),
	}
	sanitized, err := SanitizeListing(base)
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if sanitized.BuyerFunds == nil || sanitized.LenderFunds == nil {
		t.Fatalf("expected nil amounts to be normalised")
	}
	if sanitized == base || sanitized.PurchasePrice == base.PurchasePrice {
		t.Fatalf("sanitize must return a copy")
	}

	negative := base.Clone()
	negative.LenderFunds = big.NewInt(-1)
	if _, err := SanitizeListing(negative); err == nil || !strings.Contains(err.Error(), "lender funds") {
		t.Fatalf("expected lender funds error, got %v", err)
	}

	inverted := base.Clone()
	inverted.RequiredDeposit = big.NewInt(11)
	if _, err := SanitizeListing(inverted); err == nil {
		t.Fatalf("expected deposit above price to fail")
	}
	if _, err := SanitizeListing(nil); err == nil {
		t.Fatalf("expected nil listing to fail")
	}
}

func TestListingDepositedSumsContributors(t *testing.T) {
	l := &Listing{BuyerFunds: big.NewInt(4), LenderFunds: big.NewInt(6)}
	if l.Deposited().Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("unexpected deposited %s", l.Deposited())
	}
	var missing *Listing
	if missing.Deposited().Sign() != 0 {
		t.Fatalf("nil listing must report zero")
	}
}

func TestRolesValidate(t *testing.T) {
	roles := Roles{Seller: newTestAddress(1), Inspector: newTestAddress(2)}
	if err := roles.Validate(); err == nil || !strings.Contains(err.Error(), "lender") {
		t.Fatalf("expected lender error, got %v", err)
	}
	roles.Lender = newTestAddress(3)
	if err := roles.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestCommentTargetVariants(t *testing.T) {
	single := SingleID(7)
	if single.IsList() || len(single.IDs()) != 1 || single.IDs()[0] != 7 {
		t.Fatalf("unexpected single target %+v", single)
	}
	list := IDList(3, 4, 5)
	if !list.IsList() {
		t.Fatalf("expected list target")
	}
	ids := list.IDs()
	ids[0] = 99
	if list.IDs()[0] != 3 {
		t.Fatalf("IDs must return a copy")
	}
}
