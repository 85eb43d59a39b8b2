package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"homeescrow/crypto"
	"homeescrow/native/escrow"
)

func TestEscrowFullSaleOverRPC(t *testing.T) {
	env := newTestEnv(t)
	id := env.mintListable()

	listing := env.list(id, "10", "5")
	require.True(t, listing.Listed)
	require.Equal(t, buyer, listing.Buyer)
	require.Equal(t, "5", listing.EscrowAmount)

	env.mustCall(nil, "escrow_depositEarnest", withValue(buyer, id, "5"))
	env.mustCall(nil, "escrow_updateInspection", map[string]interface{}{"caller": inspector, "assetId": id, "passed": true})
	for _, party := range []string{buyer, seller, lender} {
		env.mustCall(nil, "escrow_approveSale", actor(party, id))
	}
	env.mustCall(&listing, "escrow_fundListing", withValue(lender, id, "5"))
	require.Equal(t, "10", listing.Deposited)
	require.True(t, listing.Approvals.Buyer && listing.Approvals.Seller && listing.Approvals.Lender)

	var balance map[string]string
	env.mustCall(&balance, "escrow_getBalance")
	require.Equal(t, "10", balance["balance"])

	env.mustCall(&listing, "escrow_finalizeSale", actor(seller, id))
	require.False(t, listing.Listed)
	require.Equal(t, "0", listing.Deposited)

	var owner map[string]string
	env.mustCall(&owner, "deed_ownerOf", map[string]interface{}{"assetId": id})
	require.Equal(t, buyer, owner["owner"])

	var account BalanceResponse
	env.mustCall(&account, "account_getBalance", seller)
	require.Equal(t, "10", account.Balance)
	env.mustCall(&account, "account_getBalance", buyer)
	require.Equal(t, "995", account.Balance)
}

func TestEscrowErrorCodes(t *testing.T) {
	env := newTestEnv(t)
	id := env.mintListable()

	reply := env.call("escrow_cancelListing", actor(seller, id))
	require.NotNil(t, reply.err)
	require.Equal(t, codeEscrowNotFound, reply.err.Code)
	require.Equal(t, http.StatusNotFound, reply.status)

	env.list(id, "10", "5")

	reply = env.call("escrow_cancelListing", actor(stranger, id))
	require.Equal(t, codeEscrowForbidden, reply.err.Code)
	require.Equal(t, http.StatusForbidden, reply.status)

	reply = env.call("escrow_finalizeSale", actor(seller, id))
	require.Equal(t, codeEscrowConflict, reply.err.Code)
	require.Contains(t, reply.err.Data, escrow.ErrInspectionNotPassed.Error())

	reply = env.call("escrow_cancelSale", actor(buyer, id))
	require.Equal(t, codeEscrowConflict, reply.err.Code)
	require.Contains(t, reply.err.Data, escrow.ErrNoDeposit.Error())

	reply = env.call("escrow_depositEarnest", withValue(buyer, id, "0"))
	require.Equal(t, codeEscrowInvalidParams, reply.err.Code)

	reply = env.call("escrow_list", map[string]interface{}{"caller": "not-bech32", "assetId": id, "buyer": buyer, "purchasePrice": "1", "escrowAmount": "1"})
	require.Equal(t, codeEscrowInvalidParams, reply.err.Code)
	require.Equal(t, "invalid_params", reply.err.Message)

	huge := new(big.Int).Lsh(big.NewInt(1), 256).String()
	reply = env.call("escrow_depositEarnest", withValue(buyer, id, huge))
	require.Equal(t, codeEscrowInvalidParams, reply.err.Code)
	require.Contains(t, reply.err.Data, "256 bits")

	reply = env.call("escrow_getListing")
	require.Equal(t, codeEscrowInvalidParams, reply.err.Code)
}

func TestEscrowCancelListingResets(t *testing.T) {
	env := newTestEnv(t)
	id := env.mintListable()
	env.list(id, "10", "5")
	env.mustCall(nil, "escrow_depositEarnest", withValue(buyer, id, "3"))

	var listing ListingResult
	env.mustCall(&listing, "escrow_cancelListing", actor(seller, id))
	require.False(t, listing.Listed)
	require.Empty(t, listing.Buyer)
	require.Equal(t, "0", listing.PurchasePrice)
	require.Equal(t, "0", listing.EscrowAmount)
	require.False(t, listing.Approvals.Buyer)

	var account BalanceResponse
	env.mustCall(&account, "account_getBalance", buyer)
	require.Equal(t, "1000", account.Balance)

	reply := env.call("escrow_cancelListing", actor(seller, id))
	require.Equal(t, codeEscrowNotFound, reply.err.Code)
}

func TestEscrowInspectionComments(t *testing.T) {
	env := newTestEnv(t)

	reply := env.call("escrow_setInspectionComments", map[string]interface{}{"caller": buyer, "assetIds": []uint64{3, 4, 5}, "comments": "termites"})
	require.Equal(t, codeEscrowForbidden, reply.err.Code)

	reply = env.call("escrow_setInspectionComments", map[string]interface{}{"caller": inspector, "comments": "termites"})
	require.Equal(t, codeEscrowInvalidParams, reply.err.Code)

	env.mustCall(nil, "escrow_setInspectionComments", map[string]interface{}{"caller": inspector, "assetIds": []uint64{3, 4, 5}, "comments": "termites"})
	env.mustCall(nil, "escrow_setInspectionComments", map[string]interface{}{"caller": inspector, "assetId": 9, "comments": "roof ok"})

	var listing ListingResult
	for _, id := range []uint64{3, 4, 5} {
		env.mustCall(&listing, "escrow_getListing", map[string]interface{}{"assetId": id})
		require.Equal(t, "termites", listing.Comments)
		require.False(t, listing.Listed)
	}
	env.mustCall(&listing, "escrow_getListing", map[string]interface{}{"assetId": 9})
	require.Equal(t, "roof ok", listing.Comments)
}

func TestEscrowReadAccessors(t *testing.T) {
	env := newTestEnv(t)
	id := env.mintListable()
	env.list(id, "10", "5")
	env.mustCall(nil, "escrow_approveSale", actor(buyer, id))

	var approval map[string]bool
	env.mustCall(&approval, "escrow_getApproval", map[string]interface{}{"assetId": id, "address": buyer})
	require.True(t, approval["approved"])
	env.mustCall(&approval, "escrow_getApproval", map[string]interface{}{"assetId": id, "address": lender})
	require.False(t, approval["approved"])

	var roles RolesResult
	env.mustCall(&roles, "escrow_getRoles")
	require.Equal(t, seller, roles.Seller)
	require.Equal(t, inspector, roles.Inspector)
	require.Equal(t, lender, roles.Lender)
	require.NotEmpty(t, roles.Vault)
	require.NotEqual(t, roles.Vault, roles.DeedRegistry)

	var owner map[string]string
	env.mustCall(&owner, "deed_ownerOf", map[string]interface{}{"assetId": id})
	require.Equal(t, roles.Vault, owner["owner"])

	reply := env.call("deed_ownerOf", map[string]interface{}{"assetId": 999})
	require.Equal(t, codeEscrowNotFound, reply.err.Code)
}

func TestEscrowListEvents(t *testing.T) {
	env := newTestEnv(t)
	id := env.mintListable()
	env.list(id, "10", "5")
	env.mustCall(nil, "escrow_depositEarnest", withValue(buyer, id, "5"))
	// rejected calls leave no trace in the log
	_ = env.call("escrow_finalizeSale", actor(seller, id))

	var page escrowEventsResult
	env.mustCall(&page, "escrow_listEvents", map[string]interface{}{"assetId": id, "type": escrow.EventTypeListed})
	require.Len(t, page.Events, 1)
	require.Equal(t, "10", page.Events[0].Attrs["purchasePrice"])

	env.mustCall(&page, "escrow_listEvents", map[string]interface{}{"type": escrow.EventTypeSaleFinalized})
	require.Empty(t, page.Events)

	env.mustCall(&page, "escrow_listEvents", map[string]interface{}{"limit": 2})
	require.Len(t, page.Events, 2)
	next := page.Next
	env.mustCall(&page, "escrow_listEvents", map[string]interface{}{"after": next})
	require.NotEmpty(t, page.Events)
	require.Greater(t, page.Events[0].Seq, next)
}

func TestEscrowMutationsRequireAuth(t *testing.T) {
	env := newTestEnv(t)
	id := env.mintListable()

	reply := env.callWith("", "escrow_list", map[string]interface{}{"caller": seller, "assetId": id, "buyer": buyer, "purchasePrice": "10", "escrowAmount": "5"})
	require.Equal(t, http.StatusUnauthorized, reply.status)
	require.Equal(t, codeUnauthorized, reply.err.Code)

	reply = env.callWith("wrong", "deed_mint", map[string]interface{}{"owner": seller})
	require.Equal(t, codeUnauthorized, reply.err.Code)

	// reads stay open
	reply = env.callWith("", "escrow_getListing", map[string]interface{}{"assetId": id})
	require.Nil(t, reply.err)
	var listing ListingResult
	require.NoError(t, json.Unmarshal(reply.result, &listing))
	require.False(t, listing.Listed)
}

func TestEscrowRejectsModuleAccountParties(t *testing.T) {
	env := newTestEnv(t)
	id := env.mintListable()
	vault := env.node.VaultAddress()
	vaultPrefixed := crypto.NewAddress(crypto.VaultPrefix, vault[:]).String()
	vaultAsAccount := crypto.FormatAccount(vault)

	for _, who := range []string{vaultPrefixed, vaultAsAccount} {
		reply := env.call("escrow_list", map[string]interface{}{"caller": seller, "assetId": id, "buyer": who, "purchasePrice": "5", "escrowAmount": "5"})
		require.NotNil(t, reply.err)
		require.Equal(t, codeEscrowInvalidParams, reply.err.Code)

		reply = env.call("escrow_depositEarnest", withValue(who, id, "5"))
		require.Equal(t, codeEscrowInvalidParams, reply.err.Code)
	}
	registry := env.node.DeedRegistryAddress()
	reply := env.call("deed_mint", map[string]interface{}{"owner": crypto.FormatAccount(registry)})
	require.Equal(t, codeEscrowInvalidParams, reply.err.Code)

	var listing ListingResult
	env.mustCall(&listing, "escrow_getListing", map[string]interface{}{"assetId": id})
	require.False(t, listing.Listed)
	var balance map[string]string
	env.mustCall(&balance, "escrow_getBalance")
	require.Equal(t, "0", balance["balance"])
}

func TestEscrowMarkInspected(t *testing.T) {
	env := newTestEnv(t)
	id := env.mintListable()
	env.list(id, "10", "5")

	reply := env.call("escrow_markInspected", actor(inspector, id))
	require.Equal(t, codeEscrowForbidden, reply.err.Code)
	reply = env.call("escrow_markInspected", actor(buyer, id+1))
	require.Equal(t, codeEscrowNotFound, reply.err.Code)
	reply = env.callWith("", "escrow_markInspected", actor(buyer, id))
	require.Equal(t, codeUnauthorized, reply.err.Code)

	var listing ListingResult
	env.mustCall(&listing, "escrow_markInspected", actor(buyer, id))
	require.True(t, listing.BuyerInspected)
	require.False(t, listing.InspectionPassed)

	env.mustCall(&listing, "escrow_cancelListing", actor(seller, id))
	require.False(t, listing.BuyerInspected)
}
