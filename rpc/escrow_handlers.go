package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"strings"

	"github.com/holiman/uint256"

	"homeescrow/core"
	"homeescrow/crypto"
	"homeescrow/eventlog"
	"homeescrow/native/common"
	"homeescrow/native/deed"
	"homeescrow/native/escrow"
)

const (
	codeEscrowInvalidParams = -32021
	codeEscrowNotFound      = -32022
	codeEscrowForbidden     = -32023
	codeEscrowConflict      = -32024
	codeEscrowInternal      = -32025
)

type escrowListParams struct {
	Caller        string `json:"caller"`
	AssetID       uint64 `json:"assetId"`
	Buyer         string `json:"buyer"`
	PurchasePrice string `json:"purchasePrice"`
	EscrowAmount  string `json:"escrowAmount"`
}

type escrowActorParams struct {
	Caller  string `json:"caller"`
	AssetID uint64 `json:"assetId"`
}

type escrowValueParams struct {
	Caller  string `json:"caller"`
	AssetID uint64 `json:"assetId"`
	Value   string `json:"value"`
}

type escrowInspectionParams struct {
	Caller  string `json:"caller"`
	AssetID uint64 `json:"assetId"`
	Passed  bool   `json:"passed"`
}

// escrowCommentsParams takes either a single assetId or a list in assetIds.
type escrowCommentsParams struct {
	Caller   string   `json:"caller"`
	AssetID  *uint64  `json:"assetId,omitempty"`
	AssetIDs []uint64 `json:"assetIds,omitempty"`
	Comments string   `json:"comments"`
}

type escrowAssetParams struct {
	AssetID uint64 `json:"assetId"`
}

type escrowApprovalParams struct {
	AssetID uint64 `json:"assetId"`
	Address string `json:"address"`
}

type escrowEventsParams struct {
	Type    string  `json:"type,omitempty"`
	AssetID *uint64 `json:"assetId,omitempty"`
	After   uint64  `json:"after,omitempty"`
	Limit   int     `json:"limit,omitempty"`
}

type escrowEventsResult struct {
	Events []eventlog.Entry `json:"events"`
	Next   uint64           `json:"next"`
}

type okResult struct {
	OK bool `json:"ok"`
}

func decodeSingleParam(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", "exactly one parameter object expected")
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return false
	}
	return true
}

func invalidParams(w http.ResponseWriter, req *RPCRequest, err error) {
	writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
}

func (s *Server) handleEscrowList(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowListParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := s.parseParticipant(params.Caller)
	if err != nil {
		invalidParams(w, req, fmt.Errorf("caller: %w", err))
		return
	}
	buyer, err := s.parseParticipant(params.Buyer)
	if err != nil {
		invalidParams(w, req, fmt.Errorf("buyer: %w", err))
		return
	}
	price, err := parseNonNegativeBigInt(params.PurchasePrice)
	if err != nil {
		invalidParams(w, req, fmt.Errorf("purchasePrice: %w", err))
		return
	}
	deposit, err := parseNonNegativeBigInt(params.EscrowAmount)
	if err != nil {
		invalidParams(w, req, fmt.Errorf("escrowAmount: %w", err))
		return
	}
	if !s.consumeQuota(w, req, s.escrowQuota, caller, 0) {
		return
	}
	if err := s.node.EscrowList(escrow.Call{Caller: caller}, params.AssetID, buyer, price, deposit); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	s.writeListing(w, req, params.AssetID)
}

// actorCall decodes the common {caller, assetId} shape and charges the quota.
func (s *Server) actorCall(w http.ResponseWriter, req *RPCRequest) (escrow.Call, uint64, bool) {
	var params escrowActorParams
	if !decodeSingleParam(w, req, &params) {
		return escrow.Call{}, 0, false
	}
	caller, err := s.parseParticipant(params.Caller)
	if err != nil {
		invalidParams(w, req, fmt.Errorf("caller: %w", err))
		return escrow.Call{}, 0, false
	}
	if !s.consumeQuota(w, req, s.escrowQuota, caller, 0) {
		return escrow.Call{}, 0, false
	}
	return escrow.Call{Caller: caller}, params.AssetID, true
}

func (s *Server) handleEscrowCancelListing(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	call, id, ok := s.actorCall(w, req)
	if !ok {
		return
	}
	if err := s.node.EscrowCancelListing(call, id); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	s.writeListing(w, req, id)
}

func (s *Server) handleEscrowApproveSale(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	call, id, ok := s.actorCall(w, req)
	if !ok {
		return
	}
	if err := s.node.EscrowApproveSale(call, id); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	s.writeListing(w, req, id)
}

func (s *Server) handleEscrowFinalizeSale(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	call, id, ok := s.actorCall(w, req)
	if !ok {
		return
	}
	if err := s.node.EscrowFinalizeSale(call, id); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	s.writeListing(w, req, id)
}

func (s *Server) handleEscrowCancelSale(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	call, id, ok := s.actorCall(w, req)
	if !ok {
		return
	}
	if err := s.node.EscrowCancelSale(call, id); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	s.writeListing(w, req, id)
}

// valueCall decodes {caller, assetId, value}; value is the amount attached to
// the call and counts against the caller's value quota.
func (s *Server) valueCall(w http.ResponseWriter, req *RPCRequest) (escrow.Call, uint64, bool) {
	var params escrowValueParams
	if !decodeSingleParam(w, req, &params) {
		return escrow.Call{}, 0, false
	}
	caller, err := s.parseParticipant(params.Caller)
	if err != nil {
		invalidParams(w, req, fmt.Errorf("caller: %w", err))
		return escrow.Call{}, 0, false
	}
	value, err := parsePositiveBigInt(params.Value)
	if err != nil {
		invalidParams(w, req, fmt.Errorf("value: %w", err))
		return escrow.Call{}, 0, false
	}
	charged := uint64(math.MaxUint64)
	if value.IsUint64() {
		charged = value.Uint64()
	}
	if !s.consumeQuota(w, req, s.escrowQuota, caller, charged) {
		return escrow.Call{}, 0, false
	}
	return escrow.Call{Caller: caller, Value: value}, params.AssetID, true
}

func (s *Server) handleEscrowDepositEarnest(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	call, id, ok := s.valueCall(w, req)
	if !ok {
		return
	}
	if err := s.node.EscrowDepositEarnest(call, id); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	s.writeListing(w, req, id)
}

func (s *Server) handleEscrowFundListing(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	call, id, ok := s.valueCall(w, req)
	if !ok {
		return
	}
	if err := s.node.EscrowFundListing(call, id); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	s.writeListing(w, req, id)
}

func (s *Server) handleEscrowMarkInspected(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	call, id, ok := s.actorCall(w, req)
	if !ok {
		return
	}
	if err := s.node.EscrowMarkInspected(call, id); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	s.writeListing(w, req, id)
}

func (s *Server) handleEscrowUpdateInspection(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowInspectionParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := s.parseParticipant(params.Caller)
	if err != nil {
		invalidParams(w, req, fmt.Errorf("caller: %w", err))
		return
	}
	if !s.consumeQuota(w, req, s.escrowQuota, caller, 0) {
		return
	}
	if err := s.node.EscrowUpdateInspection(escrow.Call{Caller: caller}, params.AssetID, params.Passed); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	s.writeListing(w, req, params.AssetID)
}

func (s *Server) handleEscrowSetInspectionComments(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowCommentsParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := s.parseParticipant(params.Caller)
	if err != nil {
		invalidParams(w, req, fmt.Errorf("caller: %w", err))
		return
	}
	var target escrow.CommentTarget
	switch {
	case params.AssetID != nil && len(params.AssetIDs) > 0:
		invalidParams(w, req, errors.New("assetId and assetIds are mutually exclusive"))
		return
	case params.AssetID != nil:
		target = escrow.SingleID(*params.AssetID)
	case len(params.AssetIDs) > 0:
		target = escrow.IDList(params.AssetIDs...)
	default:
		invalidParams(w, req, errors.New("assetId or assetIds required"))
		return
	}
	if !s.consumeQuota(w, req, s.escrowQuota, caller, 0) {
		return
	}
	if err := s.node.EscrowRecordComments(escrow.Call{Caller: caller}, target, params.Comments); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleEscrowGetListing(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowAssetParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	s.writeListing(w, req, params.AssetID)
}

func (s *Server) handleEscrowGetApproval(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowApprovalParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	who, err := parseBech32Address(params.Address)
	if err != nil {
		invalidParams(w, req, fmt.Errorf("address: %w", err))
		return
	}
	writeResult(w, req.ID, map[string]bool{"approved": s.node.EscrowApproval(params.AssetID, who)})
}

func (s *Server) handleEscrowGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, map[string]string{"balance": amountString(s.node.EscrowBalance())})
}

func (s *Server) handleEscrowGetRoles(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	roles := s.node.EscrowRoles()
	vault := s.node.VaultAddress()
	registry := s.node.DeedRegistryAddress()
	writeResult(w, req.ID, RolesResult{
		Seller:       crypto.FormatAccount(roles.Seller),
		Inspector:    crypto.FormatAccount(roles.Inspector),
		Lender:       crypto.FormatAccount(roles.Lender),
		Vault:        crypto.NewAddress(crypto.VaultPrefix, vault[:]).String(),
		DeedRegistry: crypto.NewAddress(crypto.VaultPrefix, registry[:]).String(),
	})
}

func (s *Server) handleEscrowListEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "event log unavailable", nil)
		return
	}
	var params escrowEventsParams
	if len(req.Params) > 0 {
		if !decodeSingleParam(w, req, &params) {
			return
		}
	}
	if params.Limit < 0 {
		invalidParams(w, req, errors.New("limit must not be negative"))
		return
	}
	entries, err := s.events.List(r.Context(), eventlog.Filter{
		Type:    strings.TrimSpace(params.Type),
		AssetID: params.AssetID,
		After:   params.After,
		Limit:   params.Limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeEscrowInternal, "internal_error", err.Error())
		return
	}
	next := params.After
	if len(entries) > 0 {
		next = entries[len(entries)-1].Seq
	}
	writeResult(w, req.ID, escrowEventsResult{Events: entries, Next: next})
}

func (s *Server) writeListing(w http.ResponseWriter, req *RPCRequest, id uint64) {
	view, err := s.node.EscrowGet(id)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatListing(view))
}

func formatListing(view *core.EscrowView) ListingResult {
	l := view.Listing
	return ListingResult{
		AssetID:          l.AssetID,
		Listed:           l.Listed,
		Seller:           crypto.FormatAccount(l.Seller),
		Buyer:            crypto.FormatAccount(l.Buyer),
		PurchasePrice:    amountString(l.PurchasePrice),
		EscrowAmount:     amountString(l.RequiredDeposit),
		Deposited:        amountString(l.Deposited()),
		BuyerFunds:       amountString(l.BuyerFunds),
		LenderFunds:      amountString(l.LenderFunds),
		InspectionPassed: l.InspectionPassed,
		BuyerInspected:   l.BuyerInspected,
		Comments:         view.Comments,
		Approvals: ApprovalResult{
			Buyer:  l.Approvals.Buyer,
			Seller: l.Approvals.Seller,
			Lender: l.Approvals.Lender,
		},
	}
}

// parseParticipant decodes an address acting as a caller or a party. Module
// accounts are rejected under either prefix.
func (s *Server) parseParticipant(value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("address required")
	}
	addr, err := crypto.ParseParticipant(trimmed)
	if err != nil {
		return [20]byte{}, err
	}
	if addr == s.node.VaultAddress() || addr == s.node.DeedRegistryAddress() {
		return [20]byte{}, fmt.Errorf("%s is a module account", crypto.FormatAccount(addr))
	}
	return addr, nil
}

func parseBech32Address(value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("address required")
	}
	return crypto.ParseAccount(trimmed)
}

func parseNonNegativeBigInt(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount")
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	// amounts are bounded to 256 bits like native balances
	if _, overflow := uint256.FromBig(amount); overflow {
		return nil, fmt.Errorf("amount exceeds 256 bits")
	}
	return amount, nil
}

func parsePositiveBigInt(value string) (*big.Int, error) {
	amount, err := parseNonNegativeBigInt(value)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func writeEscrowError(w http.ResponseWriter, id interface{}, err error) {
	if err == nil {
		return
	}
	status := http.StatusInternalServerError
	code := codeEscrowInternal
	message := "internal_error"
	switch {
	case errors.Is(err, escrow.ErrInvalidListing),
		errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrInvalidTarget),
		errors.Is(err, deed.ErrZeroAddress):
		status = http.StatusBadRequest
		code = codeEscrowInvalidParams
		message = "invalid_params"
	case errors.Is(err, escrow.ErrNotListed),
		errors.Is(err, deed.ErrUnknownDeed):
		status = http.StatusNotFound
		code = codeEscrowNotFound
		message = "not_found"
	case errors.Is(err, escrow.ErrUnauthorized),
		errors.Is(err, deed.ErrNotAuthorized):
		status = http.StatusForbidden
		code = codeEscrowForbidden
		message = "forbidden"
	case errors.Is(err, escrow.ErrInspectionNotPassed),
		errors.Is(err, escrow.ErrInspectionAlreadyPassed),
		errors.Is(err, escrow.ErrApprovalsIncomplete),
		errors.Is(err, escrow.ErrInsufficientBalance),
		errors.Is(err, escrow.ErrNoDeposit),
		errors.Is(err, escrow.ErrAssetTransferFailed),
		errors.Is(err, escrow.ErrInsufficientFunds),
		errors.Is(err, deed.ErrNotOwner),
		errors.Is(err, deed.ErrSelfApproval),
		errors.Is(err, common.ErrModulePaused):
		status = http.StatusConflict
		code = codeEscrowConflict
		message = "conflict"
	case errors.Is(err, core.ErrNodeClosed):
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, id, code, message, err.Error())
}
