package rpc

import (
	"fmt"
	"net/http"

	"homeescrow/crypto"
)

type deedMintParams struct {
	Owner string `json:"owner"`
}

type deedApproveParams struct {
	Caller  string `json:"caller"`
	To      string `json:"to"`
	AssetID uint64 `json:"assetId"`
}

type deedOperatorParams struct {
	Caller   string `json:"caller"`
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

type deedMintResult struct {
	AssetID uint64 `json:"assetId"`
	Owner   string `json:"owner"`
}

func (s *Server) handleDeedMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params deedMintParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	owner, err := s.parseParticipant(params.Owner)
	if err != nil {
		invalidParams(w, req, fmt.Errorf("owner: %w", err))
		return
	}
	if !s.consumeQuota(w, req, s.deedQuota, owner, 0) {
		return
	}
	id, err := s.node.DeedMint(owner)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, deedMintResult{AssetID: id, Owner: crypto.FormatAccount(owner)})
}

func (s *Server) handleDeedApprove(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params deedApproveParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := s.parseParticipant(params.Caller)
	if err != nil {
		invalidParams(w, req, fmt.Errorf("caller: %w", err))
		return
	}
	to, err := parseBech32Address(params.To)
	if err != nil {
		invalidParams(w, req, fmt.Errorf("to: %w", err))
		return
	}
	if !s.consumeQuota(w, req, s.deedQuota, caller, 0) {
		return
	}
	if err := s.node.DeedApprove(caller, to, params.AssetID); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleDeedSetApprovalForAll(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params deedOperatorParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := s.parseParticipant(params.Caller)
	if err != nil {
		invalidParams(w, req, fmt.Errorf("caller: %w", err))
		return
	}
	operator, err := parseBech32Address(params.Operator)
	if err != nil {
		invalidParams(w, req, fmt.Errorf("operator: %w", err))
		return
	}
	if !s.consumeQuota(w, req, s.deedQuota, caller, 0) {
		return
	}
	if err := s.node.DeedSetApprovalForAll(caller, operator, params.Approved); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleDeedOwnerOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowAssetParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	owner, err := s.node.DeedOwnerOf(params.AssetID)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"owner": s.formatHolder(owner)})
}

// formatHolder renders module accounts with the vault prefix.
func (s *Server) formatHolder(addr [20]byte) string {
	if addr == s.node.VaultAddress() {
		return crypto.NewAddress(crypto.VaultPrefix, addr[:]).String()
	}
	return crypto.FormatAccount(addr)
}
