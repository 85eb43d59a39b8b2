package rpc

import (
	"encoding/json"
	"net/http"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// ListingResult is the JSON form of an escrow listing.
type ListingResult struct {
	AssetID          uint64         `json:"assetId"`
	Listed           bool           `json:"listed"`
	Seller           string         `json:"seller,omitempty"`
	Buyer            string         `json:"buyer,omitempty"`
	PurchasePrice    string         `json:"purchasePrice"`
	EscrowAmount     string         `json:"escrowAmount"`
	Deposited        string         `json:"deposited"`
	BuyerFunds       string         `json:"buyerFunds"`
	LenderFunds      string         `json:"lenderFunds"`
	InspectionPassed bool           `json:"inspectionPassed"`
	BuyerInspected   bool           `json:"buyerInspected"`
	Comments         string         `json:"comments"`
	Approvals        ApprovalResult `json:"approvals"`
}

type ApprovalResult struct {
	Buyer  bool `json:"buyer"`
	Seller bool `json:"seller"`
	Lender bool `json:"lender"`
}

type RolesResult struct {
	Seller       string `json:"seller"`
	Inspector    string `json:"inspector"`
	Lender       string `json:"lender"`
	Vault        string `json:"vault"`
	DeedRegistry string `json:"deedRegistry"`
}

type BalanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}
