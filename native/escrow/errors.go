package escrow

import "errors"

var (
	ErrUnauthorized            = errors.New("escrow: unauthorized caller")
	ErrNotListed               = errors.New("escrow: asset not listed")
	ErrInspectionNotPassed     = errors.New("escrow: inspection not passed")
	ErrInspectionAlreadyPassed = errors.New("escrow: inspection already passed")
	ErrApprovalsIncomplete     = errors.New("escrow: approvals incomplete")
	ErrInsufficientBalance     = errors.New("escrow: insufficient balance")
	ErrNoDeposit               = errors.New("escrow: no deposit")
	ErrAssetTransferFailed     = errors.New("escrow: asset transfer failed")

	ErrInvalidListing    = errors.New("escrow: invalid listing terms")
	ErrInvalidAmount     = errors.New("escrow: value must be positive")
	ErrInvalidTarget     = errors.New("escrow: comment target has no asset ids")
	ErrInsufficientFunds = errors.New("escrow: caller has insufficient funds")
	ErrLedgerMismatch    = errors.New("escrow: vault ledger out of sync with listing")

	errNilState    = errors.New("escrow engine: state not configured")
	errNilRegistry = errors.New("escrow engine: asset registry not configured")
)
