package events

import (
	"math/big"

	"homeescrow/core/types"
	"homeescrow/crypto"
)

const (
	// TypeTransfer is emitted for native value movements.
	TypeTransfer = "transfer.native"
)

type Transfer struct {
	From   [20]byte
	To     [20]byte
	Amount *big.Int
	Reason string
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{
		"from":   crypto.NewAddress(crypto.AccountPrefix, e.From[:]).String(),
		"to":     crypto.NewAddress(crypto.AccountPrefix, e.To[:]).String(),
		"amount": formatAmount(e.Amount),
	}
	if e.Reason != "" {
		attrs["reason"] = e.Reason
	}
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}
