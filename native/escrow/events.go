package escrow

import (
	"strconv"
	"strings"

	"homeescrow/core/types"
	"homeescrow/crypto"
)

const (
	EventTypeListed             = "escrow.listed"
	EventTypeListingCancelled   = "escrow.listing_cancelled"
	EventTypeSaleApproved       = "escrow.sale_approved"
	EventTypeEarnestDeposited   = "escrow.earnest_deposited"
	EventTypeListingFunded      = "escrow.listing_funded"
	EventTypeInspectionUpdated  = "escrow.inspection_updated"
	EventTypeBuyerInspected     = "escrow.buyer_inspected"
	EventTypeInspectionComments = "escrow.inspection_comments"
	EventTypeSaleFinalized      = "escrow.sale_finalized"
	EventTypeSaleCancelled      = "escrow.sale_cancelled"
)

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// NewListedEvent returns the canonical payload for a new listing.
func NewListedEvent(l *Listing) *types.Event { return newListingEvent(EventTypeListed, l, nil) }

// NewListingCancelledEvent returns the payload emitted when the seller
// withdraws a listing. The refunded amount is recorded alongside.
func NewListingCancelledEvent(id uint64, refunded string) *types.Event {
	return newListingEvent(EventTypeListingCancelled, zeroListing(id), map[string]string{"refunded": refunded})
}

// NewSaleApprovedEvent returns the payload for a party approval.
func NewSaleApprovedEvent(l *Listing, party string) *types.Event {
	return newListingEvent(EventTypeSaleApproved, l, map[string]string{"party": party})
}

// NewEarnestDepositedEvent returns the payload for a buyer deposit.
func NewEarnestDepositedEvent(l *Listing, amount string) *types.Event {
	return newListingEvent(EventTypeEarnestDeposited, l, map[string]string{"amount": amount})
}

// NewListingFundedEvent returns the payload for lender financing.
func NewListingFundedEvent(l *Listing, amount string) *types.Event {
	return newListingEvent(EventTypeListingFunded, l, map[string]string{"amount": amount})
}

// NewInspectionUpdatedEvent returns the payload for an inspection verdict.
func NewInspectionUpdatedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeInspectionUpdated, l, nil)
}

// NewBuyerInspectedEvent returns the payload for the buyer's acknowledgment
// that the property was inspected.
func NewBuyerInspectedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeBuyerInspected, l, nil)
}

// NewInspectionCommentsEvent records which assets received a comment.
func NewInspectionCommentsEvent(ids []uint64, text string) *types.Event {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return &types.Event{Type: EventTypeInspectionComments, Attributes: map[string]string{
		"assetIds": strings.Join(parts, ","),
		"comments": text,
	}}
}

// NewSaleFinalizedEvent returns the payload for a completed sale.
func NewSaleFinalizedEvent(l *Listing, surplus string) *types.Event {
	return newListingEvent(EventTypeSaleFinalized, l, map[string]string{"surplus": surplus})
}

// NewSaleCancelledEvent returns the payload for an abandoned sale.
func NewSaleCancelledEvent(id uint64, caller [20]byte, refunded string) *types.Event {
	return newListingEvent(EventTypeSaleCancelled, zeroListing(id), map[string]string{
		"caller":   crypto.FormatAccount(caller),
		"refunded": refunded,
	})
}

func newListingEvent(eventType string, l *Listing, extra map[string]string) *types.Event {
	attrs := make(map[string]string)
	if l != nil {
		attrs[types.AttributeAssetID] = strconv.FormatUint(l.AssetID, 10)
		if l.Buyer != ([20]byte{}) {
			attrs["buyer"] = crypto.FormatAccount(l.Buyer)
		}
		attrs["purchasePrice"] = cloneBigInt(l.PurchasePrice).String()
		attrs["requiredDeposit"] = cloneBigInt(l.RequiredDeposit).String()
		attrs["deposited"] = l.Deposited().String()
		attrs["listed"] = strconv.FormatBool(l.Listed)
		attrs["inspectionPassed"] = strconv.FormatBool(l.InspectionPassed)
	}
	for k, v := range extra {
		if strings.TrimSpace(v) != "" {
			attrs[k] = v
		}
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
