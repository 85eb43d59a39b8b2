package escrow

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"homeescrow/core/events"
	"homeescrow/core/types"
	"homeescrow/crypto"
	"homeescrow/native/common"
)

type engineState interface {
	ListingGet(id uint64) (*Listing, bool, error)
	ListingPut(*Listing) error
	ListingComments(id uint64) (string, error)
	ListingSetComments(id uint64, text string) error
	EscrowCredit(id uint64, amt *big.Int) error
	EscrowDebit(id uint64, amt *big.Int) error
	EscrowBalance(id uint64) (*big.Int, error)
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// AssetRegistry is the system of record for deed ownership. The engine moves
// custody with TransferFrom acting as operator from its own vault address, so
// the seller must have approved the vault before listing.
type AssetRegistry interface {
	Address() [20]byte
	OwnerOf(id uint64) ([20]byte, error)
	TransferFrom(operator, from, to [20]byte, id uint64) error
}

// Engine runs the escrow state machine. Every mutating call is applied as a
// single unit: the state snapshot taken on entry is restored if any step
// fails, and events raised by the call are only forwarded once it succeeds.
type Engine struct {
	mu       sync.Mutex
	state    engineState
	registry AssetRegistry
	roles    Roles
	vault    [20]byte
	emitter  events.Emitter
	pauses   common.PauseView
	logger   *slog.Logger
	pending  events.Buffer
}

// NewEngine creates an escrow engine bound to the supplied roles with a no-op
// emitter. The vault address, which holds custodied value and deeds, is
// derived from the module name.
func NewEngine(roles Roles) *Engine {
	return &Engine{
		roles:   roles,
		vault:   VaultAddress(),
		emitter: events.NoopEmitter{},
		logger:  slog.Default().With(slog.String("component", ModuleName)),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry configures the asset registry holding the listed deeds.
func (e *Engine) SetRegistry(registry AssetRegistry) { e.registry = registry }

// SetPauses wires the module pause view consulted before each mutation.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger overrides the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger.With(slog.String("component", ModuleName))
}

// VaultAddress returns the account that custodies deeds and deposits.
func (e *Engine) VaultAddress() [20]byte { return e.vault }

func (e *Engine) emit(event *types.Event) {
	if event == nil {
		return
	}
	e.pending.Emit(escrowEvent{evt: event})
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.registry == nil {
		return errNilRegistry
	}
	return nil
}

// atomic runs fn as one state transition.
func (e *Engine) atomic(op string, call Call, fn func() error) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if e.reserved(call.Caller) {
		return fmt.Errorf("%w: module accounts cannot call %s", ErrUnauthorized, op)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := e.state.Snapshot()
	if err := fn(); err != nil {
		e.state.RevertToSnapshot(snapshot)
		e.pending.Discard()
		e.logger.Debug("escrow operation rejected",
			slog.String("op", op),
			slog.String("caller", crypto.FormatAccount(call.Caller)),
			slog.Any("error", err))
		return err
	}
	e.pending.Flush(e.emitter)
	return nil
}

// reserved reports whether addr belongs to the vault or the asset registry.
// Neither may act as a caller or a buyer.
func (e *Engine) reserved(addr [20]byte) bool {
	return addr == e.vault || addr == e.registry.Address()
}

func (e *Engine) loadListing(id uint64) (*Listing, bool, error) {
	l, ok, err := e.state.ListingGet(id)
	if err != nil {
		return nil, false, err
	}
	if !ok || l == nil {
		return zeroListing(id), false, nil
	}
	return l, true, nil
}

func (e *Engine) activeListing(id uint64) (*Listing, error) {
	l, ok, err := e.loadListing(id)
	if err != nil {
		return nil, err
	}
	if !ok || !l.Listed {
		return nil, fmt.Errorf("%w: asset %d", ErrNotListed, id)
	}
	return l, nil
}

func (e *Engine) storeListing(l *Listing) error {
	sanitized, err := SanitizeListing(l)
	if err != nil {
		return err
	}
	return e.state.ListingPut(sanitized)
}

func (e *Engine) transferValue(from, to [20]byte, amount *big.Int, reason string) error {
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("escrow: negative transfer amount")
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	fromAcc = fromAcc.Clone()
	if fromAcc.Balance.Cmp(amt) < 0 {
		return ErrInsufficientFunds
	}
	fromAcc.Balance.Sub(fromAcc.Balance, amt)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	toAcc = toAcc.Clone()
	toAcc.Balance.Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(to[:], toAcc); err != nil {
		return err
	}
	e.pending.Emit(events.Transfer{From: from, To: to, Amount: amt, Reason: reason})
	return nil
}

func (e *Engine) moveDeed(from, to [20]byte, id uint64) error {
	if err := e.registry.TransferFrom(e.vault, from, to, id); err != nil {
		return fmt.Errorf("%w: asset %d: %v", ErrAssetTransferFailed, id, err)
	}
	return nil
}

// List places an asset under escrow for the given buyer. Only the seller may
// list, and custody of the deed moves from the seller to the engine vault.
func (e *Engine) List(call Call, assetID uint64, buyer [20]byte, purchasePrice, requiredDeposit *big.Int) error {
	return e.atomic("list", call, func() error {
		if call.Caller != e.roles.Seller {
			return fmt.Errorf("%w: only the seller may list", ErrUnauthorized)
		}
		if buyer == ([20]byte{}) {
			return fmt.Errorf("%w: buyer required", ErrInvalidListing)
		}
		if e.reserved(buyer) {
			return fmt.Errorf("%w: buyer cannot be a module account", ErrInvalidListing)
		}
		price := cloneBigInt(purchasePrice)
		deposit := cloneBigInt(requiredDeposit)
		if price.Sign() < 0 || deposit.Sign() < 0 {
			return fmt.Errorf("%w: amounts must be non-negative", ErrInvalidListing)
		}
		if deposit.Cmp(price) > 0 {
			return fmt.Errorf("%w: required deposit exceeds purchase price", ErrInvalidListing)
		}
		if err := e.moveDeed(e.roles.Seller, e.vault, assetID); err != nil {
			return err
		}
		listing := zeroListing(assetID)
		listing.Seller = e.roles.Seller
		listing.Buyer = buyer
		listing.PurchasePrice = price
		listing.RequiredDeposit = deposit
		listing.Listed = true
		if err := e.storeListing(listing); err != nil {
			return err
		}
		e.emit(NewListedEvent(listing))
		e.logger.Info("asset listed",
			slog.Uint64("assetId", assetID),
			slog.String("buyer", crypto.FormatAccount(buyer)),
			slog.String("purchasePrice", price.String()))
		return nil
	})
}

// CancelListing withdraws a listing before inspection has passed. Any value
// held for it is returned to its contributors and the deed goes back to the
// seller.
func (e *Engine) CancelListing(call Call, assetID uint64) error {
	return e.atomic("cancel_listing", call, func() error {
		if call.Caller != e.roles.Seller {
			return fmt.Errorf("%w: only the seller may cancel a listing", ErrUnauthorized)
		}
		listing, err := e.activeListing(assetID)
		if err != nil {
			return err
		}
		if listing.InspectionPassed {
			return fmt.Errorf("%w: asset %d", ErrInspectionAlreadyPassed, assetID)
		}
		refunded, err := e.unwind(listing, "escrow.cancel_listing")
		if err != nil {
			return err
		}
		e.emit(NewListingCancelledEvent(assetID, refunded.String()))
		e.logger.Info("listing cancelled",
			slog.Uint64("assetId", assetID),
			slog.String("refunded", refunded.String()))
		return nil
	})
}

// CancelSale abandons a funded listing. The buyer of that listing or the
// seller may cancel; exactly the value held for that listing is refunded.
func (e *Engine) CancelSale(call Call, assetID uint64) error {
	return e.atomic("cancel_sale", call, func() error {
		listing, err := e.activeListing(assetID)
		if err != nil {
			return err
		}
		if call.Caller != listing.Buyer && call.Caller != e.roles.Seller {
			return fmt.Errorf("%w: only the buyer or seller of asset %d may cancel the sale", ErrUnauthorized, assetID)
		}
		if listing.Deposited().Sign() == 0 {
			return fmt.Errorf("%w: asset %d", ErrNoDeposit, assetID)
		}
		refunded, err := e.unwind(listing, "escrow.cancel_sale")
		if err != nil {
			return err
		}
		e.emit(NewSaleCancelledEvent(assetID, call.Caller, refunded.String()))
		e.logger.Info("sale cancelled",
			slog.Uint64("assetId", assetID),
			slog.String("caller", crypto.FormatAccount(call.Caller)),
			slog.String("refunded", refunded.String()))
		return nil
	})
}

// unwind debits the listing's vault account, resets the listing, pays each
// contributor back and returns the deed to the seller. Bookkeeping is written
// before any value leaves the vault.
func (e *Engine) unwind(listing *Listing, reason string) (*big.Int, error) {
	id := listing.AssetID
	total := listing.Deposited()
	buyerShare := cloneBigInt(listing.BuyerFunds)
	lenderShare := cloneBigInt(listing.LenderFunds)
	buyer := listing.Buyer

	if total.Sign() > 0 {
		held, err := e.state.EscrowBalance(id)
		if err != nil {
			return nil, err
		}
		if held.Cmp(total) != 0 {
			return nil, fmt.Errorf("%w: asset %d holds %s, listing records %s", ErrLedgerMismatch, id, held, total)
		}
		if err := e.state.EscrowDebit(id, total); err != nil {
			return nil, err
		}
	}
	if err := e.storeListing(zeroListing(id)); err != nil {
		return nil, err
	}
	if err := e.state.ListingSetComments(id, ""); err != nil {
		return nil, err
	}
	if err := e.transferValue(e.vault, buyer, buyerShare, reason); err != nil {
		return nil, err
	}
	if err := e.transferValue(e.vault, e.roles.Lender, lenderShare, reason); err != nil {
		return nil, err
	}
	if err := e.moveDeed(e.vault, e.roles.Seller, id); err != nil {
		return nil, err
	}
	return total, nil
}

// ApproveSale records the caller's consent. Re-approving is a no-op.
func (e *Engine) ApproveSale(call Call, assetID uint64) error {
	return e.atomic("approve_sale", call, func() error {
		listing, err := e.activeListing(assetID)
		if err != nil {
			return err
		}
		var parties []string
		if call.Caller == listing.Buyer {
			parties = append(parties, "buyer")
			listing.Approvals.Buyer = true
		}
		if call.Caller == e.roles.Seller {
			parties = append(parties, "seller")
			listing.Approvals.Seller = true
		}
		if call.Caller == e.roles.Lender {
			parties = append(parties, "lender")
			listing.Approvals.Lender = true
		}
		if len(parties) == 0 {
			return fmt.Errorf("%w: caller is not a party to asset %d", ErrUnauthorized, assetID)
		}
		if err := e.storeListing(listing); err != nil {
			return err
		}
		for _, party := range parties {
			e.emit(NewSaleApprovedEvent(listing, party))
		}
		return nil
	})
}

// DepositEarnest credits the attached value to the listing on behalf of its
// buyer. Deposits above or below the required amount are accepted.
func (e *Engine) DepositEarnest(call Call, assetID uint64) error {
	return e.atomic("deposit_earnest", call, func() error {
		listing, err := e.activeListing(assetID)
		if err != nil {
			return err
		}
		if call.Caller != listing.Buyer {
			return fmt.Errorf("%w: only the buyer of asset %d may deposit earnest", ErrUnauthorized, assetID)
		}
		amount := call.value()
		if amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if err := e.receive(call.Caller, listing, amount, "escrow.deposit_earnest"); err != nil {
			return err
		}
		listing.BuyerFunds.Add(listing.BuyerFunds, amount)
		if err := e.storeListing(listing); err != nil {
			return err
		}
		e.emit(NewEarnestDepositedEvent(listing, amount.String()))
		return nil
	})
}

// FundListing lets the lender send financing earmarked for one listing.
func (e *Engine) FundListing(call Call, assetID uint64) error {
	return e.atomic("fund_listing", call, func() error {
		if call.Caller != e.roles.Lender {
			return fmt.Errorf("%w: only the lender may fund a listing", ErrUnauthorized)
		}
		listing, err := e.activeListing(assetID)
		if err != nil {
			return err
		}
		amount := call.value()
		if amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if err := e.receive(call.Caller, listing, amount, "escrow.fund_listing"); err != nil {
			return err
		}
		listing.LenderFunds.Add(listing.LenderFunds, amount)
		if err := e.storeListing(listing); err != nil {
			return err
		}
		e.emit(NewListingFundedEvent(listing, amount.String()))
		return nil
	})
}

func (e *Engine) receive(from [20]byte, listing *Listing, amount *big.Int, reason string) error {
	if err := e.transferValue(from, e.vault, amount, reason); err != nil {
		return err
	}
	return e.state.EscrowCredit(listing.AssetID, amount)
}

// MarkAsInspected records that the buyer of a listing has inspected the
// property. It does not gate finalization.
func (e *Engine) MarkAsInspected(call Call, assetID uint64) error {
	return e.atomic("mark_inspected", call, func() error {
		listing, err := e.activeListing(assetID)
		if err != nil {
			return err
		}
		if call.Caller != listing.Buyer {
			return fmt.Errorf("%w: only the buyer of asset %d may mark it inspected", ErrUnauthorized, assetID)
		}
		if listing.BuyerInspected {
			return nil
		}
		listing.BuyerInspected = true
		if err := e.storeListing(listing); err != nil {
			return err
		}
		e.emit(NewBuyerInspectedEvent(listing))
		return nil
	})
}

// UpdateInspectionStatus records the inspector's verdict for a listing.
func (e *Engine) UpdateInspectionStatus(call Call, assetID uint64, passed bool) error {
	return e.atomic("update_inspection", call, func() error {
		if call.Caller != e.roles.Inspector {
			return fmt.Errorf("%w: only the inspector may update inspection status", ErrUnauthorized)
		}
		listing, err := e.activeListing(assetID)
		if err != nil {
			return err
		}
		listing.InspectionPassed = passed
		if err := e.storeListing(listing); err != nil {
			return err
		}
		e.emit(NewInspectionUpdatedEvent(listing))
		return nil
	})
}

// RecordInspectionComments writes the same comment text to every targeted
// asset. Comments may be recorded for assets that are not currently listed.
func (e *Engine) RecordInspectionComments(call Call, target CommentTarget, text string) error {
	return e.atomic("inspection_comments", call, func() error {
		if call.Caller != e.roles.Inspector {
			return fmt.Errorf("%w: only the inspector may record comments", ErrUnauthorized)
		}
		ids := target.IDs()
		if len(ids) == 0 {
			return ErrInvalidTarget
		}
		for _, id := range ids {
			if err := e.state.ListingSetComments(id, text); err != nil {
				return err
			}
		}
		e.emit(NewInspectionCommentsEvent(ids, text))
		return nil
	})
}

// FinalizeSale completes a sale once inspection passed, all parties approved
// and the listing holds at least the purchase price. The seller receives the
// price, any surplus goes back to the buyer and the deed moves to the buyer.
func (e *Engine) FinalizeSale(call Call, assetID uint64) error {
	return e.atomic("finalize_sale", call, func() error {
		if call.Caller != e.roles.Seller {
			return fmt.Errorf("%w: only the seller may finalize", ErrUnauthorized)
		}
		listing, err := e.activeListing(assetID)
		if err != nil {
			return err
		}
		if !listing.InspectionPassed {
			return fmt.Errorf("%w: asset %d", ErrInspectionNotPassed, assetID)
		}
		if !listing.Approvals.Complete() {
			return fmt.Errorf("%w: asset %d", ErrApprovalsIncomplete, assetID)
		}
		deposited := listing.Deposited()
		price := cloneBigInt(listing.PurchasePrice)
		if deposited.Cmp(price) < 0 {
			return fmt.Errorf("%w: asset %d holds %s of %s", ErrInsufficientBalance, assetID, deposited, price)
		}
		held, err := e.state.EscrowBalance(assetID)
		if err != nil {
			return err
		}
		if held.Cmp(deposited) != 0 {
			return fmt.Errorf("%w: asset %d holds %s, listing records %s", ErrLedgerMismatch, assetID, held, deposited)
		}
		if err := e.state.EscrowDebit(assetID, deposited); err != nil {
			return err
		}
		surplus := new(big.Int).Sub(deposited, price)
		listing.Listed = false
		listing.BuyerFunds = big.NewInt(0)
		listing.LenderFunds = big.NewInt(0)
		if err := e.storeListing(listing); err != nil {
			return err
		}
		if err := e.transferValue(e.vault, e.roles.Seller, price, "escrow.finalize_sale"); err != nil {
			return err
		}
		if err := e.transferValue(e.vault, listing.Buyer, surplus, "escrow.finalize_surplus"); err != nil {
			return err
		}
		if err := e.moveDeed(e.vault, listing.Buyer, assetID); err != nil {
			return err
		}
		e.emit(NewSaleFinalizedEvent(listing, surplus.String()))
		e.logger.Info("sale finalized",
			slog.Uint64("assetId", assetID),
			slog.String("buyer", crypto.FormatAccount(listing.Buyer)),
			slog.String("price", price.String()),
			slog.String("surplus", surplus.String()))
		return nil
	})
}

// --- Read accessors ---
// Accessors never fail for an unknown id; they return zero values instead.

// NFTAddress returns the asset registry address.
func (e *Engine) NFTAddress() [20]byte {
	if e == nil || e.registry == nil {
		return [20]byte{}
	}
	return e.registry.Address()
}

func (e *Engine) Seller() [20]byte    { return e.roles.Seller }
func (e *Engine) Inspector() [20]byte { return e.roles.Inspector }
func (e *Engine) Lender() [20]byte    { return e.roles.Lender }

// Roles returns the engine-wide parties.
func (e *Engine) Roles() Roles { return e.roles }

// Listing returns a copy of the stored listing, or its zero state if none
// exists. Storage failures are surfaced to the caller.
func (e *Engine) Listing(assetID uint64) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	l, _, err := e.loadListing(assetID)
	if err != nil {
		return nil, err
	}
	return l.Clone(), nil
}

func (e *Engine) view(assetID uint64) *Listing {
	l, err := e.Listing(assetID)
	if err != nil {
		if e != nil && e.logger != nil {
			e.logger.Warn("escrow listing read failed", slog.Uint64("assetId", assetID), slog.Any("error", err))
		}
		return zeroListing(assetID)
	}
	return l
}

func (e *Engine) IsListed(assetID uint64) bool         { return e.view(assetID).Listed }
func (e *Engine) Buyer(assetID uint64) [20]byte        { return e.view(assetID).Buyer }
func (e *Engine) PurchasePrice(assetID uint64) *big.Int { return e.view(assetID).PurchasePrice }
func (e *Engine) EscrowAmount(assetID uint64) *big.Int  { return e.view(assetID).RequiredDeposit }
func (e *Engine) Deposited(assetID uint64) *big.Int     { return e.view(assetID).Deposited() }
func (e *Engine) InspectionPassed(assetID uint64) bool  { return e.view(assetID).InspectionPassed }
func (e *Engine) IsInspected(assetID uint64) bool       { return e.view(assetID).BuyerInspected }

// InspectionComments returns the inspector's comment for the asset.
func (e *Engine) InspectionComments(assetID uint64) string {
	if e == nil || e.state == nil {
		return ""
	}
	text, err := e.state.ListingComments(assetID)
	if err != nil {
		e.logger.Warn("escrow comments read failed", slog.Uint64("assetId", assetID), slog.Any("error", err))
		return ""
	}
	return text
}

// Approval reports whether the identity has approved the listing in any of
// the roles it holds for it.
func (e *Engine) Approval(assetID uint64, who [20]byte) bool {
	if who == ([20]byte{}) {
		return false
	}
	l := e.view(assetID)
	switch {
	case who == l.Buyer && l.Approvals.Buyer:
		return true
	case who == e.roles.Seller && l.Approvals.Seller:
		return true
	case who == e.roles.Lender && l.Approvals.Lender:
		return true
	default:
		return false
	}
}

// Balance returns the total value custodied by the vault across listings.
func (e *Engine) Balance() *big.Int {
	if e == nil || e.state == nil {
		return big.NewInt(0)
	}
	acc, err := e.state.GetAccount(e.vault[:])
	if err != nil {
		e.logger.Warn("escrow vault read failed", slog.Any("error", err))
		return big.NewInt(0)
	}
	return acc.Clone().Balance
}
