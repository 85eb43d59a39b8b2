package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"homeescrow/core/events"
	corestate "homeescrow/core/state"
	"homeescrow/core/types"
	"homeescrow/crypto"
	"homeescrow/native/common"
	"homeescrow/native/deed"
	"homeescrow/native/escrow"
	"homeescrow/observability"
	"homeescrow/storage"
)

// ErrNodeClosed is returned once Close has been called.
var ErrNodeClosed = errors.New("node closed")

// Allocation seeds an account balance when the node starts on empty storage.
type Allocation struct {
	Address [20]byte
	Amount  *big.Int
}

// Options configure a Node.
type Options struct {
	Roles       escrow.Roles
	Pauses      common.PauseView
	Sink        events.Emitter
	Logger      *slog.Logger
	Allocations []Allocation
}

// Node is the central controller. It serialises every call, applies it to the
// journaled state and either commits it in one batch or discards it. Events
// raised during a call reach the sink only after the commit succeeds.
type Node struct {
	db      storage.Database
	state   *corestate.Manager
	escrow  *escrow.Engine
	deeds   *deed.Registry
	logger  *slog.Logger
	sink    events.Emitter
	pending events.Buffer

	stateMu sync.Mutex
	closed  bool

	streamMu      sync.Mutex
	streamSubs    map[uint64]chan EventUpdate
	streamNextID  uint64
	streamSeq     uint64
	streamHistory []EventUpdate
}

// NewNode wires the escrow engine and deed registry to a shared state manager
// over db. Allocations are applied only when storage holds no prior state.
func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("database must not be nil")
	}
	if err := opts.Roles.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Sink
	if sink == nil {
		sink = events.NoopEmitter{}
	}

	n := &Node{
		db:         db,
		state:      corestate.NewManager(db),
		logger:     logger.With(slog.String("component", "node")),
		sink:       sink,
		streamSubs: make(map[uint64]chan EventUpdate),
	}

	n.deeds = deed.NewRegistry()
	n.deeds.SetState(n.state)
	n.deeds.SetPauses(opts.Pauses)
	n.deeds.SetEmitter(&n.pending)

	n.escrow = escrow.NewEngine(opts.Roles)
	n.escrow.SetState(n.state)
	n.escrow.SetRegistry(n.deeds)
	n.escrow.SetPauses(opts.Pauses)
	n.escrow.SetEmitter(&n.pending)
	n.escrow.SetLogger(logger)

	if err := n.applyGenesis(opts.Allocations); err != nil {
		return nil, err
	}
	return n, nil
}

var genesisMarkerKey = []byte("node/genesis-applied")

func (n *Node) applyGenesis(allocs []Allocation) error {
	ok, err := n.state.KVGet(genesisMarkerKey, nil)
	if err != nil {
		return fmt.Errorf("read genesis marker: %w", err)
	}
	if ok {
		return nil
	}
	for _, alloc := range allocs {
		if alloc.Address == n.escrow.VaultAddress() || alloc.Address == n.deeds.Address() {
			n.state.Discard()
			return fmt.Errorf("genesis allocation to module account %s", crypto.FormatAccount(alloc.Address))
		}
		if err := n.state.Credit(alloc.Address[:], alloc.Amount); err != nil {
			n.state.Discard()
			return fmt.Errorf("genesis allocation for %s: %w", crypto.FormatAccount(alloc.Address), err)
		}
		n.logger.Info("genesis allocation",
			slog.String("address", crypto.FormatAccount(alloc.Address)),
			slog.String("amount", alloc.Amount.String()))
	}
	if err := n.state.KVPut(genesisMarkerKey, true); err != nil {
		n.state.Discard()
		return err
	}
	return n.state.Commit()
}

// apply runs fn as one transition. The state journal and the buffered events
// are committed together or dropped together.
func (n *Node) apply(fn func() error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.closed {
		return ErrNodeClosed
	}
	if err := fn(); err != nil {
		n.state.Discard()
		n.pending.Discard()
		return err
	}
	if err := n.state.Commit(); err != nil {
		n.state.Discard()
		n.pending.Discard()
		n.logger.Error("state commit failed", slog.Any("error", err))
		return fmt.Errorf("commit state: %w", err)
	}
	n.pending.Flush(n)
	return nil
}

// applyEscrow runs an escrow transition and records its outcome and the
// resulting vault balance.
func (n *Node) applyEscrow(operation string, fn func() error) error {
	err := n.apply(fn)
	metrics := observability.Escrow()
	metrics.RecordTransition(operation, err)
	if err == nil {
		n.read(func() { metrics.SetCustodied(n.escrow.Balance()) })
	}
	return err
}

// Emit forwards a committed event to the sink and live subscribers.
func (n *Node) Emit(evt events.Event) {
	n.sink.Emit(evt)
	if payload, ok := evt.(events.Payload); ok {
		n.publishEvent(payload.Event())
	}
}

// read runs fn under the state lock without committing.
func (n *Node) read(fn func()) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	fn()
}

// Close marks the node closed. The database is owned by the caller.
func (n *Node) Close() {
	n.stateMu.Lock()
	n.closed = true
	n.state.Discard()
	n.stateMu.Unlock()
	n.closeStreams()
}

// VaultAddress returns the escrow vault account.
func (n *Node) VaultAddress() [20]byte { return n.escrow.VaultAddress() }

// --- Escrow ---

func (n *Node) EscrowList(call escrow.Call, assetID uint64, buyer [20]byte, price, deposit *big.Int) error {
	return n.applyEscrow("list", func() error { return n.escrow.List(call, assetID, buyer, price, deposit) })
}

func (n *Node) EscrowCancelListing(call escrow.Call, assetID uint64) error {
	return n.applyEscrow("cancel_listing", func() error { return n.escrow.CancelListing(call, assetID) })
}

func (n *Node) EscrowApproveSale(call escrow.Call, assetID uint64) error {
	return n.applyEscrow("approve_sale", func() error { return n.escrow.ApproveSale(call, assetID) })
}

func (n *Node) EscrowDepositEarnest(call escrow.Call, assetID uint64) error {
	return n.applyEscrow("deposit_earnest", func() error { return n.escrow.DepositEarnest(call, assetID) })
}

func (n *Node) EscrowFundListing(call escrow.Call, assetID uint64) error {
	return n.applyEscrow("fund_listing", func() error { return n.escrow.FundListing(call, assetID) })
}

func (n *Node) EscrowMarkInspected(call escrow.Call, assetID uint64) error {
	return n.applyEscrow("mark_inspected", func() error { return n.escrow.MarkAsInspected(call, assetID) })
}

func (n *Node) EscrowUpdateInspection(call escrow.Call, assetID uint64, passed bool) error {
	return n.applyEscrow("update_inspection", func() error { return n.escrow.UpdateInspectionStatus(call, assetID, passed) })
}

func (n *Node) EscrowRecordComments(call escrow.Call, target escrow.CommentTarget, text string) error {
	return n.applyEscrow("record_comments", func() error { return n.escrow.RecordInspectionComments(call, target, text) })
}

func (n *Node) EscrowFinalizeSale(call escrow.Call, assetID uint64) error {
	return n.applyEscrow("finalize_sale", func() error { return n.escrow.FinalizeSale(call, assetID) })
}

func (n *Node) EscrowCancelSale(call escrow.Call, assetID uint64) error {
	return n.applyEscrow("cancel_sale", func() error { return n.escrow.CancelSale(call, assetID) })
}

// EscrowView is a consistent read of one listing.
type EscrowView struct {
	Listing  *escrow.Listing
	Comments string
}

// EscrowGet returns the listing and comments for the asset. Unknown ids yield
// the zero listing.
func (n *Node) EscrowGet(assetID uint64) (*EscrowView, error) {
	var (
		view *EscrowView
		err  error
	)
	n.read(func() {
		var listing *escrow.Listing
		listing, err = n.escrow.Listing(assetID)
		if err != nil {
			return
		}
		view = &EscrowView{Listing: listing, Comments: n.escrow.InspectionComments(assetID)}
	})
	return view, err
}

// EscrowApproval reports whether who has approved the sale of the asset.
func (n *Node) EscrowApproval(assetID uint64, who [20]byte) bool {
	var approved bool
	n.read(func() { approved = n.escrow.Approval(assetID, who) })
	return approved
}

// EscrowBalance returns the value custodied across all listings.
func (n *Node) EscrowBalance() *big.Int {
	var balance *big.Int
	n.read(func() { balance = n.escrow.Balance() })
	return balance
}

// EscrowRoles returns the engine-wide parties.
func (n *Node) EscrowRoles() escrow.Roles { return n.escrow.Roles() }

// DeedRegistryAddress identifies the asset registry the engine uses.
func (n *Node) DeedRegistryAddress() [20]byte { return n.escrow.NFTAddress() }

// --- Deeds ---

func (n *Node) DeedMint(owner [20]byte) (uint64, error) {
	var id uint64
	err := n.apply(func() error {
		var err error
		id, err = n.deeds.Mint(owner)
		return err
	})
	return id, err
}

func (n *Node) DeedApprove(caller, to [20]byte, id uint64) error {
	return n.apply(func() error { return n.deeds.Approve(caller, to, id) })
}

func (n *Node) DeedSetApprovalForAll(owner, operator [20]byte, approved bool) error {
	return n.apply(func() error { return n.deeds.SetApprovalForAll(owner, operator, approved) })
}

func (n *Node) DeedOwnerOf(id uint64) ([20]byte, error) {
	var (
		owner [20]byte
		err   error
	)
	n.read(func() { owner, err = n.deeds.OwnerOf(id) })
	return owner, err
}

// --- Accounts ---

// GetAccount returns the committed account state for addr.
func (n *Node) GetAccount(addr []byte) (*types.Account, error) {
	var (
		account *types.Account
		err     error
	)
	n.read(func() { account, err = n.state.GetAccount(addr) })
	return account, err
}
