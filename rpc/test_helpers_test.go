package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"homeescrow/core"
	"homeescrow/core/events"
	"homeescrow/crypto"
	"homeescrow/eventlog"
	"homeescrow/native/escrow"
	"homeescrow/storage"
)

const testToken = "rpc-test-token"

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

var (
	sellerAddr    = testAddress(0x01)
	inspectorAddr = testAddress(0x02)
	lenderAddr    = testAddress(0x03)
	buyerAddr     = testAddress(0x04)
	strangerAddr  = testAddress(0x06)

	seller    = crypto.FormatAccount(sellerAddr)
	inspector = crypto.FormatAccount(inspectorAddr)
	lender    = crypto.FormatAccount(lenderAddr)
	buyer     = crypto.FormatAccount(buyerAddr)
	stranger  = crypto.FormatAccount(strangerAddr)
)

type testEnv struct {
	t       *testing.T
	node    *core.Node
	store   *eventlog.Store
	server  *Server
	handler http.Handler
}

func newTestEnv(t *testing.T, mutate ...func(*ServerConfig)) *testEnv {
	t.Helper()
	store, err := eventlog.Open(eventlog.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	node, err := core.NewNode(db, core.Options{
		Roles: escrow.Roles{Seller: sellerAddr, Inspector: inspectorAddr, Lender: lenderAddr},
		Sink:  events.Fanout{store},
		Allocations: []core.Allocation{
			{Address: buyerAddr, Amount: big.NewInt(1_000)},
			{Address: lenderAddr, Amount: big.NewInt(1_000)},
		},
	})
	require.NoError(t, err)
	t.Cleanup(node.Close)

	cfg := ServerConfig{AuthToken: testToken}
	for _, fn := range mutate {
		fn(&cfg)
	}
	server, err := NewServer(node, store, cfg, nil)
	require.NoError(t, err)
	return &testEnv{t: t, node: node, store: store, server: server, handler: server.Handler()}
}

type rpcReply struct {
	status int
	header http.Header
	result json.RawMessage
	err    *RPCError
}

func (e *testEnv) post(body []byte, token string) rpcReply {
	e.t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	e.handler.ServeHTTP(recorder, req)

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	require.NoError(e.t, json.Unmarshal(recorder.Body.Bytes(), &resp), recorder.Body.String())
	return rpcReply{status: recorder.Code, header: recorder.Header(), result: resp.Result, err: resp.Error}
}

func (e *testEnv) callWith(token, method string, params ...interface{}) rpcReply {
	e.t.Helper()
	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		encoded, err := json.Marshal(p)
		require.NoError(e.t, err)
		raw = append(raw, encoded)
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: raw, ID: 1})
	require.NoError(e.t, err)
	return e.post(body, token)
}

func (e *testEnv) call(method string, params ...interface{}) rpcReply {
	e.t.Helper()
	return e.callWith(testToken, method, params...)
}

// mustCall fails the test on any RPC error and decodes the result into out.
func (e *testEnv) mustCall(out interface{}, method string, params ...interface{}) {
	e.t.Helper()
	reply := e.call(method, params...)
	require.Nil(e.t, reply.err, "%s failed: %+v", method, reply.err)
	if out != nil {
		require.NoError(e.t, json.Unmarshal(reply.result, out))
	}
}

// mintListable mints a deed to the seller and lets the vault move it.
func (e *testEnv) mintListable() uint64 {
	e.t.Helper()
	var minted deedMintResult
	e.mustCall(&minted, "deed_mint", map[string]interface{}{"owner": seller})
	vault := e.node.VaultAddress()
	e.mustCall(nil, "deed_approve", map[string]interface{}{
		"caller":  seller,
		"to":      crypto.NewAddress(crypto.VaultPrefix, vault[:]).String(),
		"assetId": minted.AssetID,
	})
	return minted.AssetID
}

func (e *testEnv) list(id uint64, price, deposit string) ListingResult {
	e.t.Helper()
	var listing ListingResult
	e.mustCall(&listing, "escrow_list", map[string]interface{}{
		"caller":        seller,
		"assetId":       id,
		"buyer":         buyer,
		"purchasePrice": price,
		"escrowAmount":  deposit,
	})
	return listing
}

func actor(caller string, id uint64) map[string]interface{} {
	return map[string]interface{}{"caller": caller, "assetId": id}
}

func withValue(caller string, id uint64, value string) map[string]interface{} {
	return map[string]interface{}{"caller": caller, "assetId": id, "value": value}
}
