package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type capturedCall struct {
	auth   string
	method string
	params []map[string]interface{}
}

func newTestClient(t *testing.T, reply string) (*client, *capturedCall, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	captured := &capturedCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req struct {
			Method string                   `json:"method"`
			Params []map[string]interface{} `json:"params"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		captured.auth = r.Header.Get("Authorization")
		captured.method = req.Method
		captured.params = req.Params
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	return &client{
		url:        srv.URL,
		auth:       "secret",
		httpClient: &http.Client{Timeout: 5 * time.Second},
		out:        stdout,
		errOut:     stderr,
	}, captured, stdout, stderr
}

func TestListBuildsParams(t *testing.T) {
	c, captured, stdout, _ := newTestClient(t, `{"jsonrpc":"2.0","id":1,"result":{"assetId":7,"listed":true}}`)
	code := c.run([]string{"list", "--caller", "hes1seller", "--asset", "7", "--buyer", "hes1buyer", "--price", "10", "--deposit", "5"})
	require.Equal(t, 0, code)
	require.Equal(t, "escrow_list", captured.method)
	require.Equal(t, "Bearer secret", captured.auth)
	require.Len(t, captured.params, 1)
	require.Equal(t, float64(7), captured.params[0]["assetId"])
	require.Equal(t, "10", captured.params[0]["purchasePrice"])
	require.Equal(t, "5", captured.params[0]["escrowAmount"])
	require.Contains(t, stdout.String(), `"listed": true`)
}

func TestCommentBatch(t *testing.T) {
	c, captured, _, _ := newTestClient(t, `{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`)
	require.Equal(t, 0, c.run([]string{"comment", "--caller", "hes1inspector", "--assets", "3,4", "--text", "roof"}))
	require.Equal(t, "escrow_setInspectionComments", captured.method)
	require.Equal(t, []interface{}{float64(3), float64(4)}, captured.params[0]["assetIds"])

	require.Equal(t, 0, c.run([]string{"comment", "--caller", "hes1inspector", "--assets", "9", "--text", "roof"}))
	require.Equal(t, float64(9), captured.params[0]["assetId"])
}

func TestBalanceSendsNoParams(t *testing.T) {
	c, captured, stdout, _ := newTestClient(t, `{"jsonrpc":"2.0","id":1,"result":{"balance":"15"}}`)
	require.Equal(t, 0, c.run([]string{"balance"}))
	require.Equal(t, "escrow_getBalance", captured.method)
	require.Empty(t, captured.params)
	require.Contains(t, stdout.String(), `"15"`)
}

func TestMissingRequiredFlag(t *testing.T) {
	c, captured, _, stderr := newTestClient(t, `{}`)
	require.Equal(t, 1, c.run([]string{"deposit", "--caller", "hes1buyer", "--asset", "1"}))
	require.Contains(t, stderr.String(), "--value is required")
	require.Empty(t, captured.method)
}

func TestRPCErrorIsReported(t *testing.T) {
	c, _, _, stderr := newTestClient(t, `{"jsonrpc":"2.0","id":1,"error":{"code":-32024,"message":"conflict","data":"escrow: inspection not passed"}}`)
	require.Equal(t, 1, c.run([]string{"finalize", "--caller", "hes1seller", "--asset", "1"}))
	require.Contains(t, stderr.String(), "RPC error (-32024): conflict")
	require.Contains(t, stderr.String(), "inspection not passed")
}

func TestUnknownCommandAndBadAsset(t *testing.T) {
	c, _, _, stderr := newTestClient(t, `{}`)
	require.Equal(t, 1, c.run([]string{"resolve"}))
	require.Contains(t, stderr.String(), "unknown command")
	require.Equal(t, 1, c.run([]string{"get", "--asset", "abc"}))
	require.Contains(t, stderr.String(), "invalid asset id")
	require.Equal(t, 1, c.run(nil))
}

func TestYAMLOutput(t *testing.T) {
	c, _, stdout, _ := newTestClient(t, `{"jsonrpc":"2.0","id":1,"result":{"seller":"hes1seller","lender":"hes1lender"}}`)
	c.format = "yaml"
	require.Equal(t, 0, c.run([]string{"roles"}))
	require.Contains(t, stdout.String(), "seller: hes1seller\n")
	require.Contains(t, stdout.String(), "lender: hes1lender\n")
}

func TestOperatorGrantAndRevoke(t *testing.T) {
	c, captured, _, _ := newTestClient(t, `{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`)
	require.Equal(t, 0, c.run([]string{"operator", "--caller", "hes1seller", "--operator", "hes1vault"}))
	require.Equal(t, "deed_setApprovalForAll", captured.method)
	require.Equal(t, true, captured.params[0]["approved"])

	require.Equal(t, 0, c.run([]string{"operator", "--caller", "hes1seller", "--operator", "hes1vault", "--revoke"}))
	require.Equal(t, false, captured.params[0]["approved"])
}

func TestMarkInspectedCommand(t *testing.T) {
	c, captured, _, _ := newTestClient(t, `{"jsonrpc":"2.0","id":1,"result":{"assetId":2,"buyerInspected":true}}`)
	require.Equal(t, 0, c.run([]string{"mark-inspected", "--caller", "hes1buyer", "--asset", "2"}))
	require.Equal(t, "escrow_markInspected", captured.method)
	require.Equal(t, "hes1buyer", captured.params[0]["caller"])
	require.Equal(t, float64(2), captured.params[0]["assetId"])
}
