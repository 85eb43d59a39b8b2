package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type client struct {
	url        string
	auth       string
	httpClient *http.Client
	format     string
	out        io.Writer
	errOut     io.Writer
}

func main() {
	defaultRPC := strings.TrimSpace(os.Getenv("ESCROWD_RPC_URL"))
	if defaultRPC == "" {
		defaultRPC = "http://127.0.0.1:8080"
	}
	defaultAuth := strings.TrimSpace(os.Getenv("ESCROWD_RPC_TOKEN"))

	root := flag.NewFlagSet("escrowctl", flag.ExitOnError)
	rpcURL := root.String("rpc", defaultRPC, "JSON-RPC endpoint")
	authToken := root.String("auth", defaultAuth, "Bearer token for authenticated RPC calls")
	format := root.String("o", "json", "Output format: json or yaml")
	root.Parse(os.Args[1:])

	c := &client{
		url:        *rpcURL,
		auth:       *authToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		format:     *format,
		out:        os.Stdout,
		errOut:     os.Stderr,
	}
	os.Exit(c.run(root.Args()))
}

// command describes one subcommand: the flags it accepts and how they map onto
// the single JSON-RPC params object.
type command struct {
	method   string
	summary  string
	required []string
	build    func(fs *flag.FlagSet) func() (interface{}, error)
}

var commands = map[string]command{
	"list": {
		method:   "escrow_list",
		summary:  "--caller A --asset N --buyer B --price X --deposit Y",
		required: []string{"caller", "asset", "buyer", "price", "deposit"},
		build: func(fs *flag.FlagSet) func() (interface{}, error) {
			caller, asset := callerFlags(fs)
			buyer := fs.String("buyer", "", "buyer Bech32 address")
			price := fs.String("price", "", "purchase price")
			deposit := fs.String("deposit", "", "required earnest deposit")
			return func() (interface{}, error) {
				id, err := parseAsset(*asset)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{
					"caller":        *caller,
					"assetId":       id,
					"buyer":         *buyer,
					"purchasePrice": *price,
					"escrowAmount":  *deposit,
				}, nil
			}
		},
	},
	"cancel-listing": actorCommand("escrow_cancelListing"),
	"approve":        actorCommand("escrow_approveSale"),
	"finalize":       actorCommand("escrow_finalizeSale"),
	"cancel":         actorCommand("escrow_cancelSale"),
	"mark-inspected": actorCommand("escrow_markInspected"),
	"deposit":        valueCommand("escrow_depositEarnest"),
	"fund":           valueCommand("escrow_fundListing"),
	"inspect": {
		method:   "escrow_updateInspection",
		summary:  "--caller A --asset N --passed=true|false",
		required: []string{"caller", "asset"},
		build: func(fs *flag.FlagSet) func() (interface{}, error) {
			caller, asset := callerFlags(fs)
			passed := fs.Bool("passed", false, "inspection outcome")
			return func() (interface{}, error) {
				id, err := parseAsset(*asset)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"caller": *caller, "assetId": id, "passed": *passed}, nil
			}
		},
	},
	"comment": {
		method:   "escrow_setInspectionComments",
		summary:  "--caller A --assets N[,N...] --text T",
		required: []string{"caller", "assets", "text"},
		build: func(fs *flag.FlagSet) func() (interface{}, error) {
			caller := fs.String("caller", "", "inspector Bech32 address")
			assets := fs.String("assets", "", "comma separated asset ids")
			text := fs.String("text", "", "inspection comments")
			return func() (interface{}, error) {
				var ids []uint64
				for _, part := range strings.Split(*assets, ",") {
					id, err := parseAsset(part)
					if err != nil {
						return nil, err
					}
					ids = append(ids, id)
				}
				params := map[string]interface{}{"caller": *caller, "comments": *text}
				if len(ids) == 1 {
					params["assetId"] = ids[0]
				} else {
					params["assetIds"] = ids
				}
				return params, nil
			}
		},
	},
	"get":     assetCommand("escrow_getListing"),
	"owner":   assetCommand("deed_ownerOf"),
	"balance": {method: "escrow_getBalance", summary: "", build: noParams},
	"roles":   {method: "escrow_getRoles", summary: "", build: noParams},
	"approval": {
		method:   "escrow_getApproval",
		summary:  "--asset N --address A",
		required: []string{"asset", "address"},
		build: func(fs *flag.FlagSet) func() (interface{}, error) {
			asset := fs.String("asset", "", "asset id")
			address := fs.String("address", "", "party Bech32 address")
			return func() (interface{}, error) {
				id, err := parseAsset(*asset)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"assetId": id, "address": *address}, nil
			}
		},
	},
	"events": {
		method:  "escrow_listEvents",
		summary: "[--type T] [--asset N] [--after S] [--limit N]",
		build: func(fs *flag.FlagSet) func() (interface{}, error) {
			eventType := fs.String("type", "", "event type filter")
			asset := fs.String("asset", "", "asset id filter")
			after := fs.Uint64("after", 0, "return events after this sequence")
			limit := fs.Int("limit", 50, "maximum number of events")
			return func() (interface{}, error) {
				params := map[string]interface{}{"after": *after, "limit": *limit}
				if strings.TrimSpace(*eventType) != "" {
					params["type"] = strings.TrimSpace(*eventType)
				}
				if strings.TrimSpace(*asset) != "" {
					id, err := parseAsset(*asset)
					if err != nil {
						return nil, err
					}
					params["assetId"] = id
				}
				return params, nil
			}
		},
	},
	"mint": {
		method:   "deed_mint",
		summary:  "--owner A",
		required: []string{"owner"},
		build: func(fs *flag.FlagSet) func() (interface{}, error) {
			owner := fs.String("owner", "", "initial deed owner")
			return func() (interface{}, error) {
				return map[string]interface{}{"owner": *owner}, nil
			}
		},
	},
	"deed-approve": {
		method:   "deed_approve",
		summary:  "--caller A --to B --asset N",
		required: []string{"caller", "to", "asset"},
		build: func(fs *flag.FlagSet) func() (interface{}, error) {
			caller, asset := callerFlags(fs)
			to := fs.String("to", "", "approved Bech32 address")
			return func() (interface{}, error) {
				id, err := parseAsset(*asset)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"caller": *caller, "to": *to, "assetId": id}, nil
			}
		},
	},
	"operator": {
		method:   "deed_setApprovalForAll",
		summary:  "--caller A --operator B [--revoke]",
		required: []string{"caller", "operator"},
		build: func(fs *flag.FlagSet) func() (interface{}, error) {
			caller := fs.String("caller", "", "deed owner Bech32 address")
			operator := fs.String("operator", "", "operator Bech32 address")
			revoke := fs.Bool("revoke", false, "revoke instead of grant")
			return func() (interface{}, error) {
				return map[string]interface{}{"caller": *caller, "operator": *operator, "approved": !*revoke}, nil
			}
		},
	},
	"account": {
		method:   "account_getBalance",
		summary:  "--address A",
		required: []string{"address"},
		build: func(fs *flag.FlagSet) func() (interface{}, error) {
			addr := fs.String("address", "", "account Bech32 address")
			return func() (interface{}, error) { return strings.TrimSpace(*addr), nil }
		},
	},
}

func callerFlags(fs *flag.FlagSet) (*string, *string) {
	return fs.String("caller", "", "calling Bech32 address"), fs.String("asset", "", "asset id")
}

func actorCommand(method string) command {
	return command{
		method:   method,
		summary:  "--caller A --asset N",
		required: []string{"caller", "asset"},
		build: func(fs *flag.FlagSet) func() (interface{}, error) {
			caller, asset := callerFlags(fs)
			return func() (interface{}, error) {
				id, err := parseAsset(*asset)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"caller": *caller, "assetId": id}, nil
			}
		},
	}
}

func valueCommand(method string) command {
	return command{
		method:   method,
		summary:  "--caller A --asset N --value X",
		required: []string{"caller", "asset", "value"},
		build: func(fs *flag.FlagSet) func() (interface{}, error) {
			caller, asset := callerFlags(fs)
			value := fs.String("value", "", "attached value")
			return func() (interface{}, error) {
				id, err := parseAsset(*asset)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"caller": *caller, "assetId": id, "value": *value}, nil
			}
		},
	}
}

func assetCommand(method string) command {
	return command{
		method:   method,
		summary:  "--asset N",
		required: []string{"asset"},
		build: func(fs *flag.FlagSet) func() (interface{}, error) {
			asset := fs.String("asset", "", "asset id")
			return func() (interface{}, error) {
				id, err := parseAsset(*asset)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"assetId": id}, nil
			}
		},
	}
}

func noParams(*flag.FlagSet) func() (interface{}, error) {
	return func() (interface{}, error) { return nil, nil }
}

func parseAsset(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid asset id %q", raw)
	}
	return id, nil
}

func (c *client) run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(c.errOut, usage())
		return 1
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(c.errOut, "unknown command: %s\n", args[0])
		fmt.Fprintln(c.errOut, usage())
		return 1
	}
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	build := cmd.build(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = strings.TrimSpace(f.Value.String()) != "" })
	for _, name := range cmd.required {
		if !set[name] {
			fmt.Fprintf(c.errOut, "--%s is required\n", name)
			return 1
		}
	}
	params, err := build()
	if err != nil {
		fmt.Fprintln(c.errOut, err)
		return 1
	}
	var payload []interface{}
	if params != nil {
		payload = []interface{}{params}
	}
	result, rpcErr, err := c.call(cmd.method, payload)
	if err != nil {
		fmt.Fprintf(c.errOut, "RPC call failed: %v\n", err)
		return 1
	}
	if rpcErr != nil {
		c.printRPCError(rpcErr)
		return 1
	}
	if err := c.printResult(result); err != nil {
		fmt.Fprintf(c.errOut, "decode response: %v\n", err)
		return 1
	}
	return 0
}

func (c *client) call(method string, params []interface{}) (json.RawMessage, *rpcError, error) {
	if params == nil {
		params = []interface{}{}
	}
	reqBody := rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: int(time.Now().UnixNano() & 0x7fffffff)}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, nil, err
	}
	httpReq, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.auth) != "" {
		httpReq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.auth))
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, nil, fmt.Errorf("rpc status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error, nil
	}
	return rpcResp.Result, nil, nil
}

func (c *client) printRPCError(err *rpcError) {
	fmt.Fprintf(c.errOut, "RPC error (%d): %s\n", err.Code, err.Message)
	if len(err.Data) > 0 && string(err.Data) != "null" {
		fmt.Fprintf(c.errOut, "Details: %s\n", strings.TrimSpace(string(err.Data)))
	}
}

func (c *client) printResult(raw json.RawMessage) error {
	if strings.EqualFold(strings.TrimSpace(c.format), "yaml") {
		var decoded interface{}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return err
		}
		data, err := yaml.Marshal(decoded)
		if err != nil {
			return err
		}
		_, err = c.out.Write(data)
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	fmt.Fprintln(c.out, buf.String())
	return nil
}

func usage() string {
	var b strings.Builder
	b.WriteString("escrowctl usage:\n  escrowctl [--rpc URL] [--auth TOKEN] [-o json|yaml] <command> [options]\n\nCommands:\n")
	names := []string{
		"mint", "deed-approve", "owner", "list", "cancel-listing", "deposit", "fund",
		"inspect", "comment", "approve", "finalize", "cancel", "get", "approval",
		"balance", "roles", "events",
	}
	for _, name := range names {
		fmt.Fprintf(&b, "  %-15s %s\n", name, commands[name].summary)
	}
	return b.String()
}
