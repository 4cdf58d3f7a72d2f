package sui

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

// SuiCoinType is the native gas coin.
const SuiCoinType = "0x2::sui::SUI"

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrObjectNotFound      = errors.New("object not found")
)

// RPCError is the error object of a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type Coin struct {
	CoinType     string `json:"coinType"`
	CoinObjectID string `json:"coinObjectId"`
	Version      string `json:"version"`
	Digest       string `json:"digest"`
	Balance      string `json:"balance"`
}

type coinPage struct {
	Data        []Coin  `json:"data"`
	NextCursor  *string `json:"nextCursor"`
	HasNextPage bool    `json:"hasNextPage"`
}

// SequenceNumber is an object version. Nodes encode it either as a JSON
// string or as a number depending on the endpoint.
type SequenceNumber string

func (n *SequenceNumber) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = SequenceNumber(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	*n = SequenceNumber(num.String())
	return nil
}

// ObjectRef identifies one version of an on-chain object.
type ObjectRef struct {
	ObjectID string         `json:"objectId"`
	Version  SequenceNumber `json:"version"`
	Digest   string         `json:"digest"`
}

// TransactionBytes is an unsigned transaction built by the fullnode together
// with the gas coins it pays with.
type TransactionBytes struct {
	Bytes []byte
	Gas   []ObjectRef
}

type objectResponse struct {
	Data  *ObjectRef `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

// MoveCall describes an entry function call to be built by the fullnode.
type MoveCall struct {
	Signer        string
	PackageID     string
	Module        string
	Function      string
	TypeArguments []string
	Arguments     []any
	Gas           string
	GasBudget     uint64
}

type ExecutionStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type TransactionEffects struct {
	Status ExecutionStatus `json:"status"`
}

type TransactionBlock struct {
	Digest  string              `json:"digest"`
	Effects *TransactionEffects `json:"effects"`
}

// Succeeded reports whether the effects carry a success status.
func (t *TransactionBlock) Succeeded() bool {
	return t.Effects != nil && t.Effects.Status.Status == "success"
}

// Failure returns the execution error, or a generic message when the node
// did not provide one.
func (t *TransactionBlock) Failure() string {
	if t.Effects == nil {
		return "no effects"
	}
	if t.Effects.Status.Error != "" {
		return t.Effects.Status.Error
	}
	return t.Effects.Status.Status
}

// Client is a JSON-RPC client for a Sui fullnode.
type Client struct {
	http *resty.Client
	seq  atomic.Uint64
}

func NewClient(rpcURL string, timeout time.Duration) *Client {
	h := resty.New().
		SetBaseURL(rpcURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Client{http: h}
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	req := rpcRequest{JSONRPC: "2.0", ID: c.seq.Add(1), Method: method, Params: params}

	resp, err := c.http.R().SetContext(ctx).SetBody(req).Post("")
	if err != nil {
		return fmt.Errorf("sui %s: %w", method, err)
	}
	if resp.IsError() {
		return fmt.Errorf("sui %s: http status %d", method, resp.StatusCode())
	}

	var rr rpcResponse
	if err := json.Unmarshal(resp.Body(), &rr); err != nil {
		return fmt.Errorf("sui %s: decode response: %w", method, err)
	}
	if rr.Error != nil {
		return fmt.Errorf("sui %s: %w", method, rr.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rr.Result, out); err != nil {
		return fmt.Errorf("sui %s: decode result: %w", method, err)
	}
	return nil
}

// GetCoins returns the first page of coins of coinType owned by owner.
func (c *Client) GetCoins(ctx context.Context, owner, coinType string) ([]Coin, error) {
	var page coinPage
	if err := c.call(ctx, "suix_getCoins", []any{owner, coinType, nil, nil}, &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

// MoveCall asks the fullnode to build an unsigned transaction and returns
// its BCS bytes.
func (c *Client) MoveCall(ctx context.Context, mc MoveCall) (*TransactionBytes, error) {
	typeArgs := mc.TypeArguments
	if typeArgs == nil {
		typeArgs = []string{}
	}
	var gas any
	if mc.Gas != "" {
		gas = mc.Gas
	}
	params := []any{
		mc.Signer, mc.PackageID, mc.Module, mc.Function,
		typeArgs, mc.Arguments, gas, strconv.FormatUint(mc.GasBudget, 10),
	}

	var res struct {
		TxBytes string      `json:"txBytes"`
		Gas     []ObjectRef `json:"gas"`
	}
	if err := c.call(ctx, "unsafe_moveCall", params, &res); err != nil {
		return nil, err
	}
	txBytes, err := base64.StdEncoding.DecodeString(res.TxBytes)
	if err != nil {
		return nil, fmt.Errorf("sui unsafe_moveCall: decode txBytes: %w", err)
	}
	return &TransactionBytes{Bytes: txBytes, Gas: res.Gas}, nil
}

var effectsOptions = map[string]bool{"showEffects": true}

// ExecuteTransactionBlock submits signed transaction bytes.
func (c *Client) ExecuteTransactionBlock(ctx context.Context, txBytes []byte, signatures []string) (*TransactionBlock, error) {
	params := []any{base64.StdEncoding.EncodeToString(txBytes), signatures, effectsOptions}

	var tb TransactionBlock
	if err := c.call(ctx, "sui_executeTransactionBlock", params, &tb); err != nil {
		return nil, err
	}
	return &tb, nil
}

// GetTransactionBlock fetches an executed transaction. Unknown digests
// return ErrTransactionNotFound.
func (c *Client) GetTransactionBlock(ctx context.Context, digest string) (*TransactionBlock, error) {
	var tb TransactionBlock
	err := c.call(ctx, "sui_getTransactionBlock", []any{digest, effectsOptions}, &tb)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && isNotFound(rpcErr) {
			return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, digest)
		}
		return nil, err
	}
	return &tb, nil
}

// GetObject returns the current version of an object. Deleted or unknown
// objects return ErrObjectNotFound.
func (c *Client) GetObject(ctx context.Context, id string) (*ObjectRef, error) {
	var res objectResponse
	if err := c.call(ctx, "sui_getObject", []any{id, map[string]bool{}}, &res); err != nil {
		return nil, err
	}
	if res.Error != nil || res.Data == nil {
		code := "missing"
		if res.Error != nil {
			code = res.Error.Code
		}
		return nil, fmt.Errorf("%w: %s (%s)", ErrObjectNotFound, id, code)
	}
	return res.Data, nil
}

func isNotFound(e *RPCError) bool {
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "could not find") || strings.Contains(msg, "not found")
}
