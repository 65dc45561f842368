// Package rpc implements the connection layer: one JSON-RPC probe
// handle per configured endpoint, with per-probe timeouts and failure
// containment. Probes report results, never errors.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/chainpulse/chainpulse/internal/errors"
)

// maxResponseBytes bounds how much of an RPC response is read. Health
// probe responses are tiny; anything larger is a misbehaving endpoint.
const maxResponseBytes = 1 << 20

// client issues JSON-RPC 2.0 calls against a single endpoint URL.
type client struct {
	endpointID string
	url        string
	httpClient *http.Client
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call makes a single JSON-RPC call and returns the raw result.
func (c *client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return nil, errors.NewProbeError(errors.ErrorTypeInternal, method, c.endpointID, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewProbeError(errors.ErrorTypeInternal, method, c.endpointID, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.WrapTimeoutError(method, c.endpointID, ctx.Err())
		}
		return nil, errors.WrapConnectionError(method, c.endpointID, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.WrapConnectionError(method, c.endpointID, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.WrapRPCError(method, c.endpointID, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))))
	}

	var parsed rpcResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, errors.WrapRPCError(method, c.endpointID, fmt.Errorf("parse response: %w", err))
	}
	if parsed.Error != nil {
		return nil, errors.WrapRPCError(method, c.endpointID, fmt.Errorf("rpc error %d: %s", parsed.Error.Code, parsed.Error.Message))
	}

	return parsed.Result, nil
}

// callUint64 makes a call whose result is a hex quantity string.
func (c *client) callUint64(ctx context.Context, method string) (uint64, error) {
	raw, err := c.call(ctx, method, nil)
	if err != nil {
		return 0, err
	}
	var quantity string
	if err := json.Unmarshal(raw, &quantity); err != nil {
		return 0, errors.WrapRPCError(method, c.endpointID, fmt.Errorf("unexpected result %s", string(raw)))
	}
	value, err := parseHexUint64(quantity)
	if err != nil {
		return 0, errors.WrapRPCError(method, c.endpointID, err)
	}
	return value, nil
}

// syncState is the decoded eth_syncing result. Syncing=false means the
// node reports itself fully synced.
type syncState struct {
	Syncing      bool
	CurrentBlock uint64
	HighestBlock uint64
}

// callSyncing makes an eth_syncing call. The result is either the JSON
// literal false or an object with hex block quantities.
func (c *client) callSyncing(ctx context.Context) (syncState, error) {
	const method = "eth_syncing"

	raw, err := c.call(ctx, method, nil)
	if err != nil {
		return syncState{}, err
	}

	var notSyncing bool
	if err := json.Unmarshal(raw, &notSyncing); err == nil {
		return syncState{Syncing: false}, nil
	}

	var progress struct {
		CurrentBlock string `json:"currentBlock"`
		HighestBlock string `json:"highestBlock"`
	}
	if err := json.Unmarshal(raw, &progress); err != nil {
		return syncState{}, errors.WrapRPCError(method, c.endpointID, fmt.Errorf("unexpected result %s", string(raw)))
	}

	current, err := parseHexUint64(progress.CurrentBlock)
	if err != nil {
		return syncState{}, errors.WrapRPCError(method, c.endpointID, err)
	}
	highest, err := parseHexUint64(progress.HighestBlock)
	if err != nil {
		return syncState{}, errors.WrapRPCError(method, c.endpointID, err)
	}

	return syncState{Syncing: true, CurrentBlock: current, HighestBlock: highest}, nil
}

// parseHexUint64 decodes an 0x-prefixed hex quantity.
func parseHexUint64(quantity string) (uint64, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(quantity), "0x")
	if trimmed == "" {
		return 0, fmt.Errorf("empty hex quantity %q", quantity)
	}
	value, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hex quantity %q", quantity)
	}
	return value, nil
}
