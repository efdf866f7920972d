package chainclient

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pro123908/pepu-bridge-server/internal/relayerr"
)

// WSChainClient is the streaming transport, the push path spec §4.4 step 1
// derives via a URL-scheme rewrite (https→wss, /v3→/ws/v3). It speaks raw
// eth_subscribe/eth_unsubscribe JSON-RPC over a gorilla/websocket connection,
// grounded on the teacher's WebSocketRPCClient (src/chainadapter/rpc/websocket.go):
// a request/response map keyed by request ID plus a subscription-notification
// map keyed by subscription ID, both fed by one read loop goroutine.
// Reconnection itself is the Supervisor's responsibility (spec §4.4 step 3);
// WSChainClient exposes the subscribe primitive and otherwise delegates
// CallRead/SendTx/QueryLogs/BlockNumber to an embedded HTTPChainClient, since
// a single node exposes both transports over the same account.
type WSChainClient struct {
	*HTTPChainClient // CallRead / SendTx / QueryLogs / BlockNumber

	wsURL string
	log   *zap.SugaredLogger

	conn      *websocket.Conn
	requestID atomic.Int64

	mu           sync.Mutex
	pending      map[int64]chan rpcResponse
	subscription string
	notify       chan json.RawMessage
	closed       bool
	closeCh      chan struct{}
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcNotification struct {
	Method string `json:"method"`
	Params struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

// DeriveWebSocketURL rewrites an HTTPS JSON-RPC URL to its WebSocket
// equivalent exactly per spec §4.4: "https→wss, /v3→/ws/v3".
func DeriveWebSocketURL(httpURL string) string {
	u := strings.Replace(httpURL, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	u = strings.Replace(u, "/v3", "/ws/v3", 1)
	return u
}

// NewWSChainClient dials both the HTTPS endpoint (for reads/sends) and its
// derived WebSocket endpoint (for subscriptions), binding both to the same
// bridge contract/event.
func NewWSChainClient(ctx context.Context, httpURL string, privateKey *ecdsa.PrivateKey, binding BridgeBinding, log *zap.SugaredLogger) (*WSChainClient, error) {
	httpClient, err := NewHTTPChainClient(ctx, httpURL, privateKey, binding, log)
	if err != nil {
		return nil, err
	}

	wsURL := DeriveWebSocketURL(httpURL)
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, relayerr.NewConnectionError("dial websocket endpoint "+wsURL, err)
	}

	c := &WSChainClient{
		HTTPChainClient: httpClient,
		wsURL:           wsURL,
		log:             log,
		conn:            conn,
		pending:         make(map[int64]chan rpcResponse),
		closeCh:         make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// call performs one JSON-RPC request/response round-trip over the socket.
func (c *WSChainClient) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := c.requestID.Add(1)
	respCh := make(chan rpcResponse, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, relayerr.NewConnectionError("websocket client closed", nil)
	}
	c.pending[id] = respCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}

	c.mu.Lock()
	writeErr := c.conn.WriteJSON(req)
	c.mu.Unlock()
	if writeErr != nil {
		return nil, relayerr.NewConnectionError("write websocket request", writeErr)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, relayerr.NewChainError(fmt.Sprintf("json-rpc error: %s", resp.Error.Message), nil)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closeCh:
		return nil, relayerr.NewConnectionError("websocket client closed", nil)
	}
}

// Subscribe opens an eth_subscribe("logs", ...) stream for this client's
// bound bridge event, invoking handler for every decoded log. The returned
// cancel func unsubscribes and stops the handler goroutine; Close does not
// call it.
func (c *WSChainClient) Subscribe(ctx context.Context, handler EventHandler) (cancel func(), err error) {
	event, ok := c.bridgeABI.Events[c.eventName]
	if !ok {
		return nil, relayerr.NewChainError("unknown event "+c.eventName, nil)
	}

	filter := map[string]interface{}{
		"address": c.bridgeContract,
		"topics":  [][]common.Hash{{event.ID}},
	}

	result, err := c.call(ctx, "eth_subscribe", []interface{}{"logs", filter})
	if err != nil {
		return nil, relayerr.NewConnectionError("eth_subscribe logs", err)
	}

	var subID string
	if err := json.Unmarshal(result, &subID); err != nil {
		return nil, relayerr.NewChainError("parse subscription id", err)
	}

	notify := make(chan json.RawMessage, 256)
	c.mu.Lock()
	c.subscription = subID
	c.notify = notify
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case raw := <-notify:
				var lg types.Log
				if err := json.Unmarshal(raw, &lg); err != nil {
					c.log.Warnw("failed to decode streamed log notification, dropping", "event", c.eventName, "err", err)
					continue
				}
				args := map[string]interface{}{}
				if len(lg.Data) > 0 {
					if err := c.bridgeABI.UnpackIntoMap(args, c.eventName, lg.Data); err != nil {
						c.log.Warnw("failed to unpack streamed log, dropping", "event", c.eventName, "err", err)
						continue
					}
				}
				handler(Event{
					Name:            c.eventName,
					Args:            args,
					TransactionHash: lg.TxHash.Hex(),
					Log:             &LogEnvelope{TransactionHash: lg.TxHash.Hex()},
					BlockNumber:     lg.BlockNumber,
					Raw:             lg.TxHash,
				})
			}
		}
	}()

	cancelFn := func() {
		close(done)
		_, _ = c.call(context.Background(), "eth_unsubscribe", []interface{}{subID})
		c.mu.Lock()
		c.subscription = ""
		c.notify = nil
		c.mu.Unlock()
	}
	return cancelFn, nil
}

// readLoop is the sole goroutine reading from the socket, demultiplexing
// JSON-RPC responses (by request id) from subscription notifications (by
// subscription id) and fanning them out to the waiting caller/subscriber.
// Mirrors the teacher's WebSocketRPCClient.readLoop shape.
func (c *WSChainClient) readLoop() {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Warnw("websocket read failed, awaiting supervisor reconnect", "err", err)
			return
		}

		var partial struct {
			ID     *int64 `json:"id"`
			Method string `json:"method"`
		}
		if err := json.Unmarshal(raw, &partial); err != nil {
			continue
		}

		if partial.ID != nil {
			var resp rpcResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[*partial.ID]
			c.mu.Unlock()
			if ok {
				ch <- resp
			}
			continue
		}

		if partial.Method == "eth_subscription" {
			var notif rpcNotification
			if err := json.Unmarshal(raw, &notif); err != nil {
				continue
			}
			c.mu.Lock()
			subID, notify := c.subscription, c.notify
			c.mu.Unlock()
			if notify != nil && notif.Params.Subscription == subID {
				select {
				case notify <- notif.Params.Result:
				default:
					c.log.Warnw("subscription notification channel full, dropping", "event", c.eventName)
				}
			}
		}
	}
}

// Close tears down both the WebSocket and HTTP transports. It sends no
// eth_unsubscribe and does not stop a Subscribe handler goroutine; only the
// cancel func returned by Subscribe does that. Idempotent.
func (c *WSChainClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.HTTPChainClient.Close()
	}
	c.closed = true
	close(c.closeCh)
	c.mu.Unlock()

	_ = c.conn.Close()
	return c.HTTPChainClient.Close()
}

var _ ChainClient = (*WSChainClient)(nil)
