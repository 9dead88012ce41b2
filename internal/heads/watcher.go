// Package heads subscribes to new block headers over a websocket endpoint.
// The receipt tracker uses the notifications to poll as soon as a block lands
// instead of waiting out its poll interval.
package heads

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
)

// WSURL derives a websocket URL from an HTTP RPC URL.
func WSURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	}
	return httpURL
}

type subscriptionError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type headParams struct {
	Subscription string `json:"subscription"`
	Result       struct {
		Number string `json:"number"`
	} `json:"result"`
}

// headMessage is either the subscribe reply or an eth_subscription notification.
type headMessage struct {
	ID     int                `json:"id"`
	Error  *subscriptionError `json:"error"`
	Method string             `json:"method"`
	Params *headParams        `json:"params"`
}

// Watch dials wsURL, subscribes to newHeads and streams block numbers.
// The channel is closed when ctx is done or the connection drops.
// Slow consumers miss notifications rather than stall the reader.
func Watch(ctx context.Context, wsURL string, logger *slog.Logger) (<-chan uint64, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	subscribeMsg := map[string]any{
		"jsonrpc": "2.0",
		"method":  "eth_subscribe",
		"params":  []string{"newHeads"},
		"id":      1,
	}
	if err := conn.WriteJSON(subscribeMsg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe to newHeads: %w", err)
	}

	out := make(chan uint64, 1)

	// Unblock ReadJSON when the caller goes away.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	})

	go func() {
		defer close(out)
		defer stop()
		defer conn.Close()

		for {
			var msg headMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if ctx.Err() == nil {
					logger.Debug("newHeads websocket read error", "error", err)
				}
				return
			}

			if msg.Error != nil {
				logger.Warn("newHeads subscription rejected", "code", msg.Error.Code, "message", msg.Error.Message)
				return
			}
			if msg.Params == nil {
				continue // subscription ack
			}

			number, err := hexutil.DecodeUint64(msg.Params.Result.Number)
			if err != nil {
				logger.Debug("bad block number in newHeads", "number", msg.Params.Result.Number, "error", err)
				continue
			}

			select {
			case out <- number:
			default:
				// a wake-up is already queued
			}
		}
	}()

	logger.Info("subscribed to newHeads", "url", wsURL)
	return out, nil
}
