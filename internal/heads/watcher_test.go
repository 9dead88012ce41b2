package heads

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"
)

func TestWSURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://localhost:8545", "ws://localhost:8545"},
		{"https://rpc.example.com/v1", "wss://rpc.example.com/v1"},
		{"ws://already:8546", "ws://already:8546"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, WSURL(tt.in), tt.in)
	}
}

// newHeadsServer acks the subscription, pushes the given block numbers and
// then holds the connection open until the client leaves.
func newHeadsServer(t *testing.T, numbers ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub struct {
			Method string   `json:"method"`
			Params []string `json:"params"`
		}
		if err := conn.ReadJSON(&sub); err != nil || sub.Method != "eth_subscribe" || sub.Params[0] != "newHeads" {
			return
		}
		_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": 1, "result": "0xcafe"})

		for _, n := range numbers {
			_ = conn.WriteJSON(map[string]any{
				"jsonrpc": "2.0",
				"method":  "eth_subscription",
				"params": map[string]any{
					"subscription": "0xcafe",
					"result":       map[string]string{"number": n},
				},
			})
		}

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWatch_StreamsBlockNumbers(t *testing.T) {
	srv := newHeadsServer(t, "0x10")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := Watch(ctx, WSURL(srv.URL), slogt.New(t))
	require.NoError(t, err)

	select {
	case n := <-ch:
		require.Equal(t, uint64(16), n)
	case <-time.After(2 * time.Second):
		t.Fatal("no head received")
	}

	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after cancel")
		}
	}
}

func TestWatch_ClosesWhenServerGoesAway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = conn.ReadMessage()
		conn.Close()
	}))
	defer srv.Close()

	ch, err := Watch(context.Background(), WSURL(srv.URL), slogt.New(t))
	require.NoError(t, err)

	select {
	case _, ok := <-ch:
		require.False(t, ok, "expected closed channel")
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after server hangup")
	}
}

func TestWatch_DialError(t *testing.T) {
	_, err := Watch(context.Background(), "ws://127.0.0.1:1", slogt.New(t))
	require.Error(t, err)
}
