package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	mu       sync.Mutex
	received []byte
	frames   int
	controls []string
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/auth/token", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["api_key"] != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "authentication_failed", "message": "Invalid API key"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "operator-token"})
	})

	mux.HandleFunc("/api/v1/device/auth", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "device-token"})
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"snapshot"}`))
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			f.mu.Lock()
			if mt == websocket.BinaryMessage {
				f.received = append(f.received, data...)
				f.frames++
			} else {
				var msg map[string]string
				json.Unmarshal(data, &msg)
				f.controls = append(f.controls, msg["type"])
			}
			f.mu.Unlock()
			if mt == websocket.TextMessage {
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ack"}`))
			}
		}
	})
	return mux
}

func setup(t *testing.T) (*Client, *fakeServer) {
	t.Helper()
	fake := &fakeServer{}
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	c, err := New(server.URL + "/")
	require.NoError(t, err)
	return c, fake
}

func TestNewRejectsBadScheme(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)
}

func TestTokens(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	token, err := c.OperatorToken(ctx, "key", "cli")
	require.NoError(t, err)
	assert.Equal(t, "operator-token", token)

	_, err = c.OperatorToken(ctx, "wrong", "cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	token, err = c.DeviceToken(ctx, "SN-1", "secret")
	require.NoError(t, err)
	assert.Equal(t, "device-token", token)
}

func TestTailAndSend(t *testing.T) {
	c, fake := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := c.Dial(ctx, "operator-token")
	require.NoError(t, err)

	require.NoError(t, Send(conn, "start"))

	var mu sync.Mutex
	var types []string
	done := make(chan error, 1)
	go func() {
		done <- Tail(ctx, conn, func(message []byte) {
			var msg map[string]string
			json.Unmarshal(message, &msg)
			mu.Lock()
			types = append(types, msg["type"])
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(types) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Tail did not return after cancel")
	}

	mu.Lock()
	assert.Equal(t, []string{"snapshot", "ack"}, types)
	mu.Unlock()

	fake.mu.Lock()
	assert.Equal(t, []string{"start"}, fake.controls)
	fake.mu.Unlock()
}

func TestStreamPCM(t *testing.T) {
	c, fake := setup(t)
	ctx := context.Background()

	conn, err := c.Dial(ctx, "device-token")
	require.NoError(t, err)
	defer conn.Close()

	pcm := bytes.Repeat([]byte{1, 2, 3, 4}, 250) // 1000 bytes
	sent, err := StreamPCM(ctx, conn, bytes.NewReader(pcm), 320)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), sent)

	require.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return len(fake.received) == 1000
	}, 2*time.Second, 10*time.Millisecond)

	fake.mu.Lock()
	assert.Equal(t, 4, fake.frames)
	assert.Equal(t, pcm, fake.received)
	fake.mu.Unlock()

	_, err = StreamPCM(ctx, conn, bytes.NewReader(pcm), 0)
	assert.Error(t, err)
}

func TestDialWithoutToken(t *testing.T) {
	c, _ := setup(t)
	_, err := c.Dial(context.Background(), "")
	assert.Error(t, err)
}
