package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client talks to a running scribe server
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

type tokenResponse struct {
	Token string `json:"token"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// New creates a client for the server at baseURL, e.g. http://localhost:8080
func New(baseURL string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	return &Client{
		baseURL: u,
		http:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// OperatorToken exchanges the API key for an operator token
func (c *Client) OperatorToken(ctx context.Context, apiKey, operatorID string) (string, error) {
	return c.token(ctx, "/api/v1/auth/token", map[string]string{
		"api_key":     apiKey,
		"operator_id": operatorID,
	})
}

// DeviceToken authenticates a capture device
func (c *Client) DeviceToken(ctx context.Context, serialNumber, secretKey string) (string, error) {
	return c.token(ctx, "/api/v1/device/auth", map[string]string{
		"serial_number": serialNumber,
		"secret_key":    secretKey,
	})
}

func (c *Client) token(ctx context.Context, path string, body map[string]string) (string, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String()+path, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to authenticate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return "", fmt.Errorf("authentication failed with status %d: %s", resp.StatusCode, e.Message)
	}

	var t tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return "", fmt.Errorf("failed to decode auth response: %w", err)
	}
	if t.Token == "" {
		return "", errors.New("server returned an empty token")
	}
	return t.Token, nil
}

// Dial opens the WebSocket connection with the given token
func (c *Client) Dial(ctx context.Context, token string) (*websocket.Conn, error) {
	wsURL := *c.baseURL
	wsURL.Scheme = "ws"
	if c.baseURL.Scheme == "https" {
		wsURL.Scheme = "wss"
	}
	wsURL.Path = strings.TrimRight(wsURL.Path, "/") + "/ws"
	q := wsURL.Query()
	q.Set("token", token)
	wsURL.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	return conn, nil
}

// Tail hands every text message to handle until ctx is done or the server closes
func Tail(ctx context.Context, conn *websocket.Conn, handle func(message []byte)) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("failed to read message: %w", err)
		}
		if messageType == websocket.TextMessage {
			handle(message)
		}
	}
}

// Send writes a control message such as start or stop
func Send(conn *websocket.Conn, messageType string) error {
	return conn.WriteJSON(map[string]string{
		"type":      messageType,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// StreamPCM sends r as binary frames of frameBytes until EOF or ctx is done.
// It returns the number of bytes sent.
func StreamPCM(ctx context.Context, conn *websocket.Conn, r io.Reader, frameBytes int) (int64, error) {
	if frameBytes <= 0 {
		return 0, fmt.Errorf("frame size must be positive, got %d", frameBytes)
	}

	buf := make([]byte, frameBytes)
	var sent int64
	for {
		if err := ctx.Err(); err != nil {
			return sent, nil
		}

		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				return sent, fmt.Errorf("failed to send audio: %w", werr)
			}
			sent += int64(n)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return sent, nil
		}
		if err != nil {
			return sent, fmt.Errorf("failed to read audio: %w", err)
		}
	}
}
