package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/podiumlabs/rehearsal-gateway/internal/config"
	"github.com/podiumlabs/rehearsal-gateway/internal/observability"
)

// RealtimeClient implements LiveClient against the realtime append/commit
// WebSocket protocol: mint a short-lived token over HTTP, dial the socket
// carrying it, stream base64 PCM16 frames, and demultiplex inbound events.
type RealtimeClient struct {
	cfg        *config.Config
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     zerolog.Logger

	mu      sync.Mutex
	state   SessionState
	conn    *websocket.Conn
	reading bool

	// pendingSamples counts audio appended since the last commit; used for
	// commit eligibility bookkeeping only, never for transcript correctness.
	pendingSamples atomic.Int64

	events      chan TranscriptEvent
	closeEvents sync.Once
	cancel      context.CancelFunc
}

// NewRealtimeClient creates a realtime streaming client
func NewRealtimeClient(cfg *config.Config) *RealtimeClient {
	return &RealtimeClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		dialer:     websocket.DefaultDialer,
		logger:     observability.GetLogger().With().Str("component", "realtime_client").Logger(),
		state:      StateDisconnected,
		events:     make(chan TranscriptEvent, 64),
	}
}

type tokenResponse struct {
	Token        string `json:"token"`
	ClientSecret any    `json:"client_secret"`
	ExpiresAt    int64  `json:"expires_at"`
	SessionID    string `json:"id"`
}

// token extracts the credential from the response, accepting the historical
// shapes: a flat "token" string, a "client_secret" string, or a nested
// {"client_secret": {"value": ...}} object.
func (t *tokenResponse) token() string {
	if t.Token != "" {
		return t.Token
	}
	switch secret := t.ClientSecret.(type) {
	case string:
		return secret
	case map[string]any:
		if v, ok := secret["value"].(string); ok {
			return v
		}
	}
	return ""
}

// Connect mints a session credential and opens the streaming connection.
// A credential failure is fatal for the session and surfaced immediately.
func (c *RealtimeClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("connect called in state %s", c.state)
	}
	c.state = StateConnecting
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	token, err := c.fetchToken(ctx)
	if err != nil {
		c.terminate()
		return err
	}

	// Stop may have raced the token request; its result is ignored then.
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return &SetupError{Message: "session stopped before connection opened"}
	}
	c.mu.Unlock()

	wsURL := c.cfg.STTWSURL + "/realtime/ws?token=" + url.QueryEscape(token)
	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		c.terminate()
		return &ConnectionError{Message: "failed to open realtime connection: " + err.Error()}
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		_ = conn.Close()
		return &SetupError{Message: "session stopped before connection opened"}
	}
	c.conn = conn
	c.state = StateOpen
	c.reading = true
	c.mu.Unlock()

	go c.readLoop(conn)

	c.logger.Info().Msg("Realtime streaming session open")
	return nil
}

func (c *RealtimeClient) fetchToken(ctx context.Context) (string, error) {
	if c.cfg.STTAPIKey == "" {
		return "", &SetupError{Message: "speech-to-text API key is not configured"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.STTBaseURL+"/realtime/token", bytes.NewReader(nil))
	if err != nil {
		return "", &SetupError{Message: "failed to build token request: " + err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.STTAPIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &SetupError{Message: "failed to obtain session credential: " + err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &SetupError{Message: fmt.Sprintf("credential endpoint returned %d: %s", resp.StatusCode, string(body))}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", &SetupError{Message: "failed to decode credential response: " + err.Error()}
	}
	token := tr.token()
	if token == "" {
		return "", &SetupError{Message: "credential response is missing the token field"}
	}
	return token, nil
}

type appendMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type commitMessage struct {
	Type string `json:"type"`
}

// AppendFrame sends one PCM16 frame. Outside Open it is a deliberate no-op:
// frames produced during connection setup are dropped, not queued.
func (c *RealtimeClient) AppendFrame(frame []byte) error {
	c.mu.Lock()
	if c.state != StateOpen || c.conn == nil {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	msg := appendMessage{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(frame),
	}
	err := conn.WriteJSON(msg)
	c.mu.Unlock()

	if err != nil {
		return &ConnectionError{Message: "failed to append audio: " + err.Error()}
	}
	c.pendingSamples.Add(int64(len(frame) / 2))
	return nil
}

// Commit asks the backend to recognize all audio appended since the
// previous commit.
func (c *RealtimeClient) Commit() error {
	c.mu.Lock()
	if c.state != StateOpen || c.conn == nil {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	err := conn.WriteJSON(commitMessage{Type: "input_audio_buffer.commit"})
	c.mu.Unlock()

	if err != nil {
		return &ConnectionError{Message: "failed to commit audio buffer: " + err.Error()}
	}
	c.pendingSamples.Store(0)
	return nil
}

// PendingSamples returns the audio appended since the last commit.
func (c *RealtimeClient) PendingSamples() int64 {
	return c.pendingSamples.Load()
}

func (c *RealtimeClient) readLoop(conn *websocket.Conn) {
	defer c.closeEvents.Do(func() { close(c.events) })

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasOpen := c.state == StateOpen
			c.mu.Unlock()
			if wasOpen {
				// Terminal for this session; the caller decides whether to
				// start a new one.
				c.emit(TranscriptEvent{Kind: KindFailed, Reason: "connection closed: " + err.Error(), Terminal: true})
				observability.RecordError("connection_closed", "realtime_client")
			}
			c.terminate()
			return
		}

		ev, ok := decodeTranscriptEvent(data)
		if !ok {
			continue
		}
		observability.RecordTranscriptEvent(ev.Kind.String())
		c.emit(ev)
	}
}

func (c *RealtimeClient) emit(ev TranscriptEvent) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn().Str("kind", ev.Kind.String()).Msg("Event channel full, dropping transcript event")
	}
}

// Events returns the transcript event stream
func (c *RealtimeClient) Events() <-chan TranscriptEvent {
	return c.events
}

// State returns the current session state
func (c *RealtimeClient) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stop closes the session from any state. Idempotent. A credential request
// still in flight is abandoned and its result ignored.
func (c *RealtimeClient) Stop() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	cancel := c.cancel
	conn := c.conn
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	c.terminate()
	return nil
}

// terminate moves the session to Closed and releases the connection. Once a
// read loop is running it owns the events channel; terminate closes it only
// when no reader ever started, so a concurrent emit cannot race the close.
func (c *RealtimeClient) terminate() {
	c.mu.Lock()
	c.state = StateClosed
	c.conn = nil
	reading := c.reading
	c.mu.Unlock()
	if !reading {
		c.closeEvents.Do(func() { close(c.events) })
	}
}
