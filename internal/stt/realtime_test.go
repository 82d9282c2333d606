package stt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/podiumlabs/rehearsal-gateway/internal/config"
)

func realtimeTestConfig(baseURL string) *config.Config {
	return &config.Config{
		STTAPIKey:  "test-key",
		STTBaseURL: baseURL,
		STTWSURL:   "ws" + strings.TrimPrefix(baseURL, "http"),
		SampleRate: 16000,
	}
}

// realtimeTestServer serves the token endpoint and the streaming socket from
// one httptest server, mimicking the realtime backend.
func realtimeTestServer(t *testing.T, wsHandler func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/realtime/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": "session-token"})
	})
	mux.HandleFunc("/realtime/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "session-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		wsHandler(conn)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRealtimeClient_ConnectStreamStop(t *testing.T) {
	srv := realtimeTestServer(t, func(conn *websocket.Conn) {
		// Expect one append then one commit, answer with a final transcript.
		var appendMsg map[string]string
		if err := conn.ReadJSON(&appendMsg); err != nil {
			t.Errorf("read append: %v", err)
			return
		}
		if appendMsg["type"] != "input_audio_buffer.append" || appendMsg["audio"] == "" {
			t.Errorf("unexpected append message: %v", appendMsg)
		}
		var commitMsg map[string]string
		if err := conn.ReadJSON(&commitMsg); err != nil {
			t.Errorf("read commit: %v", err)
			return
		}
		if commitMsg["type"] != "input_audio_buffer.commit" {
			t.Errorf("unexpected commit message: %v", commitMsg)
		}
		conn.WriteJSON(map[string]string{
			"type":       "conversation.item.input_audio_transcription.completed",
			"transcript": "hello world.",
		})
		// Hold the socket open until the client hangs up.
		conn.ReadMessage()
	})

	client := NewRealtimeClient(realtimeTestConfig(srv.URL))
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if got := client.State(); got != StateOpen {
		t.Fatalf("State() = %v, want %v", got, StateOpen)
	}

	if err := client.AppendFrame([]byte{0x10, 0x00, 0x20, 0x00}); err != nil {
		t.Fatalf("AppendFrame() error = %v", err)
	}
	if got := client.PendingSamples(); got != 2 {
		t.Errorf("PendingSamples() = %d, want 2", got)
	}
	if err := client.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if got := client.PendingSamples(); got != 0 {
		t.Errorf("PendingSamples() after commit = %d, want 0", got)
	}

	select {
	case ev := <-client.Events():
		if ev.Kind != KindFinal {
			t.Errorf("event kind = %v, want %v", ev.Kind, KindFinal)
		}
		if ev.Text != "hello world." {
			t.Errorf("event text = %q, want %q", ev.Text, "hello world.")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transcript event")
	}

	if err := client.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := client.State(); got != StateClosed {
		t.Errorf("State() after stop = %v, want %v", got, StateClosed)
	}

	// The event channel drains and closes once the read loop exits.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-client.Events():
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("event channel never closed after Stop")
		}
	}
}

func TestRealtimeClient_TokenFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no capacity", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewRealtimeClient(realtimeTestConfig(srv.URL))
	err := client.Connect(context.Background())
	if err == nil {
		t.Fatal("Connect() should fail when the credential request fails")
	}
	var setupErr *SetupError
	if !errors.As(err, &setupErr) {
		t.Errorf("Connect() error = %T, want *SetupError", err)
	}
	if got := client.State(); got != StateClosed {
		t.Errorf("State() = %v, want %v", got, StateClosed)
	}
	if _, open := <-client.Events(); open {
		t.Error("event channel should be closed after a failed connect")
	}
}

func TestRealtimeClient_MissingAPIKey(t *testing.T) {
	cfg := realtimeTestConfig("http://127.0.0.1:1")
	cfg.STTAPIKey = ""
	client := NewRealtimeClient(cfg)
	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("Connect() should fail without an API key")
	}
}

func TestRealtimeClient_AppendOutsideOpenIsNoop(t *testing.T) {
	client := NewRealtimeClient(realtimeTestConfig("http://127.0.0.1:1"))
	if err := client.AppendFrame([]byte{0x01, 0x02}); err != nil {
		t.Errorf("AppendFrame() before connect = %v, want nil", err)
	}
	if err := client.Commit(); err != nil {
		t.Errorf("Commit() before connect = %v, want nil", err)
	}
	if got := client.PendingSamples(); got != 0 {
		t.Errorf("PendingSamples() = %d, want 0 for dropped frames", got)
	}
}

func TestRealtimeClient_StopDuringConnecting(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		json.NewEncoder(w).Encode(map[string]string{"token": "late-token"})
	}))
	defer srv.Close()
	defer close(release)

	client := NewRealtimeClient(realtimeTestConfig(srv.URL))

	connectDone := make(chan error, 1)
	go func() {
		connectDone <- client.Connect(context.Background())
	}()

	// Wait for the client to enter Connecting before stopping it.
	for i := 0; i < 100 && client.State() != StateConnecting; i++ {
		time.Sleep(5 * time.Millisecond)
	}
	if err := client.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	select {
	case err := <-connectDone:
		if err == nil {
			t.Error("Connect() should fail when stopped mid-handshake")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect() did not return after Stop")
	}

	if got := client.State(); got != StateClosed {
		t.Errorf("State() = %v, want %v", got, StateClosed)
	}
	if err := client.AppendFrame([]byte{0x01, 0x02}); err != nil {
		t.Errorf("AppendFrame() after abandoned connect = %v, want nil", err)
	}
}

func TestRealtimeClient_StopIdempotent(t *testing.T) {
	client := NewRealtimeClient(realtimeTestConfig("http://127.0.0.1:1"))
	for i := 0; i < 3; i++ {
		if err := client.Stop(); err != nil {
			t.Fatalf("Stop() call %d error = %v", i+1, err)
		}
	}
}

func TestTokenResponse_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"flat token", `{"token":"abc"}`, "abc"},
		{"client_secret string", `{"client_secret":"xyz"}`, "xyz"},
		{"nested client_secret", `{"client_secret":{"value":"nested"}}`, "nested"},
		{"missing", `{"id":"sess_1"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tr tokenResponse
			if err := json.Unmarshal([]byte(tt.payload), &tr); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := tr.token(); got != tt.want {
				t.Errorf("token() = %q, want %q", got, tt.want)
			}
		})
	}
}
