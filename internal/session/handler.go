package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/podiumlabs/rehearsal-gateway/internal/audio"
	"github.com/podiumlabs/rehearsal-gateway/internal/config"
	"github.com/podiumlabs/rehearsal-gateway/internal/observability"
	"github.com/podiumlabs/rehearsal-gateway/internal/stt"
	"github.com/podiumlabs/rehearsal-gateway/internal/transcript"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the fronting proxy.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// ClientMessage is one inbound message on the live stream socket. Audio
// payloads default to little-endian PCM16 at the backend sample rate;
// capture devices that produce normalized float blocks or run at another
// rate declare it and are converted on ingress.
type ClientMessage struct {
	Type       string `json:"type"`
	Payload    string `json:"payload,omitempty"`    // base64 audio bytes
	Encoding   string `json:"encoding,omitempty"`   // "pcm16" (default) or "float32"
	SampleRate int    `json:"sampleRate,omitempty"` // source rate when not the backend's
}

// ServerMessage is one outbound message on the live stream socket
type ServerMessage struct {
	Type      string                `json:"type"`
	SessionID string                `json:"sessionId,omitempty"`
	Utterance *transcript.Utterance `json:"utterance,omitempty"`
	Text      string                `json:"text,omitempty"`
	Message   string                `json:"message,omitempty"`
}

// wsWriter serializes concurrent writes to one client socket. Aggregator
// callbacks and the handler goroutine both send.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) send(msg ServerMessage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteJSON(msg); err != nil {
		observability.RecordError("client_write_failed", "handler")
	}
}

// normalizeIngress converts one audio payload to little-endian PCM16 at the
// backend sample rate.
func normalizeIngress(cfg *config.Config, msg *ClientMessage, chunk []byte) ([]byte, error) {
	sourceRate := msg.SampleRate
	if sourceRate == 0 {
		sourceRate = cfg.SampleRate
	}

	switch msg.Encoding {
	case "", "pcm16":
		if sourceRate == cfg.SampleRate {
			return chunk, nil
		}
		samples, err := audio.DecodePCM16(chunk)
		if err != nil {
			return nil, err
		}
		return audio.PCM16Bytes(audio.Resample(samples, sourceRate, cfg.SampleRate)), nil

	case "float32":
		samples, err := audio.DecodeFloat32(chunk)
		if err != nil {
			return nil, err
		}
		pcm := audio.EncodePCM16(samples)
		if sourceRate != cfg.SampleRate {
			pcm = audio.Resample(pcm, sourceRate, cfg.SampleRate)
		}
		return audio.PCM16Bytes(pcm), nil

	default:
		return nil, fmt.Errorf("unsupported audio encoding %q", msg.Encoding)
	}
}

// HandleLiveStream is the WebSocket entry point for live transcription. The
// client streams base64 PCM16 audio messages and receives utterances,
// previews and warnings until it sends a stop message or disconnects.
func HandleLiveStream(cfg *config.Config, registry *transcript.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := observability.GetLogger().With().Str("component", "live_handler").Logger()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		defer conn.Close()

		writer := &wsWriter{conn: conn}
		callbacks := transcript.Callbacks{
			OnUtterance: func(u transcript.Utterance) {
				writer.send(ServerMessage{Type: "utterance", Utterance: &u})
			},
			OnPreview: func(text string) {
				writer.send(ServerMessage{Type: "preview", Text: text})
			},
			OnWarning: func(message string) {
				writer.send(ServerMessage{Type: "warning", Message: message})
			},
		}

		sess := NewLiveSession(cfg, stt.NewLiveClient(cfg), registry, callbacks)

		// The session outlives this request's context only until the read
		// loop below returns; the backend connection is managed by Stop.
		if err := sess.Start(context.Background()); err != nil {
			logger.Error().Err(err).Msg("Failed to start live session")
			writer.send(ServerMessage{Type: "error", Message: err.Error()})
			return
		}
		defer func() {
			sess.Stop()
			sess.Wait()
		}()

		writer.send(ServerMessage{Type: "session.started", SessionID: sess.ID()})

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn().Err(err).Str("session_id", sess.ID()).Msg("Client socket read error")
				}
				return
			}

			var msg ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				logger.Warn().Err(err).Msg("Unparseable client message, ignoring")
				continue
			}

			switch msg.Type {
			case "audio":
				chunk, err := base64.StdEncoding.DecodeString(msg.Payload)
				if err != nil {
					logger.Warn().Err(err).Msg("Invalid base64 audio payload, ignoring")
					continue
				}
				pcm, err := normalizeIngress(cfg, &msg, chunk)
				if err != nil {
					logger.Warn().Err(err).Msg("Malformed audio payload, ignoring")
					continue
				}
				sess.IngestAudio(pcm)

			case "stop":
				logger.Info().Str("session_id", sess.ID()).Msg("Client requested stop")
				return

			default:
				// Unknown message types are ignored for forward compatibility.
			}
		}
	}
}
