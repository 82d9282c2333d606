package stt

import (
	"context"
	"sync"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/podiumlabs/rehearsal-gateway/internal/config"
	"github.com/podiumlabs/rehearsal-gateway/internal/observability"
)

// deepgramCallbackHandler implements the LiveMessageCallback interface by
// embedding the default handler and overriding only what the pipeline needs.
type deepgramCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	onMessage func(*msginterfaces.MessageResponse)
	onError   func(*msginterfaces.ErrorResponse) error
}

func (h *deepgramCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	h.onMessage(message)
	return nil
}

func (h *deepgramCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	if h.onError != nil {
		return h.onError(errorResponse)
	}
	return h.DefaultCallbackHandler.Error(errorResponse)
}

// DeepgramClient implements LiveClient on Deepgram's streaming API. Deepgram
// segments audio with its own server-side VAD, so Commit is a no-op here:
// finality is driven by the backend, which still satisfies the partial/final
// event contract the aggregator consumes.
type DeepgramClient struct {
	cfg    *config.Config
	logger zerolog.Logger

	mu     sync.Mutex
	state  SessionState
	client *listenClient.WSCallback
	closed bool

	events chan TranscriptEvent
	cancel context.CancelFunc
}

// NewDeepgramClient creates a Deepgram-backed live client
func NewDeepgramClient(cfg *config.Config) *DeepgramClient {
	return &DeepgramClient{
		cfg:    cfg,
		logger: observability.GetLogger().With().Str("component", "deepgram_client").Logger(),
		state:  StateDisconnected,
		events: make(chan TranscriptEvent, 64),
	}
}

// Connect opens the Deepgram streaming session
func (d *DeepgramClient) Connect(ctx context.Context) error {
	d.mu.Lock()
	if d.state != StateDisconnected {
		d.mu.Unlock()
		return &SetupError{Message: "deepgram client already started"}
	}
	d.state = StateConnecting
	ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()

	if d.cfg.STTAPIKey == "" {
		d.terminate()
		return &SetupError{Message: "speech-to-text API key is not configured"}
	}

	language := d.cfg.STTLanguage
	if language == "" {
		language = "en"
	}
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.cfg.DeepgramModel,
		Language:       language,
		Punctuate:      true,
		InterimResults: true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     d.cfg.SampleRate,
	}

	callback := &deepgramCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		onMessage:              d.handleMessage,
		onError: func(errorResponse *msginterfaces.ErrorResponse) error {
			d.logger.Error().Interface("error", errorResponse).Msg("Deepgram error")
			observability.RecordError("backend_error", "deepgram_client")
			d.emit(TranscriptEvent{Kind: KindFailed, Reason: "deepgram stream error", Terminal: true})
			d.terminate()
			return nil
		},
	}

	client, err := listenClient.NewWSUsingCallback(ctx, d.cfg.STTAPIKey, nil, tOptions, callback)
	if err != nil {
		d.terminate()
		return &ConnectionError{Message: "failed to create deepgram client: " + err.Error()}
	}

	d.mu.Lock()
	if d.state != StateConnecting {
		d.mu.Unlock()
		return &SetupError{Message: "session stopped before connection opened"}
	}
	d.client = client
	d.state = StateOpen
	d.mu.Unlock()

	d.logger.Info().Str("model", d.cfg.DeepgramModel).Msg("Deepgram streaming session open")
	return nil
}

func (d *DeepgramClient) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil || len(msg.Channel.Alternatives) == 0 {
		return
	}
	alt := msg.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return
	}

	kind := KindPartial
	if msg.IsFinal {
		kind = KindFinal
	}
	observability.RecordTranscriptEvent(kind.String())
	d.emit(TranscriptEvent{Kind: kind, Text: alt.Transcript})
}

// AppendFrame sends one PCM16 frame; a no-op outside Open
func (d *DeepgramClient) AppendFrame(frame []byte) error {
	d.mu.Lock()
	client := d.client
	open := d.state == StateOpen
	d.mu.Unlock()

	if !open || client == nil {
		return nil
	}
	if _, err := client.Write(frame); err != nil {
		return &ConnectionError{Message: "failed to send audio to deepgram: " + err.Error()}
	}
	return nil
}

// Commit is a no-op: Deepgram finalizes on its own VAD boundaries
func (d *DeepgramClient) Commit() error {
	return nil
}

// Events returns the transcript event stream
func (d *DeepgramClient) Events() <-chan TranscriptEvent {
	return d.events
}

// State returns the current session state
func (d *DeepgramClient) State() SessionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Stop closes the session. Idempotent.
func (d *DeepgramClient) Stop() error {
	d.mu.Lock()
	if d.state == StateClosed {
		d.mu.Unlock()
		return nil
	}
	d.state = StateClosing
	client := d.client
	cancel := d.cancel
	d.mu.Unlock()

	if client != nil {
		client.Finish()
	}
	if cancel != nil {
		cancel()
	}
	d.terminate()
	return nil
}

// emit delivers one event unless the session is already closed. The closed
// check and the send share the mutex with terminate, so an SDK callback
// arriving around Stop can never send on the closed channel.
func (d *DeepgramClient) emit(ev TranscriptEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.events <- ev:
	default:
		d.logger.Warn().Str("kind", ev.Kind.String()).Msg("Event channel full, dropping transcript event")
	}
}

func (d *DeepgramClient) terminate() {
	d.mu.Lock()
	d.state = StateClosed
	d.client = nil
	wasClosed := d.closed
	d.closed = true
	d.mu.Unlock()
	if !wasClosed {
		close(d.events)
	}
}
