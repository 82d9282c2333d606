package stt

import "context"

// EventKind discriminates transcript events coming back from the backend
type EventKind int

const (
	// KindPartial is an in-progress recognition result for the current audio region
	KindPartial EventKind = iota
	// KindFinal is a backend-declared-complete result for the current audio region
	KindFinal
	// KindFailed reports a recognition or connection failure
	KindFailed
)

// String returns the metric label for an event kind
func (k EventKind) String() string {
	switch k {
	case KindPartial:
		return "partial"
	case KindFinal:
		return "final"
	case KindFailed:
		return "failed"
	}
	return "unknown"
}

// TranscriptEvent is the single internal event shape all backends are adapted
// to. The rest of the pipeline never sees raw protocol JSON.
type TranscriptEvent struct {
	Kind EventKind
	Text string
	// Delta marks a partial whose Text is an increment to be appended to the
	// current preview rather than a snapshot replacing it
	Delta bool
	// Reason is set for KindFailed events
	Reason string
	// Terminal marks a failure that ends the session (socket error, close)
	Terminal bool
}

// SessionState tracks the lifecycle of a streaming connection
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

// String returns a readable state name for logging
func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// LiveClient is the interface for streaming speech-to-text backends.
// AppendFrame and Commit are valid only while the session is Open; outside
// Open they are no-ops (frames are dropped, not queued).
type LiveClient interface {
	// Connect acquires a session credential and opens the streaming connection
	Connect(ctx context.Context) error

	// AppendFrame sends one encoded PCM16 frame (little-endian bytes)
	AppendFrame(frame []byte) error

	// Commit signals that audio appended since the previous commit should be
	// recognized as a unit
	Commit() error

	// Events returns the demultiplexed transcript event stream. The channel
	// is closed when the session ends.
	Events() <-chan TranscriptEvent

	// Stop closes the session. Idempotent; safe to call from any state.
	Stop() error

	// State returns the current session state
	State() SessionState
}

// BatchSegment is one timed span of a batch transcription result.
// Timestamps are local to the transcribed clip; the chunk merge step shifts
// them into the source recording's coordinate system.
type BatchSegment struct {
	StartMs int64  `json:"startMs"`
	EndMs   int64  `json:"endMs"`
	Text    string `json:"text"`
}

// BatchResult is the outcome of transcribing one audio clip
type BatchResult struct {
	Text     string         `json:"text"`
	Segments []BatchSegment `json:"segments"`
}

// BatchClient transcribes one bounded audio clip statelessly
type BatchClient interface {
	Transcribe(ctx context.Context, path string, startMs, durationMs int64) (*BatchResult, error)
}
