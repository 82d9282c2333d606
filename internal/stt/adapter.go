package stt

import (
	"encoding/json"
	"strings"
)

// rawEvent covers every field-name variant observed across iterations of the
// realtime protocol. All vendor-specific guessing lives here; everything
// downstream consumes TranscriptEvent only.
type rawEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta"`
	Text       string `json:"text"`
	Transcript string `json:"transcript"`
	Error      *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
	Message string `json:"message"`
}

// decodeTranscriptEvent maps one inbound protocol message to a
// TranscriptEvent. Returns ok=false for messages the pipeline does not care
// about (session bookkeeping, unknown types); those are ignored, never
// treated as errors.
func decodeTranscriptEvent(data []byte) (TranscriptEvent, bool) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		// Malformed JSON is a protocol anomaly, not a pipeline failure.
		return TranscriptEvent{}, false
	}

	switch {
	case strings.HasSuffix(raw.Type, "transcription.delta") || raw.Type == "transcript.partial":
		text := raw.Delta
		if text == "" {
			text = raw.Text
		}
		if text == "" {
			return TranscriptEvent{}, false
		}
		// Delta events carry increments; transcript.partial carries a snapshot
		// of the whole in-flight region.
		delta := strings.HasSuffix(raw.Type, "transcription.delta")
		return TranscriptEvent{Kind: KindPartial, Text: text, Delta: delta}, true

	case strings.HasSuffix(raw.Type, "transcription.completed") || raw.Type == "transcript.final":
		text := raw.Transcript
		if text == "" {
			text = raw.Text
		}
		return TranscriptEvent{Kind: KindFinal, Text: text}, true

	case strings.HasSuffix(raw.Type, "transcription.failed") || raw.Type == "error":
		reason := raw.Message
		if raw.Error != nil && raw.Error.Message != "" {
			reason = raw.Error.Message
		}
		if reason == "" {
			reason = "transcription failed"
		}
		return TranscriptEvent{Kind: KindFailed, Reason: reason}, true
	}

	return TranscriptEvent{}, false
}
