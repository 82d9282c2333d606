package stt

import (
	"github.com/podiumlabs/rehearsal-gateway/internal/config"
)

// NewLiveClient selects the streaming backend from configuration. Each call
// returns a fresh client: live sessions are single-use.
func NewLiveClient(cfg *config.Config) LiveClient {
	switch cfg.STTProvider {
	case "deepgram":
		return NewDeepgramClient(cfg)
	default:
		return NewRealtimeClient(cfg)
	}
}

// NewBatchClient selects the batch transcription backend from configuration
func NewBatchClient(cfg *config.Config) BatchClient {
	switch cfg.BatchProvider {
	case "openai":
		return NewOpenAIBatchClient(cfg)
	default:
		return NewEndpointBatchClient(cfg)
	}
}
