package stt

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/podiumlabs/rehearsal-gateway/internal/config"
	"github.com/podiumlabs/rehearsal-gateway/internal/observability"
)

// OpenAIBatchClient implements BatchClient on the OpenAI audio transcription
// API. The verbose JSON response format carries timed segments, which map
// directly onto clip-local BatchSegments.
type OpenAIBatchClient struct {
	cfg    *config.Config
	client *openai.Client
	logger zerolog.Logger
}

// NewOpenAIBatchClient creates an OpenAI-backed batch client
func NewOpenAIBatchClient(cfg *config.Config) *OpenAIBatchClient {
	return &OpenAIBatchClient{
		cfg:    cfg,
		client: openai.NewClient(cfg.STTAPIKey),
		logger: observability.GetLogger().With().Str("component", "batch_openai").Logger(),
	}
}

// Transcribe sends one clip through the transcription API. Timestamps in the
// response are already clip-local; startMs and durationMs are used only for
// logging and the bare-text fallback.
func (c *OpenAIBatchClient) Transcribe(ctx context.Context, path string, startMs, durationMs int64) (*BatchResult, error) {
	model := c.cfg.BatchModel
	if model == "" {
		model = openai.Whisper1
	}

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: path,
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: c.cfg.STTLanguage,
	})
	if err != nil {
		return nil, mapOpenAIError(err)
	}

	result := &BatchResult{Text: strings.TrimSpace(resp.Text)}
	for _, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		result.Segments = append(result.Segments, BatchSegment{
			StartMs: int64(seg.Start * 1000),
			EndMs:   int64(seg.End * 1000),
			Text:    text,
		})
	}
	if len(result.Segments) == 0 && result.Text != "" {
		result.Segments = synthesizeSegments(result.Text, durationMs)
	}

	c.logger.Debug().
		Int("segments", len(result.Segments)).
		Int64("start_ms", startMs).
		Msg("Clip transcribed")
	return result, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusRequestEntityTooLarge {
			return ErrFileTooLarge
		}
		return &APIError{Status: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	return &ConnectionError{Message: "transcription request failed: " + err.Error()}
}

var _ BatchClient = (*OpenAIBatchClient)(nil)
