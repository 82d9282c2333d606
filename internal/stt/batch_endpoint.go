package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/podiumlabs/rehearsal-gateway/internal/config"
	"github.com/podiumlabs/rehearsal-gateway/internal/observability"
)

// EndpointBatchClient implements BatchClient against the HTTP transcription
// endpoint: a multipart POST carrying the clip plus its position in the
// source recording, answered with text and timed segments.
type EndpointBatchClient struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewEndpointBatchClient creates an endpoint-backed batch client
func NewEndpointBatchClient(cfg *config.Config) *EndpointBatchClient {
	return &EndpointBatchClient{
		cfg: cfg,
		// Batch clips run minutes of audio through the backend; allow for it.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     observability.GetLogger().With().Str("component", "batch_endpoint").Logger(),
	}
}

// endpointSegment accepts both timestamp conventions the endpoint has used:
// integer milliseconds (startMs/endMs) and float seconds (start/end).
type endpointSegment struct {
	StartMs *int64   `json:"startMs"`
	EndMs   *int64   `json:"endMs"`
	Start   *float64 `json:"start"`
	End     *float64 `json:"end"`
	Text    string   `json:"text"`
}

type endpointResponse struct {
	Text     string            `json:"text"`
	Segments []endpointSegment `json:"segments"`
}

// Transcribe uploads one clip and returns its transcription with clip-local
// timestamps. startMs and durationMs describe where the clip sits in the
// source recording; they are forwarded so the backend can keep job context,
// and any absolute timestamps in the response are shifted back to local.
func (c *EndpointBatchClient) Transcribe(ctx context.Context, path string, startMs, durationMs int64) (*BatchResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &SetupError{Message: "failed to open audio clip: " + err.Error()}
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, &SetupError{Message: "failed to build upload: " + err.Error()}
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, &SetupError{Message: "failed to read audio clip: " + err.Error()}
	}
	_ = writer.WriteField("start_ms", strconv.FormatInt(startMs, 10))
	_ = writer.WriteField("duration_ms", strconv.FormatInt(durationMs, 10))
	if err := writer.Close(); err != nil {
		return nil, &SetupError{Message: "failed to finalize upload: " + err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.STTBaseURL+"/transcribe", &body)
	if err != nil {
		return nil, &SetupError{Message: "failed to build transcription request: " + err.Error()}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.STTAPIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectionError{Message: "transcription request failed: " + err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return nil, ErrFileTooLarge
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	var er endpointResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, &APIError{Status: resp.StatusCode, Message: "failed to decode transcription response: " + err.Error()}
	}

	result := &BatchResult{Text: strings.TrimSpace(er.Text)}
	for _, seg := range er.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		var start, end int64
		switch {
		case seg.StartMs != nil && seg.EndMs != nil:
			start, end = *seg.StartMs, *seg.EndMs
		case seg.Start != nil && seg.End != nil:
			start = int64(*seg.Start * 1000)
			end = int64(*seg.End * 1000)
		default:
			continue
		}
		// Backends that echo absolute positions report timestamps at or past
		// the forwarded clip offset; bring those back to clip-local.
		if start >= startMs && startMs > 0 {
			start -= startMs
			end -= startMs
		}
		result.Segments = append(result.Segments, BatchSegment{StartMs: start, EndMs: end, Text: text})
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

// synthesizeSegments fabricates a single timing span when the backend returns
// bare text. Duration falls back to a per-word estimate when the clip length
// is unknown.
func synthesizeSegments(text string, durationMs int64) []BatchSegment {
	if durationMs <= 0 {
		words := len(strings.Fields(text))
		durationMs = int64(words) * 350
		if durationMs < 1000 {
			durationMs = 1000
		}
	}
	return []BatchSegment{{StartMs: 0, EndMs: durationMs, Text: text}}
}

var _ BatchClient = (*EndpointBatchClient)(nil)
