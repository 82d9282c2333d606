package stt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/podiumlabs/rehearsal-gateway/internal/config"
)

func writeTestClip(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte("RIFFfake-wav-payload"), 0o644); err != nil {
		t.Fatalf("write test clip: %v", err)
	}
	return path
}

func batchTestConfig(baseURL string) *config.Config {
	return &config.Config{
		STTAPIKey:  "test-key",
		STTBaseURL: baseURL,
	}
}

func TestEndpointBatchClient_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if got := r.FormValue("start_ms"); got != "60000" {
			t.Errorf("start_ms = %q, want %q", got, "60000")
		}
		if got := r.FormValue("duration_ms"); got != "120000" {
			t.Errorf("duration_ms = %q, want %q", got, "120000")
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("file part missing: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"text": "first part. second part.",
			"segments": []map[string]any{
				{"startMs": 0, "endMs": 2500, "text": "first part."},
				{"startMs": 2500, "endMs": 5000, "text": "second part."},
			},
		})
	}))
	defer srv.Close()

	client := NewEndpointBatchClient(batchTestConfig(srv.URL))
	result, err := client.Transcribe(context.Background(), writeTestClip(t), 60000, 120000)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if result.Text != "first part. second part." {
		t.Errorf("Text = %q", result.Text)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(result.Segments))
	}
	if result.Segments[0].StartMs != 0 || result.Segments[1].EndMs != 5000 {
		t.Errorf("segments not clip-local: %+v", result.Segments)
	}
}

func TestEndpointBatchClient_AbsoluteTimestampsNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A backend that echoes positions in source-recording coordinates.
		json.NewEncoder(w).Encode(map[string]any{
			"text": "echoed.",
			"segments": []map[string]any{
				{"startMs": 60000, "endMs": 62000, "text": "echoed."},
			},
		})
	}))
	defer srv.Close()

	client := NewEndpointBatchClient(batchTestConfig(srv.URL))
	result, err := client.Transcribe(context.Background(), writeTestClip(t), 60000, 120000)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if result.Segments[0].StartMs != 0 || result.Segments[0].EndMs != 2000 {
		t.Errorf("segment = %+v, want clip-local 0..2000", result.Segments[0])
	}
}

func TestEndpointBatchClient_SecondsVariant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"text": "in seconds.",
			"segments": []map[string]any{
				{"start": 1.5, "end": 3.25, "text": "in seconds."},
			},
		})
	}))
	defer srv.Close()

	client := NewEndpointBatchClient(batchTestConfig(srv.URL))
	result, err := client.Transcribe(context.Background(), writeTestClip(t), 0, 10000)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	seg := result.Segments[0]
	if seg.StartMs != 1500 || seg.EndMs != 3250 {
		t.Errorf("segment = %+v, want 1500..3250", seg)
	}
}

func TestEndpointBatchClient_BareTextSynthesizesSegment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"text": "just words here"})
	}))
	defer srv.Close()

	client := NewEndpointBatchClient(batchTestConfig(srv.URL))
	result, err := client.Transcribe(context.Background(), writeTestClip(t), 0, 7000)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if len(result.Segments) != 1 {
		t.Fatalf("got %d segments, want 1 synthesized", len(result.Segments))
	}
	if result.Segments[0].StartMs != 0 || result.Segments[0].EndMs != 7000 {
		t.Errorf("synthesized segment = %+v, want 0..7000", result.Segments[0])
	}
}

func TestEndpointBatchClient_FileTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	client := NewEndpointBatchClient(batchTestConfig(srv.URL))
	_, err := client.Transcribe(context.Background(), writeTestClip(t), 0, 1000)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("error = %v, want ErrFileTooLarge", err)
	}
}

func TestEndpointBatchClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "try later", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewEndpointBatchClient(batchTestConfig(srv.URL))
	_, err := client.Transcribe(context.Background(), writeTestClip(t), 0, 1000)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T, want *APIError", err)
	}
	if apiErr.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want 429", apiErr.Status)
	}
	if !IsTransient(err) {
		t.Error("429 should be transient")
	}
}

func TestSynthesizeSegments_UnknownDuration(t *testing.T) {
	segs := synthesizeSegments("four words right here", 0)
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1", len(segs))
	}
	if segs[0].EndMs != 4*350 {
		t.Errorf("EndMs = %d, want %d", segs[0].EndMs, 4*350)
	}

	short := synthesizeSegments("hi", 0)
	if short[0].EndMs != 1000 {
		t.Errorf("EndMs = %d, want floor of 1000", short[0].EndMs)
	}
}
