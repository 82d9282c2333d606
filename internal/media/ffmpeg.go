package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/podiumlabs/rehearsal-gateway/internal/observability"
)

// Extractor shells out to ffmpeg/ffprobe for probing and audio extraction.
// All output is mono 16kHz PCM16 WAV, the format the transcription backends
// expect.
type Extractor struct {
	ffmpegPath  string
	ffprobePath string
	logger      zerolog.Logger
}

// NewExtractor creates an extractor using the ffmpeg binaries on PATH
func NewExtractor() *Extractor {
	return &Extractor{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		logger:      observability.GetLogger().With().Str("component", "media").Logger(),
	}
}

// Available reports whether the ffmpeg binaries can be found. Used by the
// readiness probe.
func (e *Extractor) Available() bool {
	if _, err := exec.LookPath(e.ffmpegPath); err != nil {
		return false
	}
	_, err := exec.LookPath(e.ffprobePath)
	return err == nil
}

// ProbeDurationMs returns the duration of an audio or video file. When
// ffprobe cannot report one (stream copies with broken headers mostly), the
// duration is estimated from file size at roughly 1 MB per minute of 16kHz
// mono audio.
func (e *Extractor) ProbeDurationMs(ctx context.Context, path string) (int64, error) {
	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err == nil {
		if seconds, parseErr := strconv.ParseFloat(strings.TrimSpace(string(out)), 64); parseErr == nil && seconds > 0 {
			return int64(seconds * 1000), nil
		}
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		return 0, fmt.Errorf("ffprobe failed and file is unreadable: %w", statErr)
	}
	estimatedMs := info.Size() / (1024 * 1024) * 60_000
	if estimatedMs <= 0 {
		estimatedMs = 60_000
	}
	e.logger.Warn().
		Str("path", filepath.Base(path)).
		Int64("estimated_ms", estimatedMs).
		Msg("ffprobe could not report duration, estimating from file size")
	return estimatedMs, nil
}

// ExtractAudio pulls the full audio track out of a media file as mono 16kHz
// WAV and returns the output path.
func (e *Extractor) ExtractAudio(ctx context.Context, sourcePath, tmpDir string) (string, error) {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	out := filepath.Join(tmpDir, base+"_audio_16k.wav")

	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-y", "-i", sourcePath,
		"-vn",
		"-ac", "1", "-ar", "16000",
		"-acodec", "pcm_s16le",
		"-f", "wav",
		out,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("ffmpeg extract failed: %w: %s", err, truncateOutput(output))
	}
	return out, nil
}

// ExtractRange extracts exactly [startMs, startMs+durationMs) from a media
// file as mono 16kHz WAV and returns the output path.
func (e *Extractor) ExtractRange(ctx context.Context, sourcePath, tmpDir string, startMs, durationMs int64) (string, error) {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	out := filepath.Join(tmpDir, fmt.Sprintf("segment_%d_%d.wav", startMs, durationMs))

	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-y",
		"-ss", formatSeconds(startMs),
		"-t", formatSeconds(durationMs),
		"-i", sourcePath,
		"-vn",
		"-ac", "1", "-ar", "16000",
		"-acodec", "pcm_s16le",
		"-f", "wav",
		out,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("ffmpeg range extract failed: %w: %s", err, truncateOutput(output))
	}
	return out, nil
}

func formatSeconds(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000.0, 'f', 3, 64)
}

func truncateOutput(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > 512 {
		s = s[len(s)-512:]
	}
	return s
}

// extensionByMIME maps the upload content types the batch endpoint accepts
// to a canonical file extension. Backends sniff by extension, so uploads are
// renamed to match their negotiated MIME type before processing.
var extensionByMIME = map[string]string{
	"audio/wav":       ".wav",
	"audio/x-wav":     ".wav",
	"audio/wave":      ".wav",
	"audio/mpeg":      ".mp3",
	"audio/mp3":       ".mp3",
	"audio/mp4":       ".m4a",
	"audio/x-m4a":     ".m4a",
	"audio/webm":      ".webm",
	"video/webm":      ".webm",
	"video/mp4":       ".mp4",
	"audio/ogg":       ".ogg",
	"application/ogg": ".ogg",
}

// NormalizeExtension returns the canonical extension for a MIME type, or the
// fallback from the original filename when the type is unknown.
func NormalizeExtension(mimeType, filename string) string {
	base := mimeType
	if idx := strings.Index(base, ";"); idx >= 0 {
		base = base[:idx]
	}
	base = strings.TrimSpace(strings.ToLower(base))
	if ext, ok := extensionByMIME[base]; ok {
		return ext
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		return ext
	}
	return ".wav"
}

// IsVideoContainer reports whether the extension carries a video stream that
// needs its audio track extracted before chunk planning.
func IsVideoContainer(ext string) bool {
	switch strings.ToLower(ext) {
	case ".mp4", ".webm", ".mov", ".mkv", ".avi":
		return true
	}
	return false
}
