package batch

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/podiumlabs/rehearsal-gateway/internal/config"
	"github.com/podiumlabs/rehearsal-gateway/internal/media"
	"github.com/podiumlabs/rehearsal-gateway/internal/observability"
)

// maxUploadBytes caps a single upload at 1GB; a rehearsal recording of an
// hour of video stays well under this.
const maxUploadBytes = 1 << 30

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message})
}

// HandleTranscribeFile accepts a multipart upload of a pre-recorded audio or
// video file, runs the chunked batch transcription job, and returns the
// merged transcript.
func HandleTranscribeFile(cfg *config.Config, extractor *media.Extractor, chunker *Chunker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := observability.GetLogger().With().Str("component", "batch_handler").Logger()

		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		file, header, err := r.FormFile("file")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "missing file field: "+err.Error())
			return
		}
		defer file.Close()

		jobID := observability.NewID()
		jobLogger := observability.WithJob(jobID)

		tmpDir, err := os.MkdirTemp("", "rehearsal_upload_")
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to stage upload")
			return
		}
		defer os.RemoveAll(tmpDir)

		// Rename the upload to match its negotiated MIME type so downstream
		// tooling sniffs the right container.
		ext := media.NormalizeExtension(header.Header.Get("Content-Type"), header.Filename)
		uploadPath := filepath.Join(tmpDir, "upload"+ext)
		dst, err := os.Create(uploadPath)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to stage upload")
			return
		}
		written, err := io.Copy(dst, file)
		dst.Close()
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "upload truncated: "+err.Error())
			return
		}

		jobLogger.Info().
			Str("filename", header.Filename).
			Str("ext", ext).
			Int64("bytes", written).
			Msg("Batch upload staged")

		// Pull the audio track out of video uploads up front. If that fails
		// the original file is kept; per-segment extraction transcodes anyway.
		audioPath := uploadPath
		if media.IsVideoContainer(ext) {
			extracted, err := extractor.ExtractAudio(r.Context(), uploadPath, tmpDir)
			if err != nil {
				jobLogger.Warn().Err(err).Msg("Audio pre-extraction failed, using original upload")
			} else {
				audioPath = extracted
			}
		}

		result, err := chunker.Transcribe(r.Context(), jobID, audioPath)
		if err != nil {
			jobLogger.Error().Err(err).Msg("Batch job failed")
			observability.RecordError("job_failed", "batch_handler")
			writeJSONError(w, http.StatusBadGateway, "transcription failed: "+err.Error())
			return
		}

		logger.Debug().Str("job_id", jobID).Msg("Batch job response written")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}
