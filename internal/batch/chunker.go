package batch

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/podiumlabs/rehearsal-gateway/internal/config"
	"github.com/podiumlabs/rehearsal-gateway/internal/observability"
	"github.com/podiumlabs/rehearsal-gateway/internal/resilience"
	"github.com/podiumlabs/rehearsal-gateway/internal/stt"
	"github.com/podiumlabs/rehearsal-gateway/internal/transcript"
)

// extractor is the slice of the media toolchain the chunker needs
type extractor interface {
	ProbeDurationMs(ctx context.Context, path string) (int64, error)
	ExtractRange(ctx context.Context, sourcePath, tmpDir string, startMs, durationMs int64) (string, error)
}

// Gap records a planned segment that contributed no text to the merged
// transcript
type Gap struct {
	SegmentIndex int    `json:"segmentIndex"`
	StartMs      int64  `json:"startMs"`
	EndMs        int64  `json:"endMs"`
	Reason       string `json:"reason"`
}

// JobResult is the merged outcome of one batch transcription job. Segments
// use the coordinate system of the original recording and are ordered by
// start time. A job with gaps still completes; the caller decides whether
// gaps are acceptable.
type JobResult struct {
	Text            string                 `json:"text"`
	Segments        []transcript.Utterance `json:"segments"`
	Gaps            []Gap                  `json:"gaps,omitempty"`
	TotalDurationMs int64                  `json:"totalDurationMs"`
	SegmentCount    int                    `json:"segmentCount"`
}

// segmentOutcome is the per-worker result slot, indexed by plan order
type segmentOutcome struct {
	segment Segment
	result  *stt.BatchResult
	err     error
}

// Chunker transcribes recordings too large for a single backend request by
// splitting them into planned segments, transcribing each independently
// under bounded concurrency, and merging the results back into recording
// coordinates.
type Chunker struct {
	cfg       *config.Config
	media     extractor
	client    stt.BatchClient
	breaker   *resilience.CircuitBreaker
	retryConf *resilience.RetryConfig
	logger    zerolog.Logger
}

// NewChunker creates a chunker around a media extractor and batch client
func NewChunker(cfg *config.Config, media extractor, client stt.BatchClient, breaker *resilience.CircuitBreaker) *Chunker {
	return &Chunker{
		cfg:     cfg,
		media:   media,
		client:  client,
		breaker: breaker,
		retryConf: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
		logger: observability.GetLogger().With().Str("component", "chunker").Logger(),
	}
}

// Transcribe runs one batch job over a source audio file. The file must
// already be an audio container; video uploads have their audio track
// extracted by the caller first.
func (c *Chunker) Transcribe(ctx context.Context, jobID, audioPath string) (*JobResult, error) {
	started := time.Now()
	logger := c.logger.With().Str("job_id", jobID).Logger()

	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("source audio is unreadable: %w", err)
	}
	durationMs, err := c.media.ProbeDurationMs(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to probe source duration: %w", err)
	}

	plan, err := BuildPlan(durationMs, info.Size(), c.cfg)
	if err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chunk plan: %w", err)
	}
	observability.RecordAudioBytes("batch", info.Size())

	logger.Info().
		Int("segments", len(plan.Segments)).
		Int64("duration_ms", durationMs).
		Int64("size_bytes", info.Size()).
		Int64("segment_ms", plan.SegmentDuration).
		Msg("Chunk plan built")

	tmpDir, err := os.MkdirTemp("", "rehearsal_segments_")
	if err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outcomes := c.runSegments(ctx, logger, plan, audioPath, tmpDir)
	result := merge(plan, outcomes)

	observability.RecordBatchJob(started)
	logger.Info().
		Int("segments", result.SegmentCount).
		Int("gaps", len(result.Gaps)).
		Dur("elapsed", time.Since(started)).
		Msg("Batch job complete")
	return result, nil
}

// runSegments extracts and transcribes every planned segment with bounded
// concurrency. Outcome order matches plan order regardless of completion
// order.
func (c *Chunker) runSegments(ctx context.Context, logger zerolog.Logger, plan *ChunkPlan, audioPath, tmpDir string) []segmentOutcome {
	outcomes := make([]segmentOutcome, len(plan.Segments))
	sem := make(chan struct{}, c.cfg.BatchConcurrency)
	var wg sync.WaitGroup

	for i, seg := range plan.Segments {
		wg.Add(1)
		go func(i int, seg Segment) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := c.processSegment(ctx, logger, seg, audioPath, tmpDir)
			outcomes[i] = segmentOutcome{segment: seg, result: result, err: err}
		}(i, seg)
	}
	wg.Wait()
	return outcomes
}

// processSegment extracts one planned range and transcribes it. An artifact
// over the hard ceiling is re-extracted at a shorter duration a bounded
// number of times before the segment is declared failed.
func (c *Chunker) processSegment(ctx context.Context, logger zerolog.Logger, seg Segment, audioPath, tmpDir string) (*stt.BatchResult, error) {
	path, size, err := c.extractUnderCeiling(ctx, logger, seg, audioPath, tmpDir)
	if err != nil {
		observability.RecordBatchSegment("oversized", size)
		observability.RecordError("segment_oversized", "chunker")
		return nil, err
	}
	defer os.Remove(path)

	var result *stt.BatchResult
	err = c.breaker.Call(func() error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			var txErr error
			result, txErr = c.client.Transcribe(ctx, path, seg.StartMs, seg.DurationMs)
			return txErr
		}, c.retryConf, stt.IsTransient)
	})
	if err != nil {
		observability.RecordBatchSegment("failed", size)
		observability.RecordError("segment_failed", "chunker")
		logger.Warn().Int("segment", seg.Index).Err(err).Msg("Segment transcription failed, continuing with gap")
		return nil, err
	}

	observability.RecordBatchSegment("transcribed", size)
	return result, nil
}

// extractUnderCeiling extracts the segment's range, shrinking the duration
// by a quarter each time the artifact exceeds the hard size ceiling. A
// shrunk segment covers only the head of its planned range; the tail is
// reported as part of the gap if it stays oversized.
func (c *Chunker) extractUnderCeiling(ctx context.Context, logger zerolog.Logger, seg Segment, audioPath, tmpDir string) (string, int64, error) {
	attemptMs := seg.DurationMs
	minMs := int64(c.cfg.MinSegmentSeconds) * 1000
	var lastSize int64

	for attempt := 0; attempt < c.cfg.SegmentExtractRetry; attempt++ {
		path, err := c.media.ExtractRange(ctx, audioPath, tmpDir, seg.StartMs, attemptMs)
		if err != nil {
			return "", 0, fmt.Errorf("segment %d extraction failed: %w", seg.Index, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return "", 0, fmt.Errorf("segment %d artifact is unreadable: %w", seg.Index, err)
		}
		lastSize = info.Size()
		if lastSize <= c.cfg.MaxSegmentBytes {
			return path, lastSize, nil
		}

		os.Remove(path)
		if attemptMs <= minMs {
			break
		}
		attemptMs = attemptMs * 3 / 4
		if attemptMs < minMs {
			attemptMs = minMs
		}
		logger.Warn().
			Int("segment", seg.Index).
			Int64("size_bytes", lastSize).
			Int64("retry_ms", attemptMs).
			Msg("Segment artifact over size ceiling, shrinking")
	}

	return "", lastSize, fmt.Errorf("segment %d exceeds the size ceiling after %d attempts (%d bytes)",
		seg.Index, c.cfg.SegmentExtractRetry, lastSize)
}

// merge combines per-segment results into one transcript in recording
// coordinates. Segment-local timestamps are shifted by the planned start
// offset; failed segments become gaps. The reduction is order-dependent and
// runs only after every outcome is in.
func merge(plan *ChunkPlan, outcomes []segmentOutcome) *JobResult {
	result := &JobResult{
		TotalDurationMs: plan.TotalDurationMs,
		SegmentCount:    len(plan.Segments),
	}

	var parts []string
	for _, outcome := range outcomes {
		if outcome.err != nil || outcome.result == nil {
			reason := "transcription failed"
			if outcome.err != nil {
				reason = outcome.err.Error()
			}
			result.Gaps = append(result.Gaps, Gap{
				SegmentIndex: outcome.segment.Index,
				StartMs:      outcome.segment.StartMs,
				EndMs:        outcome.segment.EndMs(),
				Reason:       reason,
			})
			continue
		}

		if text := strings.TrimSpace(outcome.result.Text); text != "" {
			parts = append(parts, text)
		}
		for _, sub := range outcome.result.Segments {
			result.Segments = append(result.Segments, transcript.Utterance{
				Text:    sub.Text,
				StartMs: sub.StartMs + outcome.segment.StartMs,
				EndMs:   sub.EndMs + outcome.segment.StartMs,
			})
		}
	}

	// Outcomes arrive in plan order, so this is stable across equal starts.
	sort.SliceStable(result.Segments, func(i, j int) bool {
		return result.Segments[i].StartMs < result.Segments[j].StartMs
	})
	result.Text = strings.Join(parts, " ")
	return result
}
