package batch

import (
	"fmt"

	"github.com/podiumlabs/rehearsal-gateway/internal/config"
)

// Segment describes one planned slice of a source recording
type Segment struct {
	Index             int
	StartMs           int64
	DurationMs        int64
	SizeBytesEstimate int64
}

// EndMs returns the exclusive end of the segment
func (s Segment) EndMs() int64 {
	return s.StartMs + s.DurationMs
}

// ChunkPlan is an ordered list of segments covering the full recording with
// no gaps and no overlaps, each expected to land under the backend's size
// ceiling.
type ChunkPlan struct {
	Segments        []Segment
	TotalDurationMs int64
	SegmentDuration int64
}

// BuildPlan partitions a recording into contiguous segments. The segment
// duration is derived from the overall size so each artifact stays under the
// working size target with margin, then clamped to the configured duration
// bounds.
func BuildPlan(totalDurationMs, totalSizeBytes int64, cfg *config.Config) (*ChunkPlan, error) {
	if totalDurationMs <= 0 {
		return nil, fmt.Errorf("invalid recording duration %dms", totalDurationMs)
	}

	segmentMs := segmentDurationMs(totalDurationMs, totalSizeBytes, cfg)

	plan := &ChunkPlan{
		TotalDurationMs: totalDurationMs,
		SegmentDuration: segmentMs,
	}

	bytesPerMs := float64(totalSizeBytes) / float64(totalDurationMs)
	for start := int64(0); start < totalDurationMs; start += segmentMs {
		duration := segmentMs
		if start+duration > totalDurationMs {
			duration = totalDurationMs - start
		}
		plan.Segments = append(plan.Segments, Segment{
			Index:             len(plan.Segments),
			StartMs:           start,
			DurationMs:        duration,
			SizeBytesEstimate: int64(bytesPerMs * float64(duration)),
		})
	}
	return plan, nil
}

// segmentDurationMs picks the per-segment duration. A recording already
// under the working target is one segment; otherwise the duration that
// splits the size evenly, clamped to [MinSegmentSeconds, MaxSegmentSeconds].
func segmentDurationMs(totalDurationMs, totalSizeBytes int64, cfg *config.Config) int64 {
	if totalSizeBytes <= cfg.TargetSegmentBytes {
		return totalDurationMs
	}

	numChunks := totalSizeBytes/cfg.TargetSegmentBytes + 1
	segmentMs := totalDurationMs / numChunks

	maxMs := int64(cfg.MaxSegmentSeconds) * 1000
	minMs := int64(cfg.MinSegmentSeconds) * 1000
	if segmentMs > maxMs {
		segmentMs = maxMs
	}
	if segmentMs < minMs {
		segmentMs = minMs
	}
	return segmentMs
}

// Validate checks the plan invariants: contiguous, non-overlapping coverage
// of [0, totalDuration).
func (p *ChunkPlan) Validate() error {
	if len(p.Segments) == 0 {
		return fmt.Errorf("plan has no segments")
	}
	cursor := int64(0)
	for _, seg := range p.Segments {
		if seg.StartMs != cursor {
			return fmt.Errorf("segment %d starts at %dms, expected %dms", seg.Index, seg.StartMs, cursor)
		}
		if seg.DurationMs <= 0 {
			return fmt.Errorf("segment %d has non-positive duration %dms", seg.Index, seg.DurationMs)
		}
		cursor = seg.EndMs()
	}
	if cursor != p.TotalDurationMs {
		return fmt.Errorf("plan covers %dms, recording is %dms", cursor, p.TotalDurationMs)
	}
	return nil
}
