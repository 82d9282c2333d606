package batch

import (
	"testing"

	"github.com/podiumlabs/rehearsal-gateway/internal/config"
)

func plannerTestConfig() *config.Config {
	return &config.Config{
		MaxSegmentBytes:    26_214_400,
		TargetSegmentBytes: 20_971_520,
		MaxSegmentSeconds:  300,
		MinSegmentSeconds:  45,
	}
}

func TestBuildPlan_SmallFileSingleSegment(t *testing.T) {
	cfg := plannerTestConfig()
	plan, err := BuildPlan(90_000, 1_500_000, cfg)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	if len(plan.Segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(plan.Segments))
	}
	if plan.Segments[0].StartMs != 0 || plan.Segments[0].DurationMs != 90_000 {
		t.Errorf("segment = %+v, want full recording", plan.Segments[0])
	}
	if err := plan.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestBuildPlan_LongRecording(t *testing.T) {
	// A 47-minute recording at ~42MB splits into ten 5-minute segments (the
	// last one shorter), each well under the ceiling.
	cfg := plannerTestConfig()
	totalMs := int64(2_820_000)
	totalBytes := int64(42 * 1024 * 1024)

	plan, err := BuildPlan(totalMs, totalBytes, cfg)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	if err := plan.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(plan.Segments) != 10 {
		t.Fatalf("got %d segments, want 10", len(plan.Segments))
	}
	if plan.SegmentDuration != 300_000 {
		t.Errorf("SegmentDuration = %d, want 300000", plan.SegmentDuration)
	}
	for i, seg := range plan.Segments[:9] {
		if seg.DurationMs != 300_000 {
			t.Errorf("segment %d duration = %d, want 300000", i, seg.DurationMs)
		}
	}
	last := plan.Segments[9]
	if last.EndMs() != totalMs {
		t.Errorf("last segment ends at %d, want %d", last.EndMs(), totalMs)
	}
	for _, seg := range plan.Segments {
		if seg.SizeBytesEstimate > cfg.MaxSegmentBytes {
			t.Errorf("segment %d estimate %d exceeds ceiling", seg.Index, seg.SizeBytesEstimate)
		}
	}
}

func TestBuildPlan_ContiguousNonOverlapping(t *testing.T) {
	cfg := plannerTestConfig()
	plan, err := BuildPlan(1_234_567, 95_000_000, cfg)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	if err := plan.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	cursor := int64(0)
	for _, seg := range plan.Segments {
		if seg.StartMs != cursor {
			t.Fatalf("segment %d starts at %d, cursor at %d", seg.Index, seg.StartMs, cursor)
		}
		cursor = seg.EndMs()
	}
	if cursor != 1_234_567 {
		t.Errorf("coverage ends at %d, want 1234567", cursor)
	}
}

func TestBuildPlan_MinDurationFloor(t *testing.T) {
	// Pathologically dense audio: the even split would be below the floor.
	cfg := plannerTestConfig()
	plan, err := BuildPlan(120_000, 500_000_000, cfg)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	if plan.SegmentDuration != int64(cfg.MinSegmentSeconds)*1000 {
		t.Errorf("SegmentDuration = %d, want floor %d", plan.SegmentDuration, cfg.MinSegmentSeconds*1000)
	}
	if err := plan.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestBuildPlan_InvalidDuration(t *testing.T) {
	if _, err := BuildPlan(0, 1000, plannerTestConfig()); err == nil {
		t.Error("BuildPlan() should reject zero duration")
	}
}
