package audio

import "time"

// CommitWindow accumulates encoded PCM frames between commits and tracks how
// much audio has arrived since the last one. The commit-interval timer asks
// Eligible on every tick; Take hands the window upstream and resets it.
type CommitWindow struct {
	sampleRate int

	frames             [][]byte
	samplesSinceCommit int
	appended           bool
	lastCommit         time.Time
}

// NewCommitWindow creates an empty window for the given sample rate.
func NewCommitWindow(sampleRate int) *CommitWindow {
	return &CommitWindow{
		sampleRate: sampleRate,
		lastCommit: time.Now(),
	}
}

// Append adds one encoded PCM16 frame (little-endian bytes) to the window.
func (w *CommitWindow) Append(frame []byte) {
	if len(frame) == 0 {
		return
	}
	w.frames = append(w.frames, frame)
	w.samplesSinceCommit += len(frame) / 2
	w.appended = true
}

// Eligible reports whether the window holds enough audio to be worth a
// commit. A window that received nothing since the last commit is idle; one
// below minSamples should wait for the next tick rather than waste a round
// trip on a fragment too short to recognize.
func (w *CommitWindow) Eligible(minSamples int) bool {
	return w.appended && w.samplesSinceCommit >= minSamples
}

// Idle reports whether nothing was appended since the last commit.
func (w *CommitWindow) Idle() bool {
	return !w.appended
}

// PendingSamples returns the number of samples buffered since the last commit.
func (w *CommitWindow) PendingSamples() int {
	return w.samplesSinceCommit
}

// ElapsedSinceCommit returns the time since the last commit (or creation).
func (w *CommitWindow) ElapsedSinceCommit() time.Duration {
	return time.Since(w.lastCommit)
}

// Seconds returns the buffered audio duration in seconds.
func (w *CommitWindow) Seconds() float64 {
	if w.sampleRate == 0 {
		return 0
	}
	return float64(w.samplesSinceCommit) / float64(w.sampleRate)
}

// Take returns the buffered frames as one contiguous byte slice and resets
// the window. The returned slice is owned by the caller.
func (w *CommitWindow) Take() []byte {
	total := 0
	for _, f := range w.frames {
		total += len(f)
	}
	out := make([]byte, 0, total)
	for _, f := range w.frames {
		out = append(out, f...)
	}
	w.reset()
	return out
}

// Discard drops buffered audio without committing it. Used on session stop.
func (w *CommitWindow) Discard() {
	w.reset()
}

func (w *CommitWindow) reset() {
	w.frames = w.frames[:0]
	w.samplesSinceCommit = 0
	w.appended = false
	w.lastCommit = time.Now()
}
