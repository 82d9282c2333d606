package audio

// GateConfig holds configuration for the silence gate
type GateConfig struct {
	Threshold     float64 // RMS energy threshold below which a frame counts as silence
	HangoverTicks int     // Commit ticks to keep passing audio after speech stops
}

// DefaultGateConfig returns a default silence gate configuration
func DefaultGateConfig() *GateConfig {
	return &GateConfig{
		Threshold:     250.0,
		HangoverTicks: 1,
	}
}

// SilenceGate decides whether a commit window that accumulated only
// low-energy audio is worth sending upstream. It keeps a short hangover so
// the tail of an utterance is not cut off at the first quiet window.
type SilenceGate struct {
	config   *GateConfig
	hangover int
}

// NewSilenceGate creates a silence gate
func NewSilenceGate(config *GateConfig) *SilenceGate {
	if config == nil {
		config = DefaultGateConfig()
	}
	return &SilenceGate{config: config}
}

// ShouldCommit reports whether a window with the given RMS energy should be
// committed. Windows above the threshold always pass and re-arm the
// hangover; quiet windows pass only while hangover ticks remain.
func (g *SilenceGate) ShouldCommit(rms float64) bool {
	if rms > g.config.Threshold {
		g.hangover = g.config.HangoverTicks
		return true
	}
	if g.hangover > 0 {
		g.hangover--
		return true
	}
	return false
}

// Reset clears the gate state.
func (g *SilenceGate) Reset() {
	g.hangover = 0
}
