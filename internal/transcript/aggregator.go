package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/podiumlabs/rehearsal-gateway/internal/config"
	"github.com/podiumlabs/rehearsal-gateway/internal/observability"
	"github.com/podiumlabs/rehearsal-gateway/internal/stt"
)

// Utterance is the externally visible unit of finalized speech. Timestamps
// are milliseconds since the session started. Immutable once emitted.
type Utterance struct {
	Text    string `json:"text"`
	StartMs int64  `json:"startMs"`
	EndMs   int64  `json:"endMs"`
}

// Callbacks receive aggregator output. OnUtterance fires once per finalized
// utterance; OnPreview carries the live concatenation of committed and
// in-flight text; OnWarning reports non-fatal recognition failures.
type Callbacks struct {
	OnUtterance func(Utterance)
	OnPreview   func(string)
	OnWarning   func(string)
}

// Aggregator re-segments the backend's fragment stream into utterances a
// reader would recognize as sentences. Backend "final" events fire on VAD
// boundaries, which routinely split mid-sentence; the aggregator joins
// fragments and flushes on punctuation and pause heuristics instead.
type Aggregator struct {
	callbacks Callbacks
	logger    zerolog.Logger

	minWords   int
	shortPause time.Duration
	longPause  time.Duration
	debounce   time.Duration

	mu             sync.Mutex
	accumulated    string
	preview        string
	sessionStart   time.Time
	utteranceStart time.Time
	lastFlush      time.Time
	debounceTimer  *time.Timer
	debounceGen    uint64
	stopped        bool
}

// NewAggregator creates an aggregator for one session
func NewAggregator(cfg *config.Config, callbacks Callbacks) *Aggregator {
	now := time.Now()
	return &Aggregator{
		callbacks:    callbacks,
		logger:       observability.GetLogger().With().Str("component", "aggregator").Logger(),
		minWords:     cfg.MinUtteranceWords,
		shortPause:   time.Duration(cfg.ShortPauseMs) * time.Millisecond,
		longPause:    time.Duration(cfg.LongPauseMs) * time.Millisecond,
		debounce:     time.Duration(cfg.DebounceMs) * time.Millisecond,
		sessionStart: now,
		lastFlush:    now,
	}
}

// HandleEvent processes one transcript event. Events arriving after Stop are
// dropped.
func (a *Aggregator) HandleEvent(ev stt.TranscriptEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}

	switch ev.Kind {
	case stt.KindPartial:
		a.handlePartial(ev.Text, ev.Delta)
	case stt.KindFinal:
		a.handleFinal(ev.Text)
	case stt.KindFailed:
		// A failed segment never discards accumulated text; the next final
		// continues where the stream left off.
		a.logger.Warn().Str("reason", ev.Reason).Msg("Recognition failure, keeping accumulated text")
		if a.callbacks.OnWarning != nil {
			a.callbacks.OnWarning(ev.Reason)
		}
	}
}

// handlePartial folds one partial into the rolling preview. Delta partials
// append to it; snapshot partials replace it, since those backends resend the
// whole in-flight region each time.
func (a *Aggregator) handlePartial(text string, delta bool) {
	if delta {
		a.preview += text
	} else {
		a.preview = text
	}
	if a.accumulated == "" && a.utteranceStart.IsZero() && strings.TrimSpace(a.preview) != "" {
		a.utteranceStart = time.Now()
	}
	a.emitPreview()
}

func (a *Aggregator) handleFinal(text string) {
	trimmed := strings.TrimSpace(text)
	a.preview = ""
	if trimmed != "" {
		if a.accumulated == "" {
			if a.utteranceStart.IsZero() {
				a.utteranceStart = time.Now()
			}
			a.accumulated = trimmed
		} else {
			a.accumulated += " " + trimmed
		}
	}
	if a.accumulated == "" {
		return
	}

	now := time.Now()
	sinceFlush := now.Sub(a.lastFlush)
	words := len(strings.Fields(a.accumulated))

	switch {
	case endsWithTerminalPunctuation(a.accumulated):
		a.flushLocked(now)
	case words >= a.minWords && sinceFlush > a.shortPause:
		a.flushLocked(now)
	case sinceFlush > a.longPause:
		a.flushLocked(now)
	default:
		a.armDebounceLocked()
		a.emitPreview()
	}
}

func endsWithTerminalPunctuation(text string) bool {
	return strings.HasSuffix(text, ".") || strings.HasSuffix(text, "!") || strings.HasSuffix(text, "?")
}

// armDebounceLocked (re)starts the quiet-period timer. A generation counter
// keeps a stale timer that already fired from flushing text accumulated
// after it was superseded.
func (a *Aggregator) armDebounceLocked() {
	a.debounceGen++
	gen := a.debounceGen
	if a.debounceTimer != nil {
		a.debounceTimer.Stop()
	}
	a.debounceTimer = time.AfterFunc(a.debounce, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.stopped || gen != a.debounceGen || a.accumulated == "" {
			return
		}
		a.flushLocked(time.Now())
	})
}

func (a *Aggregator) flushLocked(now time.Time) {
	a.debounceGen++
	if a.debounceTimer != nil {
		a.debounceTimer.Stop()
		a.debounceTimer = nil
	}

	text := a.accumulated
	if text == "" {
		return
	}
	start := a.utteranceStart
	if start.IsZero() {
		start = a.lastFlush
	}
	utterance := Utterance{
		Text:    text,
		StartMs: start.Sub(a.sessionStart).Milliseconds(),
		EndMs:   now.Sub(a.sessionStart).Milliseconds(),
	}

	a.accumulated = ""
	a.preview = ""
	a.utteranceStart = time.Time{}
	a.lastFlush = now

	observability.RecordUtterance()
	a.logger.Debug().Int("chars", len(utterance.Text)).Msg("Utterance flushed")
	if a.callbacks.OnUtterance != nil {
		a.callbacks.OnUtterance(utterance)
	}
}

func (a *Aggregator) emitPreview() {
	if a.callbacks.OnPreview == nil {
		return
	}
	combined := a.accumulated
	if p := strings.TrimSpace(a.preview); p != "" {
		if combined != "" {
			combined += " " + p
		} else {
			combined = p
		}
	}
	if combined != "" {
		a.callbacks.OnPreview(combined)
	}
}

// Stop flushes trailing speech exactly once and shuts the aggregator down.
// Accumulated finalized text wins; when there is none, a non-empty preview
// is promoted so the last words of a session are never dropped.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.stopped = true
	a.debounceGen++
	if a.debounceTimer != nil {
		a.debounceTimer.Stop()
		a.debounceTimer = nil
	}

	if a.accumulated == "" {
		if p := strings.TrimSpace(a.preview); p != "" {
			a.accumulated = p
		}
	}
	a.flushLocked(time.Now())
}
