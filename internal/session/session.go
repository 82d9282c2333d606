package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/podiumlabs/rehearsal-gateway/internal/audio"
	"github.com/podiumlabs/rehearsal-gateway/internal/config"
	"github.com/podiumlabs/rehearsal-gateway/internal/observability"
	"github.com/podiumlabs/rehearsal-gateway/internal/stt"
	"github.com/podiumlabs/rehearsal-gateway/internal/transcript"
)

// LiveSession runs the live transcription pipeline for one client: ingress
// ring buffer, commit window, streaming backend, utterance aggregation. All
// per-session state is mutated only by the run loop, which serializes the
// three event sources (audio ingress, backend events, commit timer).
type LiveSession struct {
	id         string
	cfg        *config.Config
	client     stt.LiveClient
	aggregator *transcript.Aggregator
	registry   *transcript.Registry
	logger     zerolog.Logger

	ring       *audio.CaptureRing
	window     *audio.CommitWindow
	gate       *audio.SilenceGate
	frameBytes int

	audioNotify chan struct{}
	stopCh      chan struct{}
	done        chan struct{}
	stopOnce    sync.Once
	started     time.Time
	dropped     int64
}

// NewLiveSession wires the pipeline for one client connection. Callbacks
// receive aggregator output and run on the aggregator's goroutines; they
// must not block.
func NewLiveSession(cfg *config.Config, client stt.LiveClient, registry *transcript.Registry, callbacks transcript.Callbacks) *LiveSession {
	id := observability.NewID()
	s := &LiveSession{
		id:         id,
		cfg:        cfg,
		client:     client,
		aggregator: transcript.NewAggregator(cfg, callbacks),
		registry:   registry,
		logger:     observability.WithSession(id),
		ring:       audio.NewCaptureRing(cfg.CaptureBufferSize),
		window:     audio.NewCommitWindow(cfg.SampleRate),
		// 20ms frames keep appends small and capture-ordered.
		frameBytes:  cfg.SampleRate / 50 * 2,
		audioNotify: make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
		started:     time.Now(),
	}
	if cfg.SilenceGate {
		s.gate = audio.NewSilenceGate(&audio.GateConfig{
			Threshold:     cfg.SilenceThreshold,
			HangoverTicks: 1,
		})
	}
	return s
}

// ID returns the session identifier
func (s *LiveSession) ID() string {
	return s.id
}

// Start connects the streaming backend and launches the run loop. A
// credential or connection failure is returned immediately and the session
// never starts.
func (s *LiveSession) Start(ctx context.Context) error {
	if err := s.client.Connect(ctx); err != nil {
		observability.RecordError("connect_failed", "session")
		return err
	}

	observability.RecordSessionStart()
	if s.registry != nil {
		s.registry.Register(s.id, s.aggregator)
	}
	go s.run()

	s.logger.Info().Msg("Live session started")
	return nil
}

// IngestAudio accepts one blob of PCM16 audio from the client connection.
// Never blocks: when the run loop falls behind, excess audio is dropped at
// the ring buffer.
func (s *LiveSession) IngestAudio(data []byte) {
	s.ring.Write(data)
	if d := s.ring.Dropped(); d > s.dropped {
		observability.RecordDroppedAudio(d - s.dropped)
		s.logger.Warn().Int64("dropped_bytes", d-s.dropped).Msg("Ingress buffer full, dropping audio")
		s.dropped = d
	}
	select {
	case s.audioNotify <- struct{}{}:
	default:
	}
}

// Stop shuts the session down. Idempotent; safe from any goroutine.
func (s *LiveSession) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Wait blocks until the run loop has torn the session down
func (s *LiveSession) Wait() {
	<-s.done
}

// run is the session event loop. The commit timer, the ingress notifier and
// the backend event stream all land here, so window and aggregator state
// need no further locking.
func (s *LiveSession) run() {
	defer close(s.done)

	ticker := time.NewTicker(time.Duration(s.cfg.CommitIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	events := s.client.Events()
	for {
		select {
		case <-s.stopCh:
			s.teardown(true)
			return

		case <-s.audioNotify:
			s.drainAudio()

		case ev, ok := <-events:
			if !ok {
				// Backend closed the stream; terminal for this session.
				s.teardown(false)
				return
			}
			s.aggregator.HandleEvent(ev)
			if ev.Kind == stt.KindFailed && ev.Terminal {
				s.teardown(false)
				return
			}

		case <-ticker.C:
			s.onTick()
		}
	}
}

// drainAudio moves buffered ingress audio into the commit window and onto
// the wire in fixed-size frames, preserving capture order.
func (s *LiveSession) drainAudio() {
	for {
		frame := s.ring.ReadFrame(s.frameBytes)
		if frame == nil {
			return
		}
		s.window.Append(frame)
		observability.RecordAudioBytes("live", int64(len(frame)))
		if err := s.client.AppendFrame(frame); err != nil {
			observability.RecordError("append_failed", "session")
			s.logger.Error().Err(err).Msg("Failed to send audio frame")
		}
	}
}

// onTick runs the commit schedule: skip idle windows, hold back windows too
// small to recognize, gate out pure silence, commit the rest.
func (s *LiveSession) onTick() {
	if s.window.Idle() {
		return
	}
	minSamples := s.cfg.SampleRate * s.cfg.MinCommitMs / 1000
	if !s.window.Eligible(minSamples) {
		observability.RecordCommit("skipped_small", 0)
		return
	}

	seconds := s.window.Seconds()
	data := s.window.Take()
	if s.gate != nil {
		if rms := audio.RMSBytes(data); !s.gate.ShouldCommit(rms) {
			// Audio is already appended upstream; the next commit covers it.
			observability.RecordCommit("skipped_silent", seconds)
			return
		}
	}

	if err := s.client.Commit(); err != nil {
		observability.RecordError("commit_failed", "session")
		s.logger.Error().Err(err).Msg("Commit failed")
		return
	}
	observability.RecordCommit("committed", seconds)
}

// teardown releases everything the session holds. Buffered-but-uncommitted
// audio is discarded unless FlushOnStop asked for one last commit on a
// graceful stop.
func (s *LiveSession) teardown(graceful bool) {
	s.drainAudio()

	minSamples := s.cfg.SampleRate * s.cfg.MinCommitMs / 1000
	if graceful && s.cfg.FlushOnStop && s.window.Eligible(minSamples) {
		seconds := s.window.Seconds()
		s.window.Take()
		if err := s.client.Commit(); err == nil {
			observability.RecordCommit("committed", seconds)
		}
	} else {
		s.window.Discard()
	}

	if err := s.client.Stop(); err != nil {
		s.logger.Error().Err(err).Msg("Error stopping backend client")
	}
	s.aggregator.Stop()
	if s.registry != nil {
		s.registry.Unregister(s.id)
	}
	if s.gate != nil {
		s.gate.Reset()
	}
	observability.RecordSessionEnd(s.started)
	s.logger.Info().Dur("duration", time.Since(s.started)).Msg("Live session ended")
}
