package stt

import (
	"sync"
	"testing"

	"github.com/podiumlabs/rehearsal-gateway/internal/config"
)

func TestDeepgramClient_EmitDuringStopDoesNotPanic(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := NewDeepgramClient(&config.Config{})

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				d.emit(TranscriptEvent{Kind: KindFinal, Text: "closing words"})
			}
		}()

		if err := d.Stop(); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
		wg.Wait()

		// The channel must be closed exactly once and drainable.
		for range d.events {
		}
	}
}

func TestDeepgramClient_StopIdempotent(t *testing.T) {
	d := NewDeepgramClient(&config.Config{})
	if err := d.Stop(); err != nil {
		t.Fatalf("first Stop() error = %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if d.State() != StateClosed {
		t.Errorf("State() = %v, want %v", d.State(), StateClosed)
	}
}

func TestDeepgramClient_EmitAfterStopDropped(t *testing.T) {
	d := NewDeepgramClient(&config.Config{})
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	d.emit(TranscriptEvent{Kind: KindPartial, Text: "too late"})
	if _, ok := <-d.events; ok {
		t.Error("events after stop must be dropped, channel should be closed empty")
	}
}
