package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Minute)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := cb.Call(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d error = %v, want %v", i+1, err, boom)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want %v", cb.State(), StateOpen)
	}

	if err := cb.Call(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("open circuit error = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Minute)
	boom := errors.New("boom")

	cb.Call(func() error { return boom })
	cb.Call(func() error { return boom })
	cb.Call(func() error { return nil })
	cb.Call(func() error { return boom })
	cb.Call(func() error { return boom })

	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want %v after interleaved success", cb.State(), StateClosed)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)
	cb.Call(func() error { return errors.New("boom") })
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want %v", cb.State(), StateOpen)
	}

	time.Sleep(20 * time.Millisecond)

	// Three successful probes close the circuit again.
	for i := 0; i < 3; i++ {
		if err := cb.Call(func() error { return nil }); err != nil {
			t.Fatalf("probe %d error = %v", i+1, err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want %v after recovery", cb.State(), StateClosed)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)
	cb.Call(func() error { return errors.New("boom") })

	time.Sleep(20 * time.Millisecond)

	cb.Call(func() error { return errors.New("still down") })
	if cb.State() != StateOpen {
		t.Errorf("State() = %v, want %v after failed probe", cb.State(), StateOpen)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, time.Minute)
	cb.Call(func() error { return errors.New("boom") })
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want %v", cb.State(), StateOpen)
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want %v after reset", cb.State(), StateClosed)
	}
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Errorf("call after reset error = %v", err)
	}
}
