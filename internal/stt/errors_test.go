package stt

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"file too large", ErrFileTooLarge, false},
		{"wrapped file too large", fmt.Errorf("segment 3: %w", ErrFileTooLarge), false},
		{"rate limit", &APIError{Status: 429, Message: "slow down"}, true},
		{"server error", &APIError{Status: 503, Message: "unavailable"}, true},
		{"bad request", &APIError{Status: 400, Message: "unsupported format"}, false},
		{"unauthorized", &APIError{Status: 401, Message: "bad key"}, false},
		{"setup failure", &SetupError{Message: "missing key"}, false},
		{"connection failure", &ConnectionError{Message: "reset"}, true},
		{"plain error", errors.New("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
