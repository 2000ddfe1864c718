package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "conflict", err: ErrTransactionConflict, expected: true},
		{name: "throttled", err: ErrTransactionThrottled, expected: true},
		{name: "wrapped_conflict", err: fmt.Errorf("upsert: %w", ErrTransactionConflict), expected: true},
		{name: "other", err: errors.New("connection refused"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, IsTransient(tt.err))
		})
	}
}
