package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextTick(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"mid interval", time.Date(2024, 3, 1, 10, 7, 12, 0, time.UTC), time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)},
		{"on boundary", time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC), time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)},
		{"rolls to midnight", time.Date(2024, 3, 1, 23, 50, 0, 0, time.UTC), time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextTick(tt.now))
		})
	}
}

func TestIsMidnight(t *testing.T) {
	assert.True(t, isMidnight(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)))
	assert.False(t, isMidnight(time.Date(2024, 3, 2, 0, 15, 0, 0, time.UTC)))
	assert.False(t, isMidnight(time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)))
}
