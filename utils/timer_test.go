package utils

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances by step on every reading
func fakeClock(step time.Duration) func() time.Time {
	now := time.Unix(0, 0)
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	timer.now = fakeClock(time.Millisecond)

	timer.Start("Generic", "Importing data")
	timer.Start("GPU", "Device setup")
	elapsed, err := timer.Stop("GPU", "Device setup")
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, elapsed)
	elapsed, err = timer.Stop("Generic", "Importing data")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Millisecond, elapsed)

	_, err = timer.Stop("Compute", "never started")
	assert.Error(t, err)

	timings := timer.Timings()
	require.Len(t, timings, 2)
	assert.Equal(t, "GPU", timings[0].Kind)
	assert.Equal(t, "Importing data", timings[1].Message)
}

func TestTimer_Time(t *testing.T) {
	timer := NewTimer()
	timer.now = fakeClock(time.Second)

	boom := errors.New("boom")
	err := timer.Time("Compute", "Performing addVector", func() error { return boom })
	assert.ErrorIs(t, err, boom)
	require.NoError(t, timer.Time("Copy", "Copying output", func() error { return nil }))

	// Failed intervals are still recorded
	timings := timer.Timings()
	require.Len(t, timings, 2)
	assert.Equal(t, time.Second, timings[0].Elapsed)

	lines := strings.Split(strings.TrimSpace(timer.Summary()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "[Compute] Performing addVector"))
	assert.True(t, strings.HasPrefix(lines[1], "[Copy] Copying output"))
}
