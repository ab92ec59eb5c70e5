package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidExpression(t *testing.T) {
	_, err := New("repair", "not a cron", func(context.Context) error { return nil }, zerolog.Nop())
	assert.Error(t, err)
}

func TestRunNowSkipsOverlappingRun(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	calls := 0

	s, err := New("repair", "@hourly", func(context.Context) error {
		calls++
		close(started)
		<-release
		return nil
	}, zerolog.Nop())
	require.NoError(t, err)

	done := make(chan error)
	go func() { done <- s.RunNow(context.Background()) }()
	<-started

	// second call while the first is blocked returns immediately
	require.NoError(t, s.RunNow(context.Background()))
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, calls)
}

func TestRunNowReturnsJobError(t *testing.T) {
	boom := errors.New("boom")
	s, err := New("repair", "@daily", func(context.Context) error { return boom }, zerolog.Nop())
	require.NoError(t, err)

	assert.ErrorIs(t, s.RunNow(context.Background()), boom)
	// the guard is released after a failure
	assert.ErrorIs(t, s.RunNow(context.Background()), boom)
}
