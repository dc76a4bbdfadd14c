package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"car-market/internal/crawler"
)

func TestStartRejectsInvalidSpec(t *testing.T) {
	s := New(func(ctx context.Context) (*crawler.Summary, error) {
		return &crawler.Summary{}, nil
	}, zerolog.Nop())

	err := s.Start("not a cron spec")
	assert.Error(t, err)
}

func TestScheduledRuns(t *testing.T) {
	var runs int32
	ran := make(chan struct{}, 1)

	s := New(func(ctx context.Context) (*crawler.Summary, error) {
		atomic.AddInt32(&runs, 1)
		select {
		case ran <- struct{}{}:
		default:
		}
		return &crawler.Summary{Success: true}, nil
	}, zerolog.Nop())

	require.NoError(t, s.Start("@every 10ms"))
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("crawl never ran")
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(1))
}
