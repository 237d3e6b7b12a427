package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/eventstream/dto"
	"github.com/customeros/eventstream/internal/logger"
)

func newTestLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true, Encoder: "console", LogLevel: "error"})
	appLogger.InitLogger()
	return appLogger
}

func TestRecordCountsEvents(t *testing.T) {
	service := NewStatsService(newTestLogger(), nil, nil)

	service.Record(dto.AnalyticsEvent{Event: "$pageview", Token: "tok_a", DistinctId: "user-1"})
	service.Record(dto.AnalyticsEvent{Event: "$pageview", Token: "tok_a", DistinctId: "user-2"})
	service.Record(dto.AnalyticsEvent{Event: "$identify", Token: "tok_a", DistinctId: "user-1"})
	service.Record(dto.AnalyticsEvent{Token: "tok_a", DistinctId: "user-1"})

	snapshot := service.Snapshot()
	assert.Equal(t, int64(4), snapshot.TotalEvents)
	assert.Equal(t, int64(2), snapshot.EventCounts["$pageview"])
	assert.Equal(t, int64(1), snapshot.EventCounts["$identify"])
	assert.Equal(t, int64(1), snapshot.EventCounts["unknown"])
}

func TestActiveUsersTrackedPerToken(t *testing.T) {
	service := NewStatsService(newTestLogger(), nil, nil)

	service.Record(dto.AnalyticsEvent{Event: "$pageview", Token: "tok_a", DistinctId: "user-1"})
	service.Record(dto.AnalyticsEvent{Event: "$pageview", Token: "tok_a", DistinctId: "user-2"})
	service.Record(dto.AnalyticsEvent{Event: "$pageview", Token: "tok_a", DistinctId: "user-1"})
	service.Record(dto.AnalyticsEvent{Event: "$pageview", Token: "tok_b", DistinctId: "user-3"})

	assert.Equal(t, 2, service.ActiveUserCount("tok_a"))
	assert.Equal(t, 1, service.ActiveUserCount("tok_b"))
	assert.Equal(t, 0, service.ActiveUserCount("tok_missing"))
}

func TestAnonymousEventsDoNotCountAsUsers(t *testing.T) {
	service := NewStatsService(newTestLogger(), nil, nil)

	service.Record(dto.AnalyticsEvent{Event: "$pageview", Token: "tok_a"})
	service.Record(dto.AnalyticsEvent{Event: "$pageview", DistinctId: "user-1"})

	assert.Equal(t, int64(2), service.TotalEvents())
	assert.Equal(t, 0, service.ActiveUserCount("tok_a"))
	assert.Equal(t, 0, service.ActiveUserCount(""))
}

func TestActiveUsersExpireAfterWindow(t *testing.T) {
	service := NewStatsService(newTestLogger(), &Config{ActivityWindow: 50 * time.Millisecond, MaxTrackedUsers: 100}, nil)

	service.Record(dto.AnalyticsEvent{Event: "$pageview", Token: "tok_a", DistinctId: "user-1"})
	assert.Equal(t, 1, service.ActiveUserCount("tok_a"))

	require.Eventually(t, func() bool {
		return service.ActiveUserCount("tok_a") == 0
	}, 2*time.Second, 10*time.Millisecond, "user should drop out of the activity window")
}

func TestMaxTrackedUsersBoundsMemory(t *testing.T) {
	service := NewStatsService(newTestLogger(), &Config{ActivityWindow: time.Minute, MaxTrackedUsers: 2}, nil)

	service.Record(dto.AnalyticsEvent{Event: "$pageview", Token: "tok_a", DistinctId: "user-1"})
	service.Record(dto.AnalyticsEvent{Event: "$pageview", Token: "tok_a", DistinctId: "user-2"})
	service.Record(dto.AnalyticsEvent{Event: "$pageview", Token: "tok_a", DistinctId: "user-3"})

	assert.Equal(t, 2, service.ActiveUserCount("tok_a"))
}

func TestSnapshotTokensAreSorted(t *testing.T) {
	service := NewStatsService(newTestLogger(), nil, nil)

	service.Record(dto.AnalyticsEvent{Event: "$pageview", Token: "tok_b", DistinctId: "user-1"})
	service.Record(dto.AnalyticsEvent{Event: "$pageview", Token: "tok_a", DistinctId: "user-2"})

	snapshot := service.Snapshot()
	require.Len(t, snapshot.Tokens, 2)
	assert.Equal(t, "tok_a", snapshot.Tokens[0].Token)
	assert.Equal(t, "tok_b", snapshot.Tokens[1].Token)
}

func TestRunDrainsSource(t *testing.T) {
	source := make(chan dto.AnalyticsEvent)
	service := NewStatsService(newTestLogger(), nil, source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		service.Run(ctx)
		close(done)
	}()

	source <- dto.AnalyticsEvent{Event: "$pageview", Token: "tok_a", DistinctId: "user-1"}
	source <- dto.AnalyticsEvent{Event: "$identify", Token: "tok_a", DistinctId: "user-1"}

	require.Eventually(t, func() bool {
		return service.TotalEvents() == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stats service did not stop")
	}
}
