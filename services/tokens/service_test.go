package tokens

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/eventstream/dto"
	"github.com/customeros/eventstream/interfaces"
	"github.com/customeros/eventstream/internal/logger"
	"github.com/customeros/eventstream/internal/models"
)

func newTestLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true, Encoder: "console", LogLevel: "error"})
	appLogger.InitLogger()
	return appLogger
}

var _ interfaces.TokenInventoryService = &TokensService{}

type recordedUpsert struct {
	token      string
	sourceKeys []string
	seenCount  int64
	firstSeen  time.Time
	lastSeen   time.Time
}

type fakeTokenRepository struct {
	mu      sync.Mutex
	upserts []recordedUpsert
	err     error
}

var _ interfaces.TokenRepository = &fakeTokenRepository{}

func (r *fakeTokenRepository) Upsert(ctx context.Context, token string, sourceKeys []string, seenCount int64, firstSeenAt, lastSeenAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.upserts = append(r.upserts, recordedUpsert{
		token:      token,
		sourceKeys: sourceKeys,
		seenCount:  seenCount,
		firstSeen:  firstSeenAt,
		lastSeen:   lastSeenAt,
	})
	return nil
}

func (r *fakeTokenRepository) GetByToken(ctx context.Context, token string) (*models.TrackedToken, error) {
	return nil, nil
}

func (r *fakeTokenRepository) GetList(ctx context.Context, limit int) ([]*models.TrackedToken, error) {
	return nil, nil
}

func (r *fakeTokenRepository) setError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *fakeTokenRepository) recorded() []recordedUpsert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedUpsert{}, r.upserts...)
}

func TestRecordFindsTopLevelToken(t *testing.T) {
	service := NewTokensService(newTestLogger(), nil, nil)

	service.Record(dto.RawPropertyBag{"token": "tok_a", "event": "$pageview"})

	summaries := service.List()
	require.Len(t, summaries, 1)
	assert.Equal(t, "tok_a", summaries[0].Token)
	assert.Equal(t, []string{"token"}, summaries[0].Sources)
	assert.Equal(t, int64(1), summaries[0].SeenCount)
}

func TestRecordFindsApiKeyInNestedProperties(t *testing.T) {
	service := NewTokensService(newTestLogger(), nil, nil)

	service.Record(dto.RawPropertyBag{
		"properties": map[string]interface{}{
			"api_key": "tok_b",
			"$os":     "linux",
		},
	})

	summaries := service.List()
	require.Len(t, summaries, 1)
	assert.Equal(t, "tok_b", summaries[0].Token)
	assert.Equal(t, []string{"api_key"}, summaries[0].Sources)
}

func TestRecordParsesEmbeddedData(t *testing.T) {
	service := NewTokensService(newTestLogger(), nil, nil)

	service.Record(dto.RawPropertyBag{
		"uuid": "evt-1",
		"data": `{"event":"$pageview","api_key":"tok_c","properties":{"token":"tok_d"}}`,
	})

	summaries := service.List()
	require.Len(t, summaries, 2)
	tokens := []string{summaries[0].Token, summaries[1].Token}
	assert.ElementsMatch(t, []string{"tok_c", "tok_d"}, tokens)
}

func TestRecordWalksArrays(t *testing.T) {
	service := NewTokensService(newTestLogger(), nil, nil)

	service.Record(dto.RawPropertyBag{
		"batch": []interface{}{
			map[string]interface{}{"token": "tok_a"},
			map[string]interface{}{"token": "tok_b"},
		},
	})

	summaries := service.List()
	assert.Len(t, summaries, 2)
}

func TestRecordDedupesTokenWithinOneMessage(t *testing.T) {
	service := NewTokensService(newTestLogger(), nil, nil)

	service.Record(dto.RawPropertyBag{
		"token": "tok_a",
		"properties": map[string]interface{}{
			"token":   "tok_a",
			"api_key": "tok_a",
		},
	})

	summaries := service.List()
	require.Len(t, summaries, 1)
	assert.Equal(t, int64(1), summaries[0].SeenCount)
	assert.Equal(t, []string{"api_key", "token"}, summaries[0].Sources)
}

func TestRecordIgnoresNonStringAndEmptyValues(t *testing.T) {
	service := NewTokensService(newTestLogger(), nil, nil)

	service.Record(dto.RawPropertyBag{
		"token":   float64(42),
		"api_key": "",
	})
	service.Record(nil)

	assert.Empty(t, service.List())
}

func TestFlushUpsertsPendingTokens(t *testing.T) {
	repo := &fakeTokenRepository{}
	service := NewTokensService(newTestLogger(), nil, repo)

	service.Record(dto.RawPropertyBag{"token": "tok_a"})
	service.Record(dto.RawPropertyBag{"token": "tok_a"})

	err := service.Flush(context.Background())
	require.NoError(t, err)

	upserts := repo.recorded()
	require.Len(t, upserts, 1)
	assert.Equal(t, "tok_a", upserts[0].token)
	assert.Equal(t, int64(2), upserts[0].seenCount)
	assert.Equal(t, []string{"token"}, upserts[0].sourceKeys)

	// Nothing new since the last flush.
	err = service.Flush(context.Background())
	require.NoError(t, err)
	assert.Len(t, repo.recorded(), 1)

	// New activity flushes only the delta.
	service.Record(dto.RawPropertyBag{"token": "tok_a"})
	err = service.Flush(context.Background())
	require.NoError(t, err)
	upserts = repo.recorded()
	require.Len(t, upserts, 2)
	assert.Equal(t, int64(1), upserts[1].seenCount)

	// The in-memory total keeps counting across flushes.
	summaries := service.List()
	require.Len(t, summaries, 1)
	assert.Equal(t, int64(3), summaries[0].SeenCount)
}

func TestFlushWithoutRepositoryIsNoop(t *testing.T) {
	service := NewTokensService(newTestLogger(), nil, nil)

	service.Record(dto.RawPropertyBag{"token": "tok_a"})

	assert.NoError(t, service.Flush(context.Background()))
}

func TestFlushRestoresCountsOnFailure(t *testing.T) {
	repo := &fakeTokenRepository{}
	repo.setError(errors.New("connection refused"))
	service := NewTokensService(newTestLogger(), nil, repo)

	service.Record(dto.RawPropertyBag{"token": "tok_a"})
	service.Record(dto.RawPropertyBag{"token": "tok_a"})

	err := service.Flush(context.Background())
	require.Error(t, err)
	assert.Empty(t, repo.recorded())

	// Once the store recovers, the failed counts go out with the next flush.
	repo.setError(nil)
	err = service.Flush(context.Background())
	require.NoError(t, err)

	upserts := repo.recorded()
	require.Len(t, upserts, 1)
	assert.Equal(t, int64(2), upserts[0].seenCount)
}

func TestListOrdersByCount(t *testing.T) {
	service := NewTokensService(newTestLogger(), nil, nil)

	service.Record(dto.RawPropertyBag{"token": "tok_rare"})
	service.Record(dto.RawPropertyBag{"token": "tok_common"})
	service.Record(dto.RawPropertyBag{"token": "tok_common"})

	summaries := service.List()
	require.Len(t, summaries, 2)
	assert.Equal(t, "tok_common", summaries[0].Token)
	assert.Equal(t, "tok_rare", summaries[1].Token)
}

func TestRunDrainsSource(t *testing.T) {
	source := make(chan dto.RawPropertyBag)
	service := NewTokensService(newTestLogger(), source, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		service.Run(ctx)
		close(done)
	}()

	source <- dto.RawPropertyBag{"token": "tok_a"}
	source <- dto.RawPropertyBag{"token": "tok_b"}

	require.Eventually(t, func() bool {
		return len(service.List()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tokens service did not stop")
	}
}
