package tokens

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/eventstream/dto"
	"github.com/customeros/eventstream/interfaces"
	"github.com/customeros/eventstream/internal/logger"
	"github.com/customeros/eventstream/internal/metrics"
	"github.com/customeros/eventstream/internal/tracing"
	"github.com/customeros/eventstream/internal/utils"
)

type TokenSummary struct {
	Token     string    `json:"token"`
	Sources   []string  `json:"sources"`
	SeenCount int64     `json:"seen_count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

type tokenEntry struct {
	sources      map[string]struct{}
	totalCount   int64
	pendingCount int64
	firstSeen    time.Time
	lastSeen     time.Time
}

// TokensService keeps an inventory of every project token observed on the
// stream, wherever it appears in the raw message. The in-memory registry is
// periodically flushed to the store through the repository.
type TokensService struct {
	logger     logger.Logger
	source     <-chan dto.RawPropertyBag
	repository interfaces.TokenRepository

	mu       sync.Mutex
	registry map[string]*tokenEntry
}

func NewTokensService(log logger.Logger, source <-chan dto.RawPropertyBag, repository interfaces.TokenRepository) *TokensService {
	return &TokensService{
		logger:     log,
		source:     source,
		repository: repository,
		registry:   make(map[string]*tokenEntry),
	}
}

// Run drains the raw message source until the context is canceled. Receives
// are blocking, which holds back ingestion when the inventory cannot keep up.
func (s *TokensService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case bag, ok := <-s.source:
			if !ok {
				return
			}
			s.Record(bag)
		}
	}
}

// Record scans one raw message for tokens and folds them into the registry.
func (s *TokensService) Record(bag dto.RawPropertyBag) {
	found := make(map[string]map[string]struct{})
	collectTokens(map[string]interface{}(bag), found)
	if len(found) == 0 {
		return
	}

	now := utils.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for token, sources := range found {
		entry, ok := s.registry[token]
		if !ok {
			entry = &tokenEntry{
				sources:   make(map[string]struct{}),
				firstSeen: now,
			}
			s.registry[token] = entry
			metrics.TrackedTokens.Set(float64(len(s.registry)))
		}
		for key := range sources {
			entry.sources[key] = struct{}{}
		}
		entry.totalCount++
		entry.pendingCount++
		entry.lastSeen = now
	}
}

// collectTokens walks arbitrarily nested JSON values looking for token and
// api_key string properties. A "data" string value is treated as embedded JSON
// and walked too, since producers nest the event payload that way.
func collectTokens(value interface{}, found map[string]map[string]struct{}) {
	switch typed := value.(type) {
	case map[string]interface{}:
		for key, nested := range typed {
			if key == "token" || key == "api_key" {
				if token, ok := nested.(string); ok && token != "" {
					if found[token] == nil {
						found[token] = make(map[string]struct{})
					}
					found[token][key] = struct{}{}
					continue
				}
			}
			if key == "data" {
				if raw, ok := nested.(string); ok {
					var embedded map[string]interface{}
					if err := json.Unmarshal([]byte(raw), &embedded); err == nil {
						collectTokens(embedded, found)
					}
					continue
				}
			}
			collectTokens(nested, found)
		}
	case []interface{}:
		for _, nested := range typed {
			collectTokens(nested, found)
		}
	}
}

// Flush writes all tokens with unflushed activity to the store. Counts are
// additive on the repository side, so pending counts reset once handed off and
// are restored if the upsert fails.
func (s *TokensService) Flush(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TokensService.Flush")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if s.repository == nil {
		return nil
	}

	type pendingUpsert struct {
		token     string
		sources   []string
		count     int64
		firstSeen time.Time
		lastSeen  time.Time
	}

	s.mu.Lock()
	pending := make([]pendingUpsert, 0, len(s.registry))
	for token, entry := range s.registry {
		if entry.pendingCount == 0 {
			continue
		}
		pending = append(pending, pendingUpsert{
			token:     token,
			sources:   sortedKeys(entry.sources),
			count:     entry.pendingCount,
			firstSeen: entry.firstSeen,
			lastSeen:  entry.lastSeen,
		})
		entry.pendingCount = 0
	}
	s.mu.Unlock()

	span.LogKV("tokens.pending", len(pending))

	var flushErr error
	for _, p := range pending {
		err := s.repository.Upsert(ctx, p.token, p.sources, p.count, p.firstSeen, p.lastSeen)
		if err != nil {
			flushErr = err
			s.logger.Errorf("Failed to flush token %s: %v", p.token, err)

			s.mu.Lock()
			if entry, ok := s.registry[p.token]; ok {
				entry.pendingCount += p.count
			}
			s.mu.Unlock()
		}
	}
	if flushErr != nil {
		tracing.TraceErr(span, flushErr)
		return flushErr
	}

	metrics.TokenFlushes.Inc()
	return nil
}

// List reports the inventory ordered by how often each token was seen.
func (s *TokensService) List() []TokenSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaries := make([]TokenSummary, 0, len(s.registry))
	for token, entry := range s.registry {
		summaries = append(summaries, TokenSummary{
			Token:     token,
			Sources:   sortedKeys(entry.sources),
			SeenCount: entry.totalCount,
			FirstSeen: entry.firstSeen,
			LastSeen:  entry.lastSeen,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].SeenCount != summaries[j].SeenCount {
			return summaries[i].SeenCount > summaries[j].SeenCount
		}
		return summaries[i].Token < summaries[j].Token
	})
	return summaries
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
