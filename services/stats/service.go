package stats

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/customeros/eventstream/dto"
	"github.com/customeros/eventstream/internal/logger"
)

const (
	DefaultActivityWindow  = 5 * time.Minute
	DefaultMaxTrackedUsers = 10000

	unnamedEvent = "unknown"
)

type Config struct {
	ActivityWindow  time.Duration `env:"STATS_ACTIVITY_WINDOW" envDefault:"5m"`
	MaxTrackedUsers int           `env:"STATS_MAX_TRACKED_USERS" envDefault:"10000"`
}

// TokenActivity is the per-token view of recent distinct users.
type TokenActivity struct {
	Token       string `json:"token"`
	ActiveUsers int    `json:"active_users"`
}

type Snapshot struct {
	TotalEvents int64            `json:"total_events"`
	EventCounts map[string]int64 `json:"event_counts"`
	Tokens      []TokenActivity  `json:"tokens"`
}

// StatsService keeps rolling counters over the event stream. Active users are
// tracked per token in an expiring LRU, so a user counts as active only within
// the configured activity window.
type StatsService struct {
	logger    logger.Logger
	source    <-chan dto.AnalyticsEvent
	window    time.Duration
	maxUsers  int
	startedAt time.Time

	mu          sync.RWMutex
	totalEvents int64
	eventCounts map[string]int64
	activeUsers map[string]*expirable.LRU[string, struct{}]
}

func NewStatsService(log logger.Logger, config *Config, source <-chan dto.AnalyticsEvent) *StatsService {
	if config == nil {
		config = &Config{
			ActivityWindow:  DefaultActivityWindow,
			MaxTrackedUsers: DefaultMaxTrackedUsers,
		}
	}
	window := config.ActivityWindow
	if window <= 0 {
		window = DefaultActivityWindow
	}
	maxUsers := config.MaxTrackedUsers
	if maxUsers <= 0 {
		maxUsers = DefaultMaxTrackedUsers
	}

	return &StatsService{
		logger:      log,
		source:      source,
		window:      window,
		maxUsers:    maxUsers,
		startedAt:   time.Now(),
		eventCounts: make(map[string]int64),
		activeUsers: make(map[string]*expirable.LRU[string, struct{}]),
	}
}

// Run drains the event source until the context is canceled. Receives are
// blocking, which holds back ingestion when counting cannot keep up.
func (s *StatsService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.source:
			if !ok {
				return
			}
			s.Record(event)
		}
	}
}

// Record folds one event into the counters.
func (s *StatsService) Record(event dto.AnalyticsEvent) {
	name := event.Event
	if name == "" {
		name = unnamedEvent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalEvents++
	s.eventCounts[name]++

	if event.Token == "" || event.DistinctId == "" {
		return
	}
	users, ok := s.activeUsers[event.Token]
	if !ok {
		users = expirable.NewLRU[string, struct{}](s.maxUsers, nil, s.window)
		s.activeUsers[event.Token] = users
	}
	users.Add(event.DistinctId, struct{}{})
}

func (s *StatsService) TotalEvents() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalEvents
}

func (s *StatsService) Uptime() time.Duration {
	return time.Since(s.startedAt)
}

// ActiveUserCount reports distinct users seen for a token within the activity
// window.
func (s *StatsService) ActiveUserCount(token string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users, ok := s.activeUsers[token]
	if !ok {
		return 0
	}
	return users.Len()
}

func (s *StatsService) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64, len(s.eventCounts))
	for name, count := range s.eventCounts {
		counts[name] = count
	}

	tokens := make([]TokenActivity, 0, len(s.activeUsers))
	for token, users := range s.activeUsers {
		tokens = append(tokens, TokenActivity{Token: token, ActiveUsers: users.Len()})
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Token < tokens[j].Token })

	return Snapshot{
		TotalEvents: s.totalEvents,
		EventCounts: counts,
		Tokens:      tokens,
	}
}
