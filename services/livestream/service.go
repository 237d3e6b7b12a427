package livestream

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/customeros/eventstream/dto"
	"github.com/customeros/eventstream/interfaces"
	"github.com/customeros/eventstream/internal/logger"
	"github.com/customeros/eventstream/internal/metrics"
	"github.com/customeros/eventstream/internal/utils"
)

const (
	DefaultSubscriberBuffer = 100
	DefaultRelayBuffer      = 1024
)

type Config struct {
	SubscriberBuffer int `env:"STREAM_SUBSCRIBER_BUFFER" envDefault:"100"`
	RelayBuffer      int `env:"STREAM_RELAY_BUFFER" envDefault:"1024"`
}

// Filter narrows which events a subscription receives. Zero values match
// everything.
type Filter struct {
	Token      string
	DistinctId string
	EventNames []string
}

func (f Filter) Matches(event dto.AnalyticsEvent) bool {
	if f.Token != "" && event.Token != f.Token {
		return false
	}
	if f.DistinctId != "" && event.DistinctId != f.DistinctId {
		return false
	}
	if len(f.EventNames) > 0 && !utils.IsStringInSlice(event.Event, f.EventNames) {
		return false
	}
	return true
}

// Subscription is a single viewer attached to the hub. Events is closed by
// Unsubscribe, never by the subscriber.
type Subscription struct {
	ID     string
	Filter Filter
	Events chan dto.AnalyticsEvent
}

type LivestreamService struct {
	logger     logger.Logger
	source     <-chan dto.AnalyticsEvent
	publisher  interfaces.EventPublisher
	relay      chan dto.AnalyticsEvent
	bufferSize int

	mu          sync.RWMutex
	subscribers map[string]*Subscription
}

func NewLivestreamService(log logger.Logger, config *Config, source <-chan dto.AnalyticsEvent, publisher interfaces.EventPublisher) *LivestreamService {
	if config == nil {
		config = &Config{
			SubscriberBuffer: DefaultSubscriberBuffer,
			RelayBuffer:      DefaultRelayBuffer,
		}
	}

	service := &LivestreamService{
		logger:      log,
		source:      source,
		publisher:   publisher,
		bufferSize:  config.SubscriberBuffer,
		subscribers: make(map[string]*Subscription),
	}
	if publisher != nil {
		service.relay = make(chan dto.AnalyticsEvent, config.RelayBuffer)
	}
	return service
}

// Run drains the event source until the context is canceled. Receives from the
// source are blocking, which holds back ingestion when the hub cannot keep up.
func (s *LivestreamService) Run(ctx context.Context) {
	if s.relay != nil {
		go s.relayLoop(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.source:
			if !ok {
				return
			}
			s.broadcast(event)
			s.enqueueRelay(event)
		}
	}
}

func (s *LivestreamService) broadcast(event dto.AnalyticsEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscribers {
		if !sub.Filter.Matches(event) {
			continue
		}
		select {
		case sub.Events <- event:
		default:
			// A slow viewer loses events rather than stalling ingestion.
			metrics.StreamDroppedEvents.Inc()
		}
	}
}

func (s *LivestreamService) enqueueRelay(event dto.AnalyticsEvent) {
	if s.relay == nil {
		return
	}
	select {
	case s.relay <- event:
	default:
		metrics.RelayDroppedEvents.Inc()
	}
}

func (s *LivestreamService) relayLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-s.relay:
			if err := s.publisher.PublishAnalyticsEvent(ctx, event); err != nil {
				metrics.RelayErrors.Inc()
				s.logger.Errorf("Failed to relay event %s: %v", event.Uuid, err)
				continue
			}
			metrics.RelayPublishedEvents.Inc()
		}
	}
}

func (s *LivestreamService) Subscribe(filter Filter) *Subscription {
	sub := &Subscription{
		ID:     uuid.New().String(),
		Filter: filter,
		Events: make(chan dto.AnalyticsEvent, s.bufferSize),
	}

	s.mu.Lock()
	s.subscribers[sub.ID] = sub
	count := len(s.subscribers)
	s.mu.Unlock()

	metrics.StreamSubscribers.Set(float64(count))
	s.logger.Infof("Stream subscriber %s connected, %d active", sub.ID, count)
	return sub
}

func (s *LivestreamService) Unsubscribe(id string) {
	s.mu.Lock()
	sub, ok := s.subscribers[id]
	if ok {
		delete(s.subscribers, id)
		// Broadcast sends hold the read lock, so closing here cannot race
		// with a send on this channel.
		close(sub.Events)
	}
	count := len(s.subscribers)
	s.mu.Unlock()

	if !ok {
		return
	}
	metrics.StreamSubscribers.Set(float64(count))
	s.logger.Infof("Stream subscriber %s disconnected, %d active", id, count)
}

func (s *LivestreamService) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
