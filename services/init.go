package services

import (
	"github.com/customeros/eventstream/interfaces"
	"github.com/customeros/eventstream/internal/consumer"
	"github.com/customeros/eventstream/internal/logger"
	"github.com/customeros/eventstream/internal/repository"
	"github.com/customeros/eventstream/services/events"
	"github.com/customeros/eventstream/services/livestream"
	"github.com/customeros/eventstream/services/stats"
	"github.com/customeros/eventstream/services/tokens"
)

type Services struct {
	EventsService     *events.EventsService
	LivestreamService *livestream.LivestreamService
	StatsService      *stats.StatsService
	TokensService     *tokens.TokensService
}

func InitServices(rabbitmqURL string, log logger.Logger, repos *repository.Repositories, pipeline *consumer.Pipeline, livestreamConfig *livestream.Config, statsConfig *stats.Config) (*Services, error) {
	services := Services{}

	// The relay is optional. Without a broker URL events only reach live
	// viewers.
	if rabbitmqURL != "" {
		publisherConfig := &events.PublisherConfig{
			MessageTTL:          events.DefaultMessageTTL,
			MaxRetries:          events.DefaultMaxRetries,
			PublishTimeout:      events.DefaultPublishTimeout,
			ReconnectBackoff:    events.DefaultReconnectBackoff,
			MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
		}

		eventsService, err := events.NewEventsService(rabbitmqURL, log, publisherConfig)
		if err != nil {
			return nil, err
		}
		services.EventsService = eventsService
	}

	var publisher interfaces.EventPublisher
	if services.EventsService != nil {
		publisher = services.EventsService.Publisher
	}

	var tokenRepository interfaces.TokenRepository
	if repos != nil {
		tokenRepository = repos.TokenRepository
	}

	services.LivestreamService = livestream.NewLivestreamService(log, livestreamConfig, pipeline.Events, publisher)
	services.StatsService = stats.NewStatsService(log, statsConfig, pipeline.Stats)
	services.TokensService = tokens.NewTokensService(log, pipeline.Tokens, tokenRepository)

	return &services, nil
}
