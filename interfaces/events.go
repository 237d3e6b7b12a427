package interfaces

import (
	"golang.org/x/net/context"

	"github.com/customeros/eventstream/dto"
)

// EventPublisher relays enriched analytics events to the platform broker.
// Publish failures are the publisher's problem to retry; callers treat a
// returned error as terminal for that event.
type EventPublisher interface {
	PublishAnalyticsEvent(ctx context.Context, event dto.AnalyticsEvent) error
	Close() error
}
