package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventstream_consumer_events_total",
		Help: "Total number of messages read from the ingestion topic.",
	})

	ConsumerReadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventstream_consumer_read_errors_total",
		Help: "Total number of broker read errors.",
	})

	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventstream_consumer_decode_errors_total",
		Help: "Total number of JSON decode failures by decode stage.",
	}, []string{"stage"})

	MissingTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventstream_consumer_missing_tokens_total",
		Help: "Total number of events that resolved to no token.",
	})

	GeoLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventstream_geo_lookups_total",
		Help: "Total number of geolocation lookups by result.",
	}, []string{"result"})

	StreamSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eventstream_stream_subscribers",
		Help: "Number of connected livestream subscribers.",
	})

	StreamDroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventstream_stream_dropped_events_total",
		Help: "Total number of events dropped on slow livestream subscribers.",
	})

	RelayPublishedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventstream_relay_published_events_total",
		Help: "Total number of events relayed to the platform broker.",
	})

	RelayErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventstream_relay_errors_total",
		Help: "Total number of failed relay publishes.",
	})

	RelayDroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventstream_relay_dropped_events_total",
		Help: "Total number of events dropped because the relay queue was full.",
	})

	TrackedTokens = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eventstream_tracked_tokens",
		Help: "Number of distinct tokens held by the token inventory.",
	})

	TokenFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventstream_token_flushes_total",
		Help: "Total number of token inventory flushes to the store.",
	})
)

// Geo lookup result label values.
const (
	GeoResultOK        = "ok"
	GeoResultInvalidIP = "invalid_ip"
	GeoResultError     = "error"
)

// Decode stage label values.
const (
	DecodeStageBag      = "bag"
	DecodeStageEnvelope = "envelope"
	DecodeStagePayload  = "payload"
)
