package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/jpillora/backoff"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/eventstream/dto"
	"github.com/customeros/eventstream/interfaces"
	"github.com/customeros/eventstream/internal/geo"
	"github.com/customeros/eventstream/internal/logger"
	"github.com/customeros/eventstream/internal/metrics"
	"github.com/customeros/eventstream/internal/tracing"
)

type Config struct {
	Brokers           string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	SecurityProtocol  string `env:"KAFKA_SECURITY_PROTOCOL" envDefault:"PLAINTEXT"`
	GroupID           string `env:"KAFKA_GROUP_ID" envDefault:"eventstream"`
	Topic             string `env:"KAFKA_TOPIC" envDefault:"events_plugin_ingestion"`
	ChannelBufferSize int    `env:"KAFKA_CHANNEL_BUFFER_SIZE" envDefault:"1000"`
}

// KafkaClient is the slice of the confluent consumer the ingestion loop
// uses. Tests swap in a fake; production always holds *kafka.Consumer.
type KafkaClient interface {
	SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	Close() error
}

// Pipeline carries the consumer's three outbound channels. Sends block: a
// stalled downstream consumer stalls ingestion, which keeps at most one
// message in flight and preserves topic order end to end.
type Pipeline struct {
	// Events receives every enriched event, in topic order.
	Events chan dto.AnalyticsEvent
	// Stats receives the same events, after Events.
	Stats chan dto.AnalyticsEvent
	// Tokens receives the raw property bag of every message, before the
	// message is decoded any further.
	Tokens chan dto.RawPropertyBag
}

func NewPipeline(bufferSize int) Pipeline {
	return Pipeline{
		Events: make(chan dto.AnalyticsEvent, bufferSize),
		Stats:  make(chan dto.AnalyticsEvent, bufferSize),
		Tokens: make(chan dto.RawPropertyBag, bufferSize),
	}
}

// KafkaConsumer reads the ingestion topic with a single sequential worker
// and fans decoded events out over the pipeline.
type KafkaConsumer struct {
	client   KafkaClient
	topic    string
	locator  interfaces.GeoLocator
	reporter interfaces.ErrorReporter
	log      logger.Logger
	pipeline Pipeline
	retry    *backoff.Backoff

	stop      chan struct{}
	closeOnce sync.Once
}

func NewKafkaConsumer(
	cfg *Config,
	log logger.Logger,
	locator interfaces.GeoLocator,
	reporter interfaces.ErrorReporter,
	pipeline Pipeline,
) (*KafkaConsumer, error) {
	config := &kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"group.id":           cfg.GroupID,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": false,
		"security.protocol":  cfg.SecurityProtocol,
	}

	client, err := kafka.NewConsumer(config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create kafka consumer")
	}

	return &KafkaConsumer{
		client:   client,
		topic:    cfg.Topic,
		locator:  locator,
		reporter: reporter,
		log:      log,
		pipeline: pipeline,
		retry: &backoff.Backoff{
			Min:    250 * time.Millisecond,
			Max:    30 * time.Second,
			Jitter: true,
		},
		stop: make(chan struct{}),
	}, nil
}

// Consume subscribes to the topic and processes messages until Close is
// called. A failed subscription is fatal; read errors are reported and the
// loop keeps going with backoff.
func (c *KafkaConsumer) Consume() {
	if err := c.client.SubscribeTopics([]string{c.topic}, nil); err != nil {
		c.reporter.CaptureError(err)
		c.log.Fatalf("Failed to subscribe to topic %s: %v", c.topic, err)
		return
	}
	c.log.Infof("Subscribed to topic %s", c.topic)

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		msg, err := c.client.ReadMessage(-1)
		if err != nil {
			select {
			case <-c.stop:
				return
			default:
			}
			metrics.ConsumerReadErrors.Inc()
			c.log.Errorf("Error consuming message: %v", err)
			c.reporter.CaptureError(err)
			time.Sleep(c.retry.Duration())
			continue
		}
		c.retry.Reset()

		c.processMessage(msg.Value)
	}
}

// Close stops the loop at the next iteration boundary. In-flight fan-out
// finishes first; no message is dropped mid-dispatch.
func (c *KafkaConsumer) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		if err := c.client.Close(); err != nil {
			c.log.Errorf("Error closing kafka consumer: %v", err)
		}
	})
}

func (c *KafkaConsumer) processMessage(raw []byte) {
	span, _ := tracing.StartTracerSpan(context.Background(), "KafkaConsumer.processMessage")
	defer span.Finish()
	tracing.TagComponentKafkaConsumer(span)

	metrics.EventsConsumed.Inc()

	bag, err := decodeRawBag(raw)
	if err != nil {
		metrics.DecodeErrors.WithLabelValues(metrics.DecodeStageBag).Inc()
		tracing.TraceErr(span, err)
		c.log.Errorf("Error decoding raw JSON: %v, data: %s", err, string(raw))
	}
	// The token inventory sees every message, decoded or not.
	c.pipeline.Tokens <- bag

	envelope, err := decodeEnvelope(raw)
	if err != nil {
		metrics.DecodeErrors.WithLabelValues(metrics.DecodeStageEnvelope).Inc()
		tracing.TraceErr(span, err)
		c.log.Errorf("Error decoding envelope: %v, data: %s", err, string(raw))
	}

	event := newSeededEvent(time.Now())

	payload, err := decodePayload([]byte(envelope.Data))
	if err != nil {
		metrics.DecodeErrors.WithLabelValues(metrics.DecodeStagePayload).Inc()
		tracing.TraceErr(span, err)
		c.log.Errorf("Error decoding capture payload: %v, data: %s", err, envelope.Data)
	}
	mergePayload(&event, payload)
	applyEnvelopeIdentifiers(&event, envelope)

	if !resolveToken(envelope, &event) {
		metrics.MissingTokens.Inc()
		c.log.Warnf("No valid token found in event %s", string(raw))
	}
	tracing.TagTenantToken(span, event.Token)

	if ipStr := resolveClientIP(envelope, event.Properties); ipStr != "" {
		c.enrichLocation(span, &event, ipStr)
	}

	c.pipeline.Events <- event
	c.pipeline.Stats <- event
}

func (c *KafkaConsumer) enrichLocation(span opentracing.Span, event *dto.AnalyticsEvent, ip string) {
	lat, lng, err := c.locator.Lookup(ip)
	if err != nil {
		// Unroutable addresses are normal traffic, not an incident.
		if errors.Is(err, geo.ErrInvalidIP) {
			metrics.GeoLookups.WithLabelValues(metrics.GeoResultInvalidIP).Inc()
			return
		}
		metrics.GeoLookups.WithLabelValues(metrics.GeoResultError).Inc()
		tracing.TraceErr(span, err)
		c.reporter.CaptureError(err)
		c.log.Errorf("Geolocation lookup failed for %s: %v", ip, err)
		return
	}

	event.Lat = lat
	event.Lng = lng
	metrics.GeoLookups.WithLabelValues(metrics.GeoResultOK).Inc()
}
