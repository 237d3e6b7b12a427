package consumer

import (
	"encoding/json"
	"time"

	"github.com/customeros/eventstream/dto"
	"github.com/customeros/eventstream/internal/utils"
)

// captureTimeFormat is the wire timestamp layout, millisecond precision UTC.
const captureTimeFormat = "2006-01-02T15:04:05.000Z"

// capturePayload mirrors the capture document embedded in the envelope's
// data field. Pointer fields keep absent and null apart from empty, so the
// merge below can tell "field not sent" from "field sent empty".
type capturePayload struct {
	APIKey     *string                `json:"api_key"`
	Event      *string                `json:"event"`
	Properties map[string]interface{} `json:"properties"`
	Timestamp  *string                `json:"timestamp"`
}

func decodeRawBag(raw []byte) (dto.RawPropertyBag, error) {
	var bag dto.RawPropertyBag
	err := json.Unmarshal(raw, &bag)
	return bag, err
}

func decodeEnvelope(raw []byte) (dto.EventEnvelope, error) {
	var envelope dto.EventEnvelope
	err := json.Unmarshal(raw, &envelope)
	return envelope, err
}

func decodePayload(data []byte) (capturePayload, error) {
	var payload capturePayload
	err := json.Unmarshal(data, &payload)
	return payload, err
}

// newSeededEvent builds the normalized event every message starts from:
// capture time stamped by this service, empty identifiers and an empty but
// non-nil property map.
func newSeededEvent(capturedAt time.Time) dto.AnalyticsEvent {
	return dto.AnalyticsEvent{
		Timestamp:  capturedAt.UTC().Format(captureTimeFormat),
		Token:      "",
		Event:      "",
		Properties: make(map[string]interface{}),
	}
}

// mergePayload lays the capture payload over the seeded event. Fields the
// payload did not send, or sent as null, keep their seeded values; fields
// sent empty overwrite.
func mergePayload(event *dto.AnalyticsEvent, payload capturePayload) {
	event.Token = utils.GetOrDefault(payload.APIKey, event.Token)
	event.Event = utils.GetOrDefault(payload.Event, event.Event)
	event.Timestamp = utils.GetOrDefault(payload.Timestamp, event.Timestamp)
	if payload.Properties != nil {
		event.Properties = payload.Properties
	}
}

// applyEnvelopeIdentifiers stamps the broker envelope's identifiers onto
// the event. The envelope always wins, even when empty.
func applyEnvelopeIdentifiers(event *dto.AnalyticsEvent, envelope dto.EventEnvelope) {
	event.Uuid = envelope.Uuid
	event.DistinctId = envelope.DistinctId
}

// resolveToken settles the event token: envelope token first, then the
// payload api_key carried through the merge, then a token property. The
// false return means no source produced a usable token.
func resolveToken(envelope dto.EventEnvelope, event *dto.AnalyticsEvent) bool {
	if envelope.Token != "" {
		event.Token = envelope.Token
		return true
	}
	if event.Token != "" {
		return true
	}
	if tokenValue, ok := event.Properties["token"].(string); ok {
		event.Token = tokenValue
		return true
	}
	return false
}

// resolveClientIP picks the address used for geolocation. A present $ip
// property claims the decision even when unusable: the envelope address is
// only consulted when the property is absent entirely.
func resolveClientIP(envelope dto.EventEnvelope, properties map[string]interface{}) string {
	if ipValue, ok := properties["$ip"]; ok {
		if ipProp, ok := ipValue.(string); ok && ipProp != "" {
			return ipProp
		}
		return ""
	}
	return envelope.Ip
}
