package consumer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/eventstream/dto"
)

func TestNewSeededEvent(t *testing.T) {
	capturedAt := time.Date(2024, 3, 7, 15, 4, 5, 123_000_000, time.UTC)

	event := newSeededEvent(capturedAt)

	assert.Equal(t, "2024-03-07T15:04:05.123Z", event.Timestamp)
	assert.Empty(t, event.Uuid)
	assert.Empty(t, event.DistinctId)
	assert.Empty(t, event.Token)
	assert.Empty(t, event.Event)
	require.NotNil(t, event.Properties)
	assert.Empty(t, event.Properties)
}

func TestNewSeededEvent_ConvertsToUTC(t *testing.T) {
	cet := time.FixedZone("CET", 60*60)
	capturedAt := time.Date(2024, 3, 7, 16, 4, 5, 123_000_000, cet)

	event := newSeededEvent(capturedAt)

	assert.Equal(t, "2024-03-07T15:04:05.123Z", event.Timestamp)
}

func TestMergePayload_AbsentFieldsKeepSeed(t *testing.T) {
	event := newSeededEvent(time.Now())
	seededTimestamp := event.Timestamp

	payload, err := decodePayload([]byte(`{}`))
	require.NoError(t, err)
	mergePayload(&event, payload)

	assert.Equal(t, seededTimestamp, event.Timestamp)
	assert.Empty(t, event.Token)
	assert.Empty(t, event.Event)
	require.NotNil(t, event.Properties)
	assert.Empty(t, event.Properties)
}

func TestMergePayload_NullFieldsKeepSeed(t *testing.T) {
	event := newSeededEvent(time.Now())
	seededTimestamp := event.Timestamp

	payload, err := decodePayload([]byte(`{"api_key":null,"event":null,"timestamp":null,"properties":null}`))
	require.NoError(t, err)
	mergePayload(&event, payload)

	assert.Equal(t, seededTimestamp, event.Timestamp)
	assert.Empty(t, event.Token)
	assert.Empty(t, event.Event)
	require.NotNil(t, event.Properties)
}

func TestMergePayload_EmptyStringsOverwrite(t *testing.T) {
	event := newSeededEvent(time.Now())

	payload, err := decodePayload([]byte(`{"event":"","timestamp":""}`))
	require.NoError(t, err)
	mergePayload(&event, payload)

	assert.Equal(t, "", event.Event)
	assert.Equal(t, "", event.Timestamp)
}

func TestMergePayload_PayloadValuesOverwrite(t *testing.T) {
	event := newSeededEvent(time.Now())

	payload, err := decodePayload([]byte(`{
		"api_key": "phc_abc123",
		"event": "$pageview",
		"timestamp": "2024-01-15T10:30:00.000Z",
		"properties": {"$browser": "Firefox"}
	}`))
	require.NoError(t, err)
	mergePayload(&event, payload)

	assert.Equal(t, "phc_abc123", event.Token)
	assert.Equal(t, "$pageview", event.Event)
	assert.Equal(t, "2024-01-15T10:30:00.000Z", event.Timestamp)
	assert.Equal(t, map[string]interface{}{"$browser": "Firefox"}, event.Properties)
}

func TestApplyEnvelopeIdentifiers_AlwaysWin(t *testing.T) {
	event := newSeededEvent(time.Now())
	event.Uuid = "payload-uuid"
	event.DistinctId = "payload-distinct"

	applyEnvelopeIdentifiers(&event, dto.EventEnvelope{Uuid: "env-uuid", DistinctId: "env-distinct"})

	assert.Equal(t, "env-uuid", event.Uuid)
	assert.Equal(t, "env-distinct", event.DistinctId)
}

func TestApplyEnvelopeIdentifiers_EmptyEnvelopeClearsIdentifiers(t *testing.T) {
	event := newSeededEvent(time.Now())
	event.Uuid = "payload-uuid"
	event.DistinctId = "payload-distinct"

	applyEnvelopeIdentifiers(&event, dto.EventEnvelope{})

	assert.Empty(t, event.Uuid)
	assert.Empty(t, event.DistinctId)
}

func TestResolveToken(t *testing.T) {
	testCases := []struct {
		name          string
		envelopeToken string
		payloadToken  string
		properties    map[string]interface{}
		expectedToken string
		expectedFound bool
	}{
		{
			name:          "envelope token wins over everything",
			envelopeToken: "env-token",
			payloadToken:  "api-key-token",
			properties:    map[string]interface{}{"token": "prop-token"},
			expectedToken: "env-token",
			expectedFound: true,
		},
		{
			name:          "payload api_key when envelope empty",
			payloadToken:  "api-key-token",
			properties:    map[string]interface{}{"token": "prop-token"},
			expectedToken: "api-key-token",
			expectedFound: true,
		},
		{
			name:          "token property when envelope and api_key empty",
			properties:    map[string]interface{}{"token": "prop-token"},
			expectedToken: "prop-token",
			expectedFound: true,
		},
		{
			name:          "no source yields a token",
			properties:    map[string]interface{}{},
			expectedToken: "",
			expectedFound: false,
		},
		{
			name:          "non-string token property is no token",
			properties:    map[string]interface{}{"token": 42},
			expectedToken: "",
			expectedFound: false,
		},
		{
			name:          "empty string token property still counts as found",
			properties:    map[string]interface{}{"token": ""},
			expectedToken: "",
			expectedFound: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			event := newSeededEvent(time.Now())
			event.Token = tc.payloadToken
			event.Properties = tc.properties
			envelope := dto.EventEnvelope{Token: tc.envelopeToken}

			found := resolveToken(envelope, &event)

			assert.Equal(t, tc.expectedFound, found)
			assert.Equal(t, tc.expectedToken, event.Token)
		})
	}
}

func TestResolveClientIP(t *testing.T) {
	testCases := []struct {
		name       string
		envelopeIP string
		properties map[string]interface{}
		expected   string
	}{
		{
			name:       "ip property wins over envelope",
			envelopeIP: "10.0.0.1",
			properties: map[string]interface{}{"$ip": "203.0.113.7"},
			expected:   "203.0.113.7",
		},
		{
			name:       "envelope ip when property absent",
			envelopeIP: "10.0.0.1",
			properties: map[string]interface{}{},
			expected:   "10.0.0.1",
		},
		{
			name:       "no ip at all",
			properties: map[string]interface{}{},
			expected:   "",
		},
		{
			name:       "empty ip property suppresses envelope fallback",
			envelopeIP: "10.0.0.1",
			properties: map[string]interface{}{"$ip": ""},
			expected:   "",
		},
		{
			name:       "non-string ip property suppresses envelope fallback",
			envelopeIP: "10.0.0.1",
			properties: map[string]interface{}{"$ip": 1234},
			expected:   "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			envelope := dto.EventEnvelope{Ip: tc.envelopeIP}

			assert.Equal(t, tc.expected, resolveClientIP(envelope, tc.properties))
		})
	}
}

func TestDecodeRawBag_SeesKeysTheEnvelopeDoesNot(t *testing.T) {
	bag, err := decodeRawBag([]byte(`{"uuid":"u1","extra_key":"kept","nested":{"api_key":"phc_x"}}`))

	require.NoError(t, err)
	assert.Equal(t, "u1", bag["uuid"])
	assert.Equal(t, "kept", bag["extra_key"])
	assert.Equal(t, map[string]interface{}{"api_key": "phc_x"}, bag["nested"])
}

func TestDecodeRawBag_MalformedReturnsNilBag(t *testing.T) {
	bag, err := decodeRawBag([]byte(`not json`))

	require.Error(t, err)
	assert.Nil(t, bag)
}

func TestDecodeEnvelope_IgnoresUnknownKeys(t *testing.T) {
	envelope, err := decodeEnvelope([]byte(`{"uuid":"u1","distinct_id":"d1","ip":"1.2.3.4","token":"t1","data":"{}","now":"2024-01-01"}`))

	require.NoError(t, err)
	assert.Equal(t, "u1", envelope.Uuid)
	assert.Equal(t, "d1", envelope.DistinctId)
	assert.Equal(t, "1.2.3.4", envelope.Ip)
	assert.Equal(t, "t1", envelope.Token)
	assert.Equal(t, "{}", envelope.Data)
}

func TestDecodePayload_EmptyDataIsAnError(t *testing.T) {
	_, err := decodePayload([]byte(""))

	require.Error(t, err)
}

func TestCapturePayload_RoundTripThroughAnalyticsEvent(t *testing.T) {
	// A marshalled AnalyticsEvent must decode back as a capture payload,
	// token included, because of the api_key tag.
	event := dto.AnalyticsEvent{
		Event:      "$identify",
		Token:      "phc_roundtrip",
		Timestamp:  "2024-01-15T10:30:00.000Z",
		Properties: map[string]interface{}{"plan": "scale"},
	}
	raw, err := json.Marshal(event)
	require.NoError(t, err)

	payload, err := decodePayload(raw)

	require.NoError(t, err)
	require.NotNil(t, payload.APIKey)
	assert.Equal(t, "phc_roundtrip", *payload.APIKey)
	require.NotNil(t, payload.Event)
	assert.Equal(t, "$identify", *payload.Event)
}
