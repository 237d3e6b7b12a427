package dto

// EventEnvelope is the outer document published on the ingestion topic.
// The capture payload travels as an embedded JSON string in Data.
type EventEnvelope struct {
	Uuid       string `json:"uuid"`
	DistinctId string `json:"distinct_id"`
	Ip         string `json:"ip"`
	Data       string `json:"data"`
	Token      string `json:"token"`
}

// RawPropertyBag holds a schema-free decode of the full envelope bytes.
// It is handed to the token inventory untouched, so keys the envelope
// struct does not model are still visible downstream.
type RawPropertyBag map[string]interface{}

// AnalyticsEvent is the normalized event produced by the consumer and
// consumed by the livestream, stats and relay fan-out. Token keeps the
// api_key tag so a marshalled event round-trips as a capture payload.
type AnalyticsEvent struct {
	Uuid       string                 `json:"uuid,omitempty"`
	DistinctId string                 `json:"distinct_id,omitempty"`
	Event      string                 `json:"event"`
	Token      string                 `json:"api_key,omitempty"`
	Timestamp  string                 `json:"timestamp,omitempty"`
	Properties map[string]interface{} `json:"properties"`
	Lat        float64                `json:"lat,omitempty"`
	Lng        float64                `json:"lng,omitempty"`
}
