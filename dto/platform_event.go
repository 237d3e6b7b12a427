package dto

type PlatformEvent struct {
	Event    PlatformEventDetails  `json:"event"`
	Metadata PlatformEventMetadata `json:"metadata"`
}

type PlatformEventDetails struct {
	Id          string      `json:"id"`
	TenantToken string      `json:"tenantToken"`
	EventType   string      `json:"eventType"`
	Data        interface{} `json:"data"`
}

type PlatformEventMetadata struct {
	UberTraceId string `json:"uber-trace-id"`
	AppSource   string `json:"appSource"`
	DistinctId  string `json:"distinctId"`
	Timestamp   string `json:"timestamp"`
}
