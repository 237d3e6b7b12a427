package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/customeros/eventstream/internal/utils"
)

// TrackedToken is one project token observed on the ingestion topic,
// together with where in the wire format it was seen.
type TrackedToken struct {
	ID    string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Token string `gorm:"column:token;type:varchar(255);uniqueIndex;not null" json:"token"`
	// SourceKeys lists the JSON keys the token arrived under, e.g. token, api_key
	SourceKeys  pq.StringArray `gorm:"column:source_keys;type:text[]" json:"sourceKeys"`
	SeenCount   int64          `gorm:"column:seen_count;not null;default:0" json:"seenCount"`
	FirstSeenAt time.Time      `gorm:"column:first_seen_at;type:timestamp" json:"firstSeenAt"`
	LastSeenAt  time.Time      `gorm:"column:last_seen_at;type:timestamp" json:"lastSeenAt"`
	// Standard timestamps
	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

// TableName sets the table name
func (TrackedToken) TableName() string {
	return "tracked_tokens"
}

func (t *TrackedToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = utils.GenerateNanoIDWithPrefix("tok", 16)
	}
	return nil
}
