package interfaces

import (
	"context"
	"time"

	"github.com/customeros/eventstream/internal/models"
)

type TokenRepository interface {
	Upsert(ctx context.Context, token string, sourceKeys []string, seenCount int64, firstSeenAt, lastSeenAt time.Time) error
	GetByToken(ctx context.Context, token string) (*models.TrackedToken, error)
	GetList(ctx context.Context, limit int) ([]*models.TrackedToken, error)
}
