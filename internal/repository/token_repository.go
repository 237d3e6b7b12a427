package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/eventstream/interfaces"
	"github.com/customeros/eventstream/internal/models"
	"github.com/customeros/eventstream/internal/tracing"
	"github.com/customeros/eventstream/internal/utils"
)

type tokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) interfaces.TokenRepository {
	return &tokenRepository{db: db}
}

// Upsert folds an in-memory token tally into the stored record. Counts are
// additive, FirstSeenAt only moves backwards and LastSeenAt only forwards.
func (r *tokenRepository) Upsert(ctx context.Context, token string, sourceKeys []string, seenCount int64, firstSeenAt, lastSeenAt time.Time) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "TokenRepository.Upsert")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagTenantToken(span, token)

	if token == "" {
		err := errors.New("token is required")
		tracing.TraceErr(span, err)
		return err
	}

	var existing models.TrackedToken
	err := r.db.First(&existing, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		record := models.TrackedToken{
			Token:       token,
			SourceKeys:  sourceKeys,
			SeenCount:   seenCount,
			FirstSeenAt: firstSeenAt,
			LastSeenAt:  lastSeenAt,
		}
		if err := r.db.Create(&record).Error; err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		return nil
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	existing.SeenCount += seenCount
	if firstSeenAt.Before(existing.FirstSeenAt) {
		existing.FirstSeenAt = firstSeenAt
	}
	if lastSeenAt.After(existing.LastSeenAt) {
		existing.LastSeenAt = lastSeenAt
	}
	for _, key := range sourceKeys {
		if !utils.IsStringInSlice(key, existing.SourceKeys) {
			existing.SourceKeys = append(existing.SourceKeys, key)
		}
	}

	if err := r.db.Save(&existing).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *tokenRepository) GetByToken(ctx context.Context, token string) (*models.TrackedToken, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "TokenRepository.GetByToken")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var record models.TrackedToken
	err := r.db.First(&record, "token = ?", token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &record, nil
}

func (r *tokenRepository) GetList(ctx context.Context, limit int) ([]*models.TrackedToken, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "TokenRepository.GetList")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	query := r.db.Order("seen_count DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []*models.TrackedToken
	if err := query.Find(&records).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return records, nil
}
