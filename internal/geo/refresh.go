package geo

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/eventstream/internal/tracing"
)

// Refresher ties the R2 fetch and the live reader swap together so the
// cron job has a single operation to call.
type Refresher struct {
	fetcher *DatabaseFetcher
	locator *MaxMindLocator
}

func NewRefresher(fetcher *DatabaseFetcher, locator *MaxMindLocator) *Refresher {
	return &Refresher{fetcher: fetcher, locator: locator}
}

func (r *Refresher) Refresh(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Refresher.Refresh")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := r.fetcher.Fetch(ctx); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err := r.locator.Reload(); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
