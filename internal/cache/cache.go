package cache

import (
	"context"
	"time"

	"bengkelinaja/internal/domain"
)

// JobsheetCache holds rendered jobsheet detail snapshots keyed by jobsheet id.
// Entries are invalidated on every mutation of the jobsheet, so a hit is at
// worst one TTL stale.
type JobsheetCache interface {
	Get(ctx context.Context, jobsheetID string) (*domain.JobsheetDetail, bool, error)
	Set(ctx context.Context, jobsheetID string, detail *domain.JobsheetDetail, ttl time.Duration) error
	Invalidate(ctx context.Context, jobsheetID string) error
}

type NoopJobsheetCache struct{}

func (NoopJobsheetCache) Get(_ context.Context, _ string) (*domain.JobsheetDetail, bool, error) {
	return nil, false, nil
}

func (NoopJobsheetCache) Set(_ context.Context, _ string, _ *domain.JobsheetDetail, _ time.Duration) error {
	return nil
}

func (NoopJobsheetCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
