package cache

import (
	"context"
	"time"

	"stockman/internal/domain"
)

// ReportCache holds computed dashboard aggregates. Ledger writes invalidate
// the whole cache; entries also expire on their TTL.
type ReportCache interface {
	GetOverallStats(ctx context.Context) (*domain.OverallStats, bool, error)
	SetOverallStats(ctx context.Context, stats domain.OverallStats, ttl time.Duration) error
	GetInventoryStats(ctx context.Context) (*domain.InventoryStats, bool, error)
	SetInventoryStats(ctx context.Context, stats domain.InventoryStats, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopReportCache struct{}

func (NoopReportCache) GetOverallStats(_ context.Context) (*domain.OverallStats, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) SetOverallStats(_ context.Context, _ domain.OverallStats, _ time.Duration) error {
	return nil
}

func (NoopReportCache) GetInventoryStats(_ context.Context) (*domain.InventoryStats, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) SetInventoryStats(_ context.Context, _ domain.InventoryStats, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Invalidate(_ context.Context) error {
	return nil
}
