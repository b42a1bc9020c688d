package dashboard

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// RepositoryPort describes the aggregate reads used by Service.
type RepositoryPort interface {
	TicketCounts(ctx context.Context, q Query) (map[string]int, error)
	ImportTotals(ctx context.Context, q Query) (int, float64, error)
	CompletedExports(ctx context.Context, q Query) (int, error)
	WarningPercent(ctx context.Context, warehouseID int64) (float64, error)
}

// Service computes dashboard snapshots. Identical concurrent requests share
// one computation through singleflight; nothing is retained afterwards.
type Service struct {
	repo  RepositoryPort
	group singleflight.Group
}

// NewService constructs dashboard service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Stats assembles the snapshot for one query.
func (s *Service) Stats(ctx context.Context, q Query) (Stats, error) {
	key := fmt.Sprintf("%d|%s|%s", q.WarehouseID, q.DateFrom.Format("2006-01-02"), q.DateTo.Format("2006-01-02"))
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.compute(ctx, q)
	})
	if err != nil {
		return Stats{}, err
	}
	return v.(Stats), nil
}

func (s *Service) compute(ctx context.Context, q Query) (Stats, error) {
	counts, err := s.repo.TicketCounts(ctx, q)
	if err != nil {
		return Stats{}, err
	}
	importCount, importAmount, err := s.repo.ImportTotals(ctx, q)
	if err != nil {
		return Stats{}, err
	}
	exports, err := s.repo.CompletedExports(ctx, q)
	if err != nil {
		return Stats{}, err
	}
	warning, err := s.repo.WarningPercent(ctx, q.WarehouseID)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TicketCounts:     counts,
		ImportCount:      importCount,
		ImportAmount:     importAmount,
		CompletedExports: exports,
		WarningPercent:   warning,
	}, nil
}
