package services

import (
	"context"

	"aviary/internal/core"
)

// BreedingService builds the breeding performance report.
type BreedingService struct {
	deps  Deps
	views *viewCache
}

func (s *BreedingService) Report(ctx context.Context) (core.BreedingReport, error) {
	return cached(s.views, "breeding", func() (core.BreedingReport, error) {
		snap, err := loadSnapshot(ctx, s.deps.Store)
		if err != nil {
			return core.BreedingReport{}, err
		}
		return core.BuildBreedingReport(snap.pairs, snap.birds, snap.clutches), nil
	})
}
