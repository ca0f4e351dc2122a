package services

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"aviary/internal/core"
)

const recentClutchLimit = 5

type DashboardStats struct {
	TotalBirds            int `json:"total_birds"`
	TotalPairs            int `json:"total_pairs"`
	ActiveBreedingRecords int `json:"active_breeding_records"`
	Incubators            int `json:"incubators"`
}

// PairDetail is a breeding pair with both birds resolved.
type PairDetail struct {
	core.BreedingPair
	MaleBird   *core.Bird `json:"male_bird"`
	FemaleBird *core.Bird `json:"female_bird"`
}

// ClutchDetail is a clutch with its pair resolved; BreedingPair is nil when
// the pair no longer exists.
type ClutchDetail struct {
	core.Clutch
	BreedingPair *PairDetail `json:"breeding_pair"`
}

type Dashboard struct {
	Stats                 DashboardStats      `json:"stats"`
	RecentBreedingRecords []ClutchDetail      `json:"recent_breeding_records"`
	Notifications         NotificationCounts  `json:"notifications"`
	MonthToDate           core.BalanceSummary `json:"month_to_date"`
}

type DashboardService struct {
	deps          Deps
	views         *viewCache
	notifications *NotificationService
	finance       *FinanceService
}

func (s *DashboardService) Dashboard(ctx context.Context) (Dashboard, error) {
	return cached(s.views, "dashboard:"+s.deps.today().String(), func() (Dashboard, error) {
		return s.build(ctx)
	})
}

func (s *DashboardService) build(ctx context.Context) (Dashboard, error) {
	var (
		d     Dashboard
		snap  snapshot
		notes NotificationReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap, err = loadSnapshot(gctx, s.deps.Store)
		return err
	})
	g.Go(func() (err error) {
		notes, err = s.notifications.Notifications(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.MonthToDate, err = s.finance.MonthToDate(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	for _, b := range snap.birds {
		if b.Status == core.BirdActive {
			d.Stats.TotalBirds++
		}
	}
	for _, p := range snap.pairs {
		if p.Status == core.PairActive {
			d.Stats.TotalPairs++
		}
	}
	for _, c := range snap.clutches {
		if c.Status == core.ClutchIncubating {
			d.Stats.ActiveBreedingRecords++
		}
	}
	d.Stats.Incubators = len(snap.incubators)
	d.Notifications = notes.Counts
	d.RecentBreedingRecords = recentClutches(snap)
	return d, nil
}

func recentClutches(snap snapshot) []ClutchDetail {
	clutches := append([]core.Clutch(nil), snap.clutches...)
	sort.SliceStable(clutches, func(i, j int) bool {
		if !clutches[i].CreatedAt.Equal(clutches[j].CreatedAt) {
			return clutches[i].CreatedAt.After(clutches[j].CreatedAt)
		}
		return clutches[i].ID < clutches[j].ID
	})
	if len(clutches) > recentClutchLimit {
		clutches = clutches[:recentClutchLimit]
	}
	return clutchDetails(clutches, snap.pairs, snap.birds)
}

// pairDetail resolves p's birds from birds; a missing bird stays nil.
func pairDetail(p core.BreedingPair, birds map[string]core.Bird) PairDetail {
	lookup := func(id string) *core.Bird {
		if b, ok := birds[id]; ok {
			return &b
		}
		return nil
	}
	return PairDetail{BreedingPair: p, MaleBird: lookup(p.MaleBirdID), FemaleBird: lookup(p.FemaleBirdID)}
}

func indexBirds(birds []core.Bird) map[string]core.Bird {
	out := make(map[string]core.Bird, len(birds))
	for _, b := range birds {
		out[b.ID] = b
	}
	return out
}

func clutchDetails(clutches []core.Clutch, pairs []core.BreedingPair, birds []core.Bird) []ClutchDetail {
	byID := make(map[string]core.BreedingPair, len(pairs))
	for _, p := range pairs {
		byID[p.ID] = p
	}
	index := indexBirds(birds)
	out := make([]ClutchDetail, 0, len(clutches))
	for _, c := range clutches {
		cd := ClutchDetail{Clutch: c}
		if p, ok := byID[c.BreedingPairID]; ok {
			pd := pairDetail(p, index)
			cd.BreedingPair = &pd
		}
		out = append(out, cd)
	}
	return out
}
