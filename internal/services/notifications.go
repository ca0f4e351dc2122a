package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"aviary/internal/core"
	"aviary/internal/log"
	"aviary/internal/storage"
)

type NotificationKind string

const (
	KindExpiry       NotificationKind = "expiry"
	KindEnvironment  NotificationKind = "environment"
	KindOverdueHatch NotificationKind = "overdue_hatch"
)

// Severity orders notifications; lower values sort first.
type Severity string

const (
	SeverityExpired  Severity = "expired"
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

func (s Severity) rank() int {
	switch s {
	case SeverityExpired:
		return 0
	case SeverityCritical:
		return 1
	}
	return 2
}

type Notification struct {
	Kind        NotificationKind `json:"kind"`
	Severity    Severity         `json:"severity"`
	SubjectType string           `json:"subject_type"`
	SubjectID   string           `json:"subject_id"`
	SubjectName string           `json:"subject_name"`
	Message     string           `json:"message"`
	Date        core.Date        `json:"date"`
	DaysUntil   *int             `json:"days_until"`
	Alert       *core.Alert      `json:"alert,omitempty"`
}

type NotificationCounts struct {
	Total         int `json:"total"`
	Critical      int `json:"critical"`
	Expired       int `json:"expired"`
	Environmental int `json:"environmental"`
	OverdueHatch  int `json:"overdue_hatch"`
}

type NotificationReport struct {
	Today              core.Date          `json:"today"`
	CriticalWindowDays int                `json:"critical_window_days"`
	Notifications      []Notification     `json:"notifications"`
	Counts             NotificationCounts `json:"counts"`
}

// NotificationService assembles expiry, environmental and overdue-hatch
// notices from the current records.
type NotificationService struct {
	deps  Deps
	views *viewCache
}

func (s *NotificationService) Notifications(ctx context.Context) (NotificationReport, error) {
	today := s.deps.today()
	return cached(s.views, "notifications:"+today.String(), func() (NotificationReport, error) {
		return s.build(ctx, today)
	})
}

// Sweep recomputes the report bypassing the cache and publishes the expiry
// gauges. The worker runs it on EXPIRY_SWEEP_INTERVAL.
func (s *NotificationService) Sweep(ctx context.Context) (NotificationCounts, error) {
	r, err := s.build(ctx, s.deps.today())
	if err != nil {
		return NotificationCounts{}, err
	}
	s.deps.Metrics.SetExpiring(r.Counts.Critical, r.Counts.Expired)
	s.deps.Logger.InfoContext(ctx, "Expiry sweep completed",
		log.FieldOperation, log.OpSweep,
		"critical", r.Counts.Critical,
		"expired", r.Counts.Expired,
		"environmental", r.Counts.Environmental)
	return r.Counts, nil
}

type snapshot struct {
	birds      []core.Bird
	pairs      []core.BreedingPair
	clutches   []core.Clutch
	incubators []core.Incubator
	permits    []core.Permit
}

func loadSnapshot(ctx context.Context, st storage.Store) (snapshot, error) {
	var snap snapshot
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.birds, err = st.ListBirds(ctx, storage.BirdFilter{})
		return err
	})
	g.Go(func() (err error) {
		snap.pairs, err = st.ListPairs(ctx)
		return err
	})
	g.Go(func() (err error) {
		snap.clutches, err = st.ListClutches(ctx, "")
		return err
	})
	g.Go(func() (err error) {
		snap.incubators, err = st.ListIncubators(ctx)
		return err
	})
	g.Go(func() (err error) {
		snap.permits, err = st.ListPermits(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return snapshot{}, fmt.Errorf("load records: %w", err)
	}
	return snap, nil
}

func (s *NotificationService) build(ctx context.Context, today core.Date) (NotificationReport, error) {
	snap, err := loadSnapshot(ctx, s.deps.Store)
	if err != nil {
		return NotificationReport{}, err
	}
	window := s.deps.CriticalWindowDays

	var out []Notification

	var records []core.ExpiryRecord
	for _, b := range snap.birds {
		if r, ok := core.BirdExpiry(b); ok {
			records = append(records, r)
		}
	}
	for _, p := range snap.pairs {
		if r, ok := core.PairExpiry(p); ok {
			records = append(records, r)
		}
	}
	for _, p := range snap.permits {
		records = append(records, core.PermitExpiry(p))
	}
	for _, r := range records {
		if n, ok := expiryNotification(r, today, window); ok {
			out = append(out, n)
		}
	}

	env, err := s.environmental(ctx, snap.incubators)
	if err != nil {
		return NotificationReport{}, err
	}
	out = append(out, env...)

	for _, c := range snap.clutches {
		if c.Status != core.ClutchIncubating || c.ExpectedHatchDate.IsEmpty() || !c.ExpectedHatchDate.Before(today) {
			continue
		}
		days := today.DaysUntil(c.ExpectedHatchDate)
		out = append(out, Notification{
			Kind:        KindOverdueHatch,
			Severity:    SeverityWarning,
			SubjectType: "clutch",
			SubjectID:   c.ID,
			SubjectName: fmt.Sprintf("Clutch %d", c.ClutchNumber),
			Message:     fmt.Sprintf("Clutch %d was expected to hatch %d days ago", c.ClutchNumber, -days),
			Date:        c.ExpectedHatchDate,
			DaysUntil:   &days,
		})
	}

	sortNotifications(out)
	if out == nil {
		out = []Notification{}
	}
	return NotificationReport{
		Today:              today,
		CriticalWindowDays: window,
		Notifications:      out,
		Counts:             countNotifications(out),
	}, nil
}

func expiryNotification(r core.ExpiryRecord, today core.Date, window int) (Notification, bool) {
	st := r.Classify(today, window)
	n := Notification{
		Kind:        KindExpiry,
		SubjectType: string(r.SubjectType),
		SubjectID:   r.SubjectID,
		SubjectName: r.SubjectName,
		Date:        r.ExpiryDate,
		DaysUntil:   st.DaysUntilExpiry,
	}
	subject := expiryLabel(r)
	switch st.Level {
	case core.ExpiryExpired:
		n.Severity = SeverityExpired
		n.Message = fmt.Sprintf("%s expired %d days ago", subject, -*st.DaysUntilExpiry)
	case core.ExpiryCritical:
		n.Severity = SeverityCritical
		n.Message = fmt.Sprintf("%s expires in %d days", subject, *st.DaysUntilExpiry)
	default:
		return Notification{}, false
	}
	return n, true
}

func expiryLabel(r core.ExpiryRecord) string {
	switch r.SubjectType {
	case core.SubjectBird:
		return fmt.Sprintf("Licence %s for %s", r.Number, r.SubjectName)
	case core.SubjectPair:
		return fmt.Sprintf("Breeding licence %s for %s", r.Number, r.SubjectName)
	}
	return fmt.Sprintf("Wildlife permit %s", r.Number)
}

// environmental evaluates each incubator's latest entry. Inactive incubators
// and incubators without readings are skipped.
func (s *NotificationService) environmental(ctx context.Context, incubators []core.Incubator) ([]Notification, error) {
	results := make([][]Notification, len(incubators))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, inc := range incubators {
		if inc.Status == core.DeviceInactive {
			continue
		}
		g.Go(func() error {
			entry, err := s.deps.Store.LatestMonitoringEntry(gctx, inc.ID)
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("latest entry for %s: %w", inc.ID, err)
			}
			for _, a := range core.EvaluateEntry(entry, inc) {
				results[i] = append(results[i], Notification{
					Kind:        KindEnvironment,
					Severity:    SeverityWarning,
					SubjectType: "incubator",
					SubjectID:   inc.ID,
					SubjectName: inc.Name,
					Message:     fmt.Sprintf("%s: %s", inc.Name, a.Message),
					Date:        entry.Date,
					Alert:       &a,
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []Notification
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func sortNotifications(ns []Notification) {
	kindRank := map[NotificationKind]int{KindExpiry: 0, KindEnvironment: 1, KindOverdueHatch: 2}
	sort.SliceStable(ns, func(i, j int) bool {
		a, b := ns[i], ns[j]
		if a.Severity.rank() != b.Severity.rank() {
			return a.Severity.rank() < b.Severity.rank()
		}
		if kindRank[a.Kind] != kindRank[b.Kind] {
			return kindRank[a.Kind] < kindRank[b.Kind]
		}
		if a.DaysUntil != nil && b.DaysUntil != nil && *a.DaysUntil != *b.DaysUntil {
			return *a.DaysUntil < *b.DaysUntil
		}
		return a.SubjectID < b.SubjectID
	})
}

func countNotifications(ns []Notification) NotificationCounts {
	c := NotificationCounts{Total: len(ns)}
	for _, n := range ns {
		switch {
		case n.Kind == KindEnvironment:
			c.Environmental++
		case n.Kind == KindOverdueHatch:
			c.OverdueHatch++
		case n.Severity == SeverityExpired:
			c.Expired++
		case n.Severity == SeverityCritical:
			c.Critical++
		}
	}
	return c
}
