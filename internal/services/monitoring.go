package services

import (
	"context"
	"fmt"
	"time"

	"aviary/internal/core"
	"aviary/internal/log"
)

// MonitoringService records incubator readings and evaluates them against the
// incubator's configured ranges.
type MonitoringService struct {
	deps  Deps
	views *viewCache
}

// MonitoringResult is a stored entry together with the alerts it raised.
type MonitoringResult struct {
	Entry  core.MonitoringEntry `json:"entry"`
	Alerts []core.Alert         `json:"alerts"`
}

// Reading is one telemetry sample pushed by an incubator controller.
type Reading struct {
	IncubatorID string    `json:"incubator_id"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
}

func (s *MonitoringService) CreateEntry(ctx context.Context, e core.MonitoringEntry) (MonitoringResult, error) {
	if e.IncubatorID == "" {
		return MonitoringResult{}, invalid(fmt.Errorf("%w: incubator is required", core.ErrMissingRef))
	}
	inc, err := s.deps.Store.GetIncubator(ctx, e.IncubatorID)
	if err != nil {
		return MonitoringResult{}, fmt.Errorf("incubator %s: %w", e.IncubatorID, err)
	}

	e.ID = s.deps.NewID()
	if e.RecordedAt.IsZero() {
		e.RecordedAt = s.deps.now()
	}
	e.RecordedAt = e.RecordedAt.UTC()
	if e.Date.IsEmpty() {
		e.Date = core.DateOf(e.RecordedAt)
	}
	if err := e.Validate(); err != nil {
		return MonitoringResult{}, invalid(err)
	}
	if err := s.deps.Store.CreateMonitoringEntry(ctx, e); err != nil {
		return MonitoringResult{}, fmt.Errorf("save monitoring entry: %w", err)
	}
	s.views.invalidate()
	s.deps.Metrics.RecordWrite("monitoring_entry", log.OpCreate)

	alerts := core.EvaluateEntry(e, inc)
	if alerts == nil {
		alerts = []core.Alert{}
	}
	s.deps.Metrics.ObserveAlerts(alerts)
	for _, a := range alerts {
		s.deps.Logger.WarnContext(ctx, "Incubator reading out of range",
			log.FieldIncubatorID, inc.ID, "kind", a.Kind, "level", a.Level, "value", a.Value)
	}
	return MonitoringResult{Entry: e, Alerts: alerts}, nil
}

// RecordReading stores a telemetry sample as a monitoring entry.
func (s *MonitoringService) RecordReading(ctx context.Context, r Reading) (MonitoringResult, error) {
	return s.CreateEntry(ctx, core.MonitoringEntry{
		IncubatorID: r.IncubatorID,
		RecordedAt:  r.Timestamp,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Notes:       "telemetry",
	})
}

func (s *MonitoringService) ListEntries(ctx context.Context, incubatorID string, limit int) ([]core.MonitoringEntry, error) {
	return s.deps.Store.ListMonitoringEntries(ctx, incubatorID, limit)
}

func (s *MonitoringService) DeleteEntry(ctx context.Context, id string) error {
	if err := s.deps.Store.DeleteMonitoringEntry(ctx, id); err != nil {
		return err
	}
	s.views.invalidate()
	s.deps.Metrics.RecordWrite("monitoring_entry", log.OpDelete)
	return nil
}
