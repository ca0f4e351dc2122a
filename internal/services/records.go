package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"aviary/internal/core"
	"aviary/internal/log"
	"aviary/internal/storage"
)

// RecordService manages birds, breeding pairs, clutches, incubators and
// wildlife permits.
type RecordService struct {
	deps  Deps
	views *viewCache
}

func (s *RecordService) written(ctx context.Context, entity, op, id string) {
	s.views.invalidate()
	s.deps.Metrics.RecordWrite(entity, op)
	s.deps.Logger.InfoContext(ctx, "Record written", log.FieldEntity, entity, log.FieldOperation, op, log.FieldID, id)
}

// Birds

func normalizeBird(b core.Bird, defaultCurrency string) core.Bird {
	b.Name = strings.TrimSpace(b.Name)
	b.Species = strings.TrimSpace(b.Species)
	if b.Gender == "" {
		b.Gender = core.UnknownGender
	}
	if b.Status == "" {
		b.Status = core.BirdActive
	}
	b.PurchaseCurrency = core.NormalizeCurrency(b.PurchaseCurrency)
	if b.IsPurchased() && b.PurchaseCurrency == "" {
		b.PurchaseCurrency = defaultCurrency
	}
	return b
}

func (s *RecordService) checkParents(ctx context.Context, b core.Bird) error {
	for _, ref := range []struct {
		role string
		id   string
		want core.Gender
	}{{"father", b.FatherID, core.Male}, {"mother", b.MotherID, core.Female}} {
		if ref.id == "" {
			continue
		}
		parent, err := s.deps.Store.GetBird(ctx, ref.id)
		if errors.Is(err, storage.ErrNotFound) {
			return rejected("%s %s does not exist", ref.role, ref.id)
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", ref.role, err)
		}
		if parent.Gender != ref.want && parent.Gender != core.UnknownGender {
			return rejected("%s %s is %s", ref.role, ref.id, parent.Gender)
		}
	}
	if b.FatherID != "" && b.FatherID == b.MotherID {
		return rejected("father and mother must be different birds")
	}
	return nil
}

func (s *RecordService) CreateBird(ctx context.Context, b core.Bird) (core.Bird, error) {
	b = normalizeBird(b, s.deps.DefaultCurrency)
	b.ID = s.deps.NewID()
	b.CreatedAt = s.deps.now()
	if err := b.Validate(); err != nil {
		return core.Bird{}, invalid(err)
	}
	if err := s.checkParents(ctx, b); err != nil {
		return core.Bird{}, err
	}
	if err := s.deps.Store.CreateBird(ctx, b); err != nil {
		return core.Bird{}, fmt.Errorf("create bird: %w", err)
	}
	s.written(ctx, "bird", log.OpCreate, b.ID)
	return b, nil
}

func (s *RecordService) GetBird(ctx context.Context, id string) (core.Bird, error) {
	return s.deps.Store.GetBird(ctx, id)
}

func (s *RecordService) ListBirds(ctx context.Context, f storage.BirdFilter) ([]core.Bird, error) {
	if f.Gender != "" && !f.Gender.Valid() {
		return nil, invalid(fmt.Errorf("%w: %q", core.ErrInvalidGender, f.Gender))
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid(fmt.Errorf("%w: %q", core.ErrInvalidStatus, f.Status))
	}
	return s.deps.Store.ListBirds(ctx, f)
}

// UpdateBird replaces the stored bird. The id and creation time are kept.
func (s *RecordService) UpdateBird(ctx context.Context, id string, b core.Bird) (core.Bird, error) {
	existing, err := s.deps.Store.GetBird(ctx, id)
	if err != nil {
		return core.Bird{}, err
	}
	b = normalizeBird(b, s.deps.DefaultCurrency)
	b.ID, b.CreatedAt = existing.ID, existing.CreatedAt
	if err := b.Validate(); err != nil {
		return core.Bird{}, invalid(err)
	}
	if err := s.checkParents(ctx, b); err != nil {
		return core.Bird{}, err
	}
	if err := s.deps.Store.UpdateBird(ctx, b); err != nil {
		return core.Bird{}, fmt.Errorf("update bird: %w", err)
	}
	s.written(ctx, "bird", log.OpUpdate, id)
	return b, nil
}

func (s *RecordService) DeleteBird(ctx context.Context, id string) error {
	if err := s.deps.Store.DeleteBird(ctx, id); err != nil {
		return err
	}
	s.written(ctx, "bird", log.OpDelete, id)
	return nil
}

// Genealogy is a bird with its recorded parents and offspring. A parent id
// that no longer resolves leaves the parent nil.
type Genealogy struct {
	Bird      core.Bird   `json:"bird"`
	Father    *core.Bird  `json:"father"`
	Mother    *core.Bird  `json:"mother"`
	Offspring []core.Bird `json:"offspring"`
}

func (s *RecordService) Genealogy(ctx context.Context, id string) (Genealogy, error) {
	b, err := s.deps.Store.GetBird(ctx, id)
	if err != nil {
		return Genealogy{}, err
	}
	g := Genealogy{Bird: b}
	if g.Father, err = s.optionalBird(ctx, b.FatherID); err != nil {
		return Genealogy{}, err
	}
	if g.Mother, err = s.optionalBird(ctx, b.MotherID); err != nil {
		return Genealogy{}, err
	}
	if g.Offspring, err = s.deps.Store.ListOffspring(ctx, id); err != nil {
		return Genealogy{}, fmt.Errorf("list offspring: %w", err)
	}
	if g.Offspring == nil {
		g.Offspring = []core.Bird{}
	}
	return g, nil
}

func (s *RecordService) optionalBird(ctx context.Context, id string) (*core.Bird, error) {
	if id == "" {
		return nil, nil
	}
	b, err := s.deps.Store.GetBird(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Breeding pairs

func (s *RecordService) checkPair(ctx context.Context, p core.BreedingPair) error {
	if err := p.Validate(); err != nil {
		return invalid(err)
	}
	male, err := s.deps.Store.GetBird(ctx, p.MaleBirdID)
	if err != nil {
		return fmt.Errorf("male bird %s: %w", p.MaleBirdID, err)
	}
	female, err := s.deps.Store.GetBird(ctx, p.FemaleBirdID)
	if err != nil {
		return fmt.Errorf("female bird %s: %w", p.FemaleBirdID, err)
	}
	if male.Gender != core.Male {
		return rejected("bird %s is not male", male.ID)
	}
	if female.Gender != core.Female {
		return rejected("bird %s is not female", female.ID)
	}
	return nil
}

func (s *RecordService) CreatePair(ctx context.Context, p core.BreedingPair) (core.BreedingPair, error) {
	if p.Status == "" {
		p.Status = core.PairActive
	}
	p.PairName = strings.TrimSpace(p.PairName)
	p.ID = s.deps.NewID()
	p.CreatedAt = s.deps.now()
	if err := s.checkPair(ctx, p); err != nil {
		return core.BreedingPair{}, err
	}
	if err := s.deps.Store.CreatePair(ctx, p); err != nil {
		return core.BreedingPair{}, fmt.Errorf("create breeding pair: %w", err)
	}
	s.written(ctx, "breeding_pair", log.OpCreate, p.ID)
	return p, nil
}

// GetPairDetail returns the pair with both birds resolved.
func (s *RecordService) GetPairDetail(ctx context.Context, id string) (PairDetail, error) {
	p, err := s.deps.Store.GetPair(ctx, id)
	if err != nil {
		return PairDetail{}, err
	}
	d := PairDetail{BreedingPair: p}
	if d.MaleBird, err = s.optionalBird(ctx, p.MaleBirdID); err != nil {
		return PairDetail{}, fmt.Errorf("male bird %s: %w", p.MaleBirdID, err)
	}
	if d.FemaleBird, err = s.optionalBird(ctx, p.FemaleBirdID); err != nil {
		return PairDetail{}, fmt.Errorf("female bird %s: %w", p.FemaleBirdID, err)
	}
	return d, nil
}

func (s *RecordService) ListPairDetails(ctx context.Context) ([]PairDetail, error) {
	pairs, err := s.deps.Store.ListPairs(ctx)
	if err != nil {
		return nil, err
	}
	birds, err := s.deps.Store.ListBirds(ctx, storage.BirdFilter{})
	if err != nil {
		return nil, fmt.Errorf("list birds: %w", err)
	}
	index := indexBirds(birds)
	out := make([]PairDetail, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, pairDetail(p, index))
	}
	return out, nil
}

func (s *RecordService) UpdatePair(ctx context.Context, id string, p core.BreedingPair) (core.BreedingPair, error) {
	existing, err := s.deps.Store.GetPair(ctx, id)
	if err != nil {
		return core.BreedingPair{}, err
	}
	if p.Status == "" {
		p.Status = existing.Status
	}
	p.PairName = strings.TrimSpace(p.PairName)
	p.ID, p.CreatedAt = existing.ID, existing.CreatedAt
	if err := s.checkPair(ctx, p); err != nil {
		return core.BreedingPair{}, err
	}
	if err := s.deps.Store.UpdatePair(ctx, p); err != nil {
		return core.BreedingPair{}, fmt.Errorf("update breeding pair: %w", err)
	}
	s.written(ctx, "breeding_pair", log.OpUpdate, id)
	return p, nil
}

func (s *RecordService) DeletePair(ctx context.Context, id string) error {
	if err := s.deps.Store.DeletePair(ctx, id); err != nil {
		return err
	}
	s.written(ctx, "breeding_pair", log.OpDelete, id)
	return nil
}

// Clutches

// pairSpecies returns the species used for incubation lookups: the female's,
// or the male's when the female is unknown.
func (s *RecordService) pairSpecies(ctx context.Context, p core.BreedingPair) string {
	for _, id := range []string{p.FemaleBirdID, p.MaleBirdID} {
		if b, err := s.deps.Store.GetBird(ctx, id); err == nil && b.Species != "" {
			return b.Species
		}
	}
	return ""
}

func (s *RecordService) prepareClutch(ctx context.Context, c core.Clutch) (core.Clutch, error) {
	if c.Status == "" {
		c.Status = core.ClutchIncubating
	}
	if c.BreedingPairID == "" {
		return core.Clutch{}, invalid(fmt.Errorf("%w: breeding pair is required", core.ErrMissingRef))
	}
	pair, err := s.deps.Store.GetPair(ctx, c.BreedingPairID)
	if err != nil {
		return core.Clutch{}, fmt.Errorf("breeding pair %s: %w", c.BreedingPairID, err)
	}
	if c.ExpectedHatchDate.IsEmpty() && !c.EggLayingDate.IsEmpty() {
		c.ExpectedHatchDate = s.deps.Incubation.EstimateHatchDate(c.EggLayingDate, s.pairSpecies(ctx, pair))
	}
	if c.IncubatorID != "" {
		if _, err := s.deps.Store.GetIncubator(ctx, c.IncubatorID); errors.Is(err, storage.ErrNotFound) {
			return core.Clutch{}, rejected("incubator %s does not exist", c.IncubatorID)
		} else if err != nil {
			return core.Clutch{}, err
		}
	}
	if err := c.Validate(); err != nil {
		return core.Clutch{}, invalid(err)
	}
	return c.WithSuccessRate(), nil
}

func (s *RecordService) CreateClutch(ctx context.Context, c core.Clutch) (core.Clutch, error) {
	c.ID = s.deps.NewID()
	c.CreatedAt = s.deps.now()
	c, err := s.prepareClutch(ctx, c)
	if err != nil {
		return core.Clutch{}, err
	}
	if err := s.deps.Store.CreateClutch(ctx, c); err != nil {
		return core.Clutch{}, fmt.Errorf("create clutch: %w", err)
	}
	s.written(ctx, "clutch", log.OpCreate, c.ID)
	return c, nil
}

// GetClutchDetail returns the clutch with its pair and the pair's birds.
func (s *RecordService) GetClutchDetail(ctx context.Context, id string) (ClutchDetail, error) {
	c, err := s.deps.Store.GetClutch(ctx, id)
	if err != nil {
		return ClutchDetail{}, err
	}
	d := ClutchDetail{Clutch: c}
	pair, err := s.GetPairDetail(ctx, c.BreedingPairID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return ClutchDetail{}, fmt.Errorf("breeding pair %s: %w", c.BreedingPairID, err)
	default:
		d.BreedingPair = &pair
	}
	return d, nil
}

func (s *RecordService) ListClutchDetails(ctx context.Context, pairID string) ([]ClutchDetail, error) {
	var (
		clutches []core.Clutch
		pairs    []core.BreedingPair
		birds    []core.Bird
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		clutches, err = s.deps.Store.ListClutches(gctx, pairID)
		return err
	})
	g.Go(func() (err error) {
		pairs, err = s.deps.Store.ListPairs(gctx)
		return err
	})
	g.Go(func() (err error) {
		birds, err = s.deps.Store.ListBirds(gctx, storage.BirdFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list clutches: %w", err)
	}
	return clutchDetails(clutches, pairs, birds), nil
}

func (s *RecordService) UpdateClutch(ctx context.Context, id string, c core.Clutch) (core.Clutch, error) {
	existing, err := s.deps.Store.GetClutch(ctx, id)
	if err != nil {
		return core.Clutch{}, err
	}
	c.ID, c.CreatedAt = existing.ID, existing.CreatedAt
	if c.Status == "" {
		c.Status = existing.Status
	}
	c, err = s.prepareClutch(ctx, c)
	if err != nil {
		return core.Clutch{}, err
	}
	if err := s.deps.Store.UpdateClutch(ctx, c); err != nil {
		return core.Clutch{}, fmt.Errorf("update clutch: %w", err)
	}
	s.written(ctx, "clutch", log.OpUpdate, id)
	return c, nil
}

func (s *RecordService) DeleteClutch(ctx context.Context, id string) error {
	if err := s.deps.Store.DeleteClutch(ctx, id); err != nil {
		return err
	}
	s.written(ctx, "clutch", log.OpDelete, id)
	return nil
}

// HatchEstimate is the answer to a hatch-date query.
type HatchEstimate struct {
	Species           string    `json:"species"`
	LayingDate        core.Date `json:"laying_date"`
	IncubationDays    int       `json:"incubation_days"`
	ExpectedHatchDate core.Date `json:"expected_hatch_date"`
	KnownSpecies      bool      `json:"known_species"`
}

func (s *RecordService) EstimateHatch(layingDate core.Date, species string) (HatchEstimate, error) {
	if err := layingDate.Validate(); err != nil {
		return HatchEstimate{}, invalid(fmt.Errorf("laying date: %w", err))
	}
	t := s.deps.Incubation
	return HatchEstimate{
		Species:           species,
		LayingDate:        layingDate,
		IncubationDays:    t.Period(species),
		ExpectedHatchDate: t.EstimateHatchDate(layingDate, species),
		KnownSpecies:      t.Known(species),
	}, nil
}

// Incubators

func (s *RecordService) prepareIncubator(ctx context.Context, i core.Incubator) (core.Incubator, error) {
	i.Name = strings.TrimSpace(i.Name)
	if i.Status == "" {
		i.Status = core.DeviceActive
	}
	if err := i.Validate(); err != nil {
		return core.Incubator{}, invalid(err)
	}
	for kind, spec := range map[core.ReadingKind]string{core.Temperature: i.TemperatureRange, core.Humidity: i.HumidityRange} {
		if spec == "" {
			continue
		}
		if _, ok := core.ParseRange(spec); !ok {
			s.deps.Logger.WarnContext(ctx, "Incubator range is not parseable, readings will not raise alerts",
				log.FieldIncubatorID, i.ID, "kind", kind, "range", spec)
		}
	}
	return i, nil
}

func (s *RecordService) CreateIncubator(ctx context.Context, i core.Incubator) (core.Incubator, error) {
	i.ID = s.deps.NewID()
	i.CreatedAt = s.deps.now()
	i, err := s.prepareIncubator(ctx, i)
	if err != nil {
		return core.Incubator{}, err
	}
	if err := s.deps.Store.CreateIncubator(ctx, i); err != nil {
		return core.Incubator{}, fmt.Errorf("create incubator: %w", err)
	}
	s.written(ctx, "incubator", log.OpCreate, i.ID)
	return i, nil
}

func (s *RecordService) GetIncubator(ctx context.Context, id string) (core.Incubator, error) {
	return s.deps.Store.GetIncubator(ctx, id)
}

func (s *RecordService) ListIncubators(ctx context.Context) ([]core.Incubator, error) {
	return s.deps.Store.ListIncubators(ctx)
}

func (s *RecordService) UpdateIncubator(ctx context.Context, id string, i core.Incubator) (core.Incubator, error) {
	existing, err := s.deps.Store.GetIncubator(ctx, id)
	if err != nil {
		return core.Incubator{}, err
	}
	i.ID, i.CreatedAt = existing.ID, existing.CreatedAt
	if i, err = s.prepareIncubator(ctx, i); err != nil {
		return core.Incubator{}, err
	}
	if err := s.deps.Store.UpdateIncubator(ctx, i); err != nil {
		return core.Incubator{}, fmt.Errorf("update incubator: %w", err)
	}
	s.written(ctx, "incubator", log.OpUpdate, id)
	return i, nil
}

func (s *RecordService) DeleteIncubator(ctx context.Context, id string) error {
	if err := s.deps.Store.DeleteIncubator(ctx, id); err != nil {
		return err
	}
	s.written(ctx, "incubator", log.OpDelete, id)
	return nil
}

// Wildlife permits

func (s *RecordService) CreatePermit(ctx context.Context, p core.Permit) (core.Permit, error) {
	p.PermitNumber = strings.TrimSpace(p.PermitNumber)
	p.ID = s.deps.NewID()
	p.CreatedAt = s.deps.now()
	if err := p.Validate(); err != nil {
		return core.Permit{}, invalid(err)
	}
	if err := s.deps.Store.CreatePermit(ctx, p); err != nil {
		return core.Permit{}, fmt.Errorf("create permit: %w", err)
	}
	s.written(ctx, "wildlife_permit", log.OpCreate, p.ID)
	return p, nil
}

func (s *RecordService) GetPermit(ctx context.Context, id string) (core.Permit, error) {
	return s.deps.Store.GetPermit(ctx, id)
}

func (s *RecordService) ListPermits(ctx context.Context) ([]core.Permit, error) {
	return s.deps.Store.ListPermits(ctx)
}

func (s *RecordService) UpdatePermit(ctx context.Context, id string, p core.Permit) (core.Permit, error) {
	existing, err := s.deps.Store.GetPermit(ctx, id)
	if err != nil {
		return core.Permit{}, err
	}
	p.PermitNumber = strings.TrimSpace(p.PermitNumber)
	p.ID, p.CreatedAt = existing.ID, existing.CreatedAt
	if err := p.Validate(); err != nil {
		return core.Permit{}, invalid(err)
	}
	if err := s.deps.Store.UpdatePermit(ctx, p); err != nil {
		return core.Permit{}, fmt.Errorf("update permit: %w", err)
	}
	s.written(ctx, "wildlife_permit", log.OpUpdate, id)
	return p, nil
}

func (s *RecordService) DeletePermit(ctx context.Context, id string) error {
	if err := s.deps.Store.DeletePermit(ctx, id); err != nil {
		return err
	}
	s.written(ctx, "wildlife_permit", log.OpDelete, id)
	return nil
}
