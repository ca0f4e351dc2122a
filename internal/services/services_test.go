package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aviary/internal/core"
	"aviary/internal/log"
	"aviary/internal/observability"
	"aviary/internal/storage"
	"aviary/internal/storage/memory"
)

type published struct {
	id      string
	version int64
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) PublishLedgerSync(_ context.Context, id string, version int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{id, version})
	return nil
}

type fixture struct {
	svc       *Services
	store     *memory.Store
	clock     *clockwork.FakeClock
	publisher *fakePublisher
	metrics   *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.New(),
		clock:     clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
		publisher: &fakePublisher{},
		metrics:   observability.NewMetricsForTesting(),
	}
	n := 0
	f.svc = New(Deps{
		Store:              f.store,
		Publisher:          f.publisher,
		Incubation:         core.DefaultIncubationTable(),
		CriticalWindowDays: 30,
		DefaultCurrency:    "EUR",
		CacheTTL:           time.Minute,
		Clock:              f.clock,
		Metrics:            f.metrics,
		Logger:             log.New(log.Config{Output: io.Discard, Component: log.ComponentRecords}),
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%03d", n)
		},
	})
	return f
}

func (f *fixture) bird(t *testing.T, name string, g core.Gender, species string) core.Bird {
	t.Helper()
	b, err := f.svc.Records.CreateBird(context.Background(), core.Bird{Name: name, Species: species, Gender: g})
	require.NoError(t, err)
	return b
}

func (f *fixture) pair(t *testing.T, species string) core.BreedingPair {
	t.Helper()
	m := f.bird(t, "Rio", core.Male, species)
	fe := f.bird(t, "Kiwi", core.Female, species)
	p, err := f.svc.Records.CreatePair(context.Background(), core.BreedingPair{PairName: "Rio & Kiwi", MaleBirdID: m.ID, FemaleBirdID: fe.ID})
	require.NoError(t, err)
	return p
}

func TestRecords_CreateBirdDefaults(t *testing.T) {
	f := newFixture(t)
	b, err := f.svc.Records.CreateBird(context.Background(), core.Bird{
		Name: "  Pip ", Species: "Budgerigar",
		PurchasePrice: core.Money{Cents: 4500}, PurchaseCurrency: " usd",
	})
	require.NoError(t, err)
	assert.Equal(t, "id-001", b.ID)
	assert.Equal(t, "Pip", b.Name)
	assert.Equal(t, core.UnknownGender, b.Gender)
	assert.Equal(t, core.BirdActive, b.Status)
	assert.Equal(t, "USD", b.PurchaseCurrency)
	assert.Equal(t, f.clock.Now().UTC(), b.CreatedAt)

	_, err = f.svc.Records.CreateBird(context.Background(), core.Bird{Name: "", Species: "Canary"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, core.ErrEmptyName)
}

func TestRecords_ParentChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dad := f.bird(t, "Dad", core.Male, "Canary")
	mum := f.bird(t, "Mum", core.Female, "Canary")

	chick, err := f.svc.Records.CreateBird(ctx, core.Bird{Name: "Chick", Species: "Canary", FatherID: dad.ID, MotherID: mum.ID})
	require.NoError(t, err)

	_, err = f.svc.Records.CreateBird(ctx, core.Bird{Name: "Bad", Species: "Canary", FatherID: mum.ID})
	assert.ErrorIs(t, err, ErrRejected)

	_, err = f.svc.Records.CreateBird(ctx, core.Bird{Name: "Ghost", Species: "Canary", MotherID: "missing"})
	assert.ErrorIs(t, err, ErrRejected)

	g, err := f.svc.Records.Genealogy(ctx, chick.ID)
	require.NoError(t, err)
	require.NotNil(t, g.Father)
	require.NotNil(t, g.Mother)
	assert.Equal(t, dad.ID, g.Father.ID)
	assert.Empty(t, g.Offspring)

	g, err = f.svc.Records.Genealogy(ctx, dad.ID)
	require.NoError(t, err)
	assert.Nil(t, g.Father)
	require.Len(t, g.Offspring, 1)
	assert.Equal(t, chick.ID, g.Offspring[0].ID)

	_, err = f.svc.Records.Genealogy(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecords_PairGenderAndExistence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.bird(t, "M", core.Male, "Canary")
	m2 := f.bird(t, "M2", core.Male, "Canary")
	fe := f.bird(t, "F", core.Female, "Canary")

	_, err := f.svc.Records.CreatePair(ctx, core.BreedingPair{MaleBirdID: m.ID, FemaleBirdID: "missing"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = f.svc.Records.CreatePair(ctx, core.BreedingPair{MaleBirdID: m.ID, FemaleBirdID: m2.ID})
	assert.ErrorIs(t, err, ErrRejected)

	_, err = f.svc.Records.CreatePair(ctx, core.BreedingPair{MaleBirdID: fe.ID, FemaleBirdID: m.ID})
	assert.ErrorIs(t, err, ErrRejected)

	_, err = f.svc.Records.CreatePair(ctx, core.BreedingPair{MaleBirdID: m.ID, FemaleBirdID: m.ID})
	assert.ErrorIs(t, err, ErrValidation)

	p, err := f.svc.Records.CreatePair(ctx, core.BreedingPair{MaleBirdID: m.ID, FemaleBirdID: fe.ID})
	require.NoError(t, err)
	assert.Equal(t, core.PairActive, p.Status)
}

func TestRecords_ClutchPrefillsHatchDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pair(t, "Cockatiel")

	c, err := f.svc.Records.CreateClutch(ctx, core.Clutch{
		BreedingPairID: p.ID, ClutchNumber: 1, EggLayingDate: core.NewDate(2025, 1, 1), EggsLaid: 5, HatchedCount: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, core.NewDate(2025, 1, 19), c.ExpectedHatchDate)
	assert.Equal(t, core.ClutchIncubating, c.Status)
	require.NotNil(t, c.HatchSuccessRate)
	assert.InDelta(t, 80.0, *c.HatchSuccessRate, 0.001)

	explicit := core.NewDate(2025, 1, 25)
	c, err = f.svc.Records.UpdateClutch(ctx, c.ID, core.Clutch{
		BreedingPairID: p.ID, ClutchNumber: 1, EggLayingDate: core.NewDate(2025, 1, 1), ExpectedHatchDate: explicit,
		EggsLaid: 5, HatchedCount: 5, Status: core.ClutchHatched,
	})
	require.NoError(t, err)
	assert.Equal(t, explicit, c.ExpectedHatchDate)
	assert.InDelta(t, 100.0, *c.HatchSuccessRate, 0.001)

	_, err = f.svc.Records.CreateClutch(ctx, core.Clutch{BreedingPairID: "missing", EggLayingDate: core.NewDate(2025, 1, 1)})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = f.svc.Records.CreateClutch(ctx, core.Clutch{BreedingPairID: p.ID, EggLayingDate: core.NewDate(2025, 1, 1), EggsLaid: 2, HatchedCount: 3})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Records.CreateClutch(ctx, core.Clutch{BreedingPairID: p.ID, EggLayingDate: core.NewDate(2025, 1, 1), IncubatorID: "missing"})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestRecords_PairAndClutchDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pair(t, "Cockatiel")
	c, err := f.svc.Records.CreateClutch(ctx, core.Clutch{BreedingPairID: p.ID, EggLayingDate: core.NewDate(2025, 1, 1)})
	require.NoError(t, err)

	pairs, err := f.svc.Records.ListPairDetails(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	require.NotNil(t, pairs[0].MaleBird)
	require.NotNil(t, pairs[0].FemaleBird)
	assert.Equal(t, "Rio", pairs[0].MaleBird.Name)
	assert.Equal(t, "Kiwi", pairs[0].FemaleBird.Name)

	cd, err := f.svc.Records.GetClutchDetail(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, cd.BreedingPair)
	assert.Equal(t, p.ID, cd.BreedingPair.ID)
	require.NotNil(t, cd.BreedingPair.FemaleBird)
	assert.Equal(t, "Kiwi", cd.BreedingPair.FemaleBird.Name)

	require.NoError(t, f.svc.Records.DeleteBird(ctx, p.MaleBirdID))
	pd, err := f.svc.Records.GetPairDetail(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, pd.MaleBird, "a deleted bird is left unresolved")
	assert.NotNil(t, pd.FemaleBird)

	require.NoError(t, f.svc.Records.DeletePair(ctx, p.ID))
	clutches, err := f.svc.Records.ListClutchDetails(ctx, "")
	require.NoError(t, err)
	require.Len(t, clutches, 1)
	assert.Nil(t, clutches[0].BreedingPair)

	_, err = f.svc.Records.GetPairDetail(ctx, p.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecords_EstimateHatch(t *testing.T) {
	f := newFixture(t)
	est, err := f.svc.Records.EstimateHatch(core.NewDate(2025, 1, 1), "cockatiel")
	require.NoError(t, err)
	assert.Equal(t, 18, est.IncubationDays)
	assert.True(t, est.KnownSpecies)
	assert.Equal(t, core.NewDate(2025, 1, 19), est.ExpectedHatchDate)

	est, err = f.svc.Records.EstimateHatch(core.NewDate(2025, 1, 1), "Dodo")
	require.NoError(t, err)
	assert.False(t, est.KnownSpecies)
	assert.Equal(t, 21, est.IncubationDays)

	_, err = f.svc.Records.EstimateHatch(core.Date{}, "Canary")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTransactions_PublishAndVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.svc.Transactions.CreateTransaction(ctx, core.Transaction{Type: core.Sale, Amount: core.Money{Cents: 50000}})
	require.NoError(t, err)
	assert.Equal(t, "EUR", tx.Currency)
	assert.Equal(t, core.NewDate(2025, 6, 1), tx.Date)

	tx.Description = "Young cockatiel"
	_, err = f.svc.Transactions.UpdateTransaction(ctx, tx.ID, tx)
	require.NoError(t, err)

	assert.Equal(t, []published{{tx.ID, 1}, {tx.ID, 2}}, f.publisher.sent)

	_, err = f.svc.Transactions.CreateTransaction(ctx, core.Transaction{Type: "gift", Amount: core.Money{Cents: 1}})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTransactions_PublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")

	tx, err := f.svc.Transactions.CreateTransaction(context.Background(), core.Transaction{Type: core.Expense, Amount: core.Money{Cents: 700}, Category: "feed"})
	require.NoError(t, err)

	_, _, status, err := f.store.GetTransactionForSync(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.SyncPending, status)
}

func TestMonitoring_AlertsFromIncubatorRanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inc, err := f.svc.Records.CreateIncubator(ctx, core.Incubator{Name: "Brinsea", TemperatureRange: "37.2-37.8°C", HumidityRange: "45-55%"})
	require.NoError(t, err)

	temp, hum := 36.5, 50.0
	res, err := f.svc.Monitoring.CreateEntry(ctx, core.MonitoringEntry{IncubatorID: inc.ID, Temperature: &temp, Humidity: &hum})
	require.NoError(t, err)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, core.AlertLow, res.Alerts[0].Level)
	assert.Equal(t, core.NewDate(2025, 6, 1), res.Entry.Date)

	ok := 37.5
	res, err = f.svc.Monitoring.RecordReading(ctx, Reading{IncubatorID: inc.ID, Timestamp: f.clock.Now(), Temperature: &ok})
	require.NoError(t, err)
	assert.Empty(t, res.Alerts)
	assert.NotNil(t, res.Alerts)

	_, err = f.svc.Monitoring.RecordReading(ctx, Reading{IncubatorID: "missing", Temperature: &ok})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = f.svc.Monitoring.CreateEntry(ctx, core.MonitoringEntry{IncubatorID: inc.ID})
	assert.ErrorIs(t, err, core.ErrNoReading)
}

func TestNotifications_AllSources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := core.NewDate(2025, 6, 1)

	_, err := f.svc.Records.CreateBird(ctx, core.Bird{Name: "Kiwi", Species: "Canary", LicenseNumber: "LIC-1", LicenseExpiry: today.AddDays(-2)})
	require.NoError(t, err)
	_, err = f.svc.Records.CreateBird(ctx, core.Bird{Name: "Rio", Species: "Canary", LicenseNumber: "LIC-2", LicenseExpiry: today.AddDays(14)})
	require.NoError(t, err)
	_, err = f.svc.Records.CreateBird(ctx, core.Bird{Name: "Far", Species: "Canary", LicenseNumber: "LIC-3", LicenseExpiry: today.AddDays(90)})
	require.NoError(t, err)
	_, err = f.svc.Records.CreatePermit(ctx, core.Permit{PermitNumber: "CITES-7", ExpiryDate: today})
	require.NoError(t, err)

	inc, err := f.svc.Records.CreateIncubator(ctx, core.Incubator{Name: "Brinsea", HumidityRange: "45-55%"})
	require.NoError(t, err)
	hum := 70.0
	_, err = f.svc.Monitoring.CreateEntry(ctx, core.MonitoringEntry{IncubatorID: inc.ID, Humidity: &hum})
	require.NoError(t, err)

	p := f.pair(t, "Canary")
	_, err = f.svc.Records.CreateClutch(ctx, core.Clutch{BreedingPairID: p.ID, ClutchNumber: 2, EggLayingDate: today.AddDays(-20)})
	require.NoError(t, err)

	report, err := f.svc.Notifications.Notifications(ctx)
	require.NoError(t, err)
	assert.Equal(t, NotificationCounts{Total: 5, Critical: 2, Expired: 1, Environmental: 1, OverdueHatch: 1}, report.Counts)

	require.Len(t, report.Notifications, 5)
	assert.Equal(t, SeverityExpired, report.Notifications[0].Severity)
	assert.Equal(t, "Licence LIC-1 for Kiwi expired 2 days ago", report.Notifications[0].Message)
	assert.Equal(t, "wildlife_permit", report.Notifications[1].SubjectType, "expires today sorts before 14 days")
	assert.Equal(t, 0, *report.Notifications[1].DaysUntil)
	assert.Equal(t, KindEnvironment, report.Notifications[3].Kind)
	assert.Equal(t, KindOverdueHatch, report.Notifications[4].Kind)

	counts, err := f.svc.Notifications.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.Counts, counts)
}

func TestNotifications_CacheInvalidatedOnWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.Notifications.Notifications(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Counts.Total)
	assert.NotNil(t, r.Notifications)

	_, err = f.svc.Records.CreatePermit(ctx, core.Permit{PermitNumber: "P-1", ExpiryDate: core.NewDate(2025, 5, 1)})
	require.NoError(t, err)

	r, err = f.svc.Notifications.Notifications(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Counts.Expired)
}

func TestViewCache_DropsViewBuiltAcrossWrite(t *testing.T) {
	v := newViewCache(time.Minute, clockwork.NewFakeClock(), nil)
	builds := 0

	got, err := cached(v, "k", func() (int, error) {
		builds++
		v.invalidate() // a write lands while the view is being built
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	got, err = cached(v, "k", func() (int, error) {
		builds++
		return 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, got, "the racing view is not served")

	got, err = cached(v, "k", func() (int, error) {
		builds++
		return 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, got)
	assert.Equal(t, 2, builds)
}

func TestFinance_ReportUnifiesBirdPurchases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	add := func(typ core.TransactionType, cents int64, d core.Date, cat string) {
		_, err := f.svc.Transactions.CreateTransaction(ctx, core.Transaction{Type: typ, Amount: core.Money{Cents: cents}, Date: d, Category: cat})
		require.NoError(t, err)
	}
	add(core.Sale, 50000, core.NewDate(2025, 3, 1), "birds")
	add(core.Expense, 5000, core.NewDate(2025, 3, 5), "feed")
	add(core.Purchase, 20000, core.NewDate(2025, 2, 1), "birds")

	_, err := f.svc.Records.CreateBird(ctx, core.Bird{Name: "Bought", Species: "Canary",
		PurchasePrice: core.Money{Cents: 3000}, PurchaseDate: core.NewDate(2025, 3, 10)})
	require.NoError(t, err)

	march := core.DateRangeFilter{From: core.NewDate(2025, 3, 1), To: core.NewDate(2025, 3, 31)}
	r, err := f.svc.Finance.Report(ctx, march)
	require.NoError(t, err)
	assert.Equal(t, "EUR", r.Summary.Currency)
	assert.Equal(t, 1, r.Summary.Sales.Count)
	assert.Equal(t, int64(50000), r.Summary.Sales.Total.Cents)
	assert.Equal(t, 1, r.Summary.Purchases.Count)
	assert.Equal(t, int64(3000), r.Summary.Purchases.Total.Cents)
	assert.Equal(t, int64(42000), r.Summary.NetBalance.Cents)
	assert.False(t, r.MixedCurrency)
	require.Len(t, r.ExpensesByCategory, 1)
	assert.Equal(t, "feed", r.ExpensesByCategory[0].Name)

	_, err = f.svc.Finance.Report(ctx, core.DateRangeFilter{From: core.NewDate(2025, 4, 1), To: core.NewDate(2025, 3, 1)})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFinance_RecordedBirdPurchaseNotDoubleCounted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, err := f.svc.Records.CreateBird(ctx, core.Bird{Name: "Bought", Species: "Canary", PurchasePrice: core.Money{Cents: 3000}})
	require.NoError(t, err)
	_, err = f.svc.Transactions.CreateTransaction(ctx, core.Transaction{Type: core.Purchase, Amount: core.Money{Cents: 3000}, BirdID: b.ID})
	require.NoError(t, err)

	txs, err := f.svc.Finance.Ledger(ctx, core.DateRangeFilter{})
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestFinance_RecordedBirdPurchaseOutsideRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, err := f.svc.Records.CreateBird(ctx, core.Bird{Name: "Bought", Species: "Canary",
		PurchasePrice: core.Money{Cents: 3000}, PurchaseDate: core.NewDate(2025, 3, 10)})
	require.NoError(t, err)
	_, err = f.svc.Transactions.CreateTransaction(ctx, core.Transaction{Type: core.Purchase,
		Amount: core.Money{Cents: 3000}, Date: core.NewDate(2025, 2, 28), BirdID: b.ID})
	require.NoError(t, err)

	purchases := func(from, to core.Date) int {
		t.Helper()
		r, err := f.svc.Finance.Report(ctx, core.DateRangeFilter{From: from, To: to})
		require.NoError(t, err)
		return r.Summary.Purchases.Count
	}
	feb := purchases(core.NewDate(2025, 2, 1), core.NewDate(2025, 2, 28))
	mar := purchases(core.NewDate(2025, 3, 1), core.NewDate(2025, 3, 31))
	all := purchases(core.Date{}, core.Date{})
	assert.Equal(t, 1, feb)
	assert.Equal(t, 0, mar, "the recorded transaction covers the bird")
	assert.Equal(t, all, feb+mar)
}

func TestBreeding_Report(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pair(t, "Cockatiel")
	_, err := f.svc.Records.CreateClutch(ctx, core.Clutch{BreedingPairID: p.ID, EggLayingDate: core.NewDate(2025, 1, 1), EggsLaid: 4, FertileEggs: 4, HatchedCount: 3, Status: core.ClutchHatched})
	require.NoError(t, err)
	_, err = f.svc.Records.CreateClutch(ctx, core.Clutch{BreedingPairID: p.ID, EggLayingDate: core.NewDate(2025, 3, 1), EggsLaid: 4, FertileEggs: 2, HatchedCount: 1, Status: core.ClutchHatched})
	require.NoError(t, err)

	r, err := f.svc.Breeding.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Summary.Clutches)
	assert.Equal(t, 8, r.Summary.EggsLaid)
	assert.Equal(t, 4, r.Summary.Hatched)
	require.Len(t, r.Pairs, 1)
	require.Len(t, r.Species, 1)
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pair(t, "Canary")
	for i := 1; i <= 6; i++ {
		f.clock.Advance(time.Minute)
		_, err := f.svc.Records.CreateClutch(ctx, core.Clutch{BreedingPairID: p.ID, ClutchNumber: i, EggLayingDate: core.NewDate(2025, 5, 20+i)})
		require.NoError(t, err)
	}
	_, err := f.svc.Transactions.CreateTransaction(ctx, core.Transaction{Type: core.Sale, Amount: core.Money{Cents: 1000}})
	require.NoError(t, err)

	d, err := f.svc.Dashboard.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Stats.TotalBirds)
	assert.Equal(t, 1, d.Stats.TotalPairs)
	assert.Equal(t, 6, d.Stats.ActiveBreedingRecords)
	require.Len(t, d.RecentBreedingRecords, 5)
	assert.Equal(t, 6, d.RecentBreedingRecords[0].ClutchNumber)
	require.NotNil(t, d.RecentBreedingRecords[0].BreedingPair)
	require.NotNil(t, d.RecentBreedingRecords[0].BreedingPair.FemaleBird)
	assert.Equal(t, "Kiwi", d.RecentBreedingRecords[0].BreedingPair.FemaleBird.Name)
	assert.Equal(t, int64(1000), d.MonthToDate.Sales.Total.Cents)
}
