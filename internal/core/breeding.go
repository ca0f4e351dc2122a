package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// HatchSuccessRate returns hatched/eggsLaid as a percentage rounded to two
// decimals. ok is false when no eggs were laid.
func HatchSuccessRate(eggsLaid, hatched int) (rate float64, ok bool) {
	if eggsLaid <= 0 {
		return 0, false
	}
	r := decimal.NewFromInt(int64(hatched)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(eggsLaid))).
		Round(2)
	return r.InexactFloat64(), true
}

// WithSuccessRate returns a copy of c with HatchSuccessRate filled in.
func (c Clutch) WithSuccessRate() Clutch {
	if rate, ok := HatchSuccessRate(c.EggsLaid, c.HatchedCount); ok {
		c.HatchSuccessRate = &rate
	} else {
		c.HatchSuccessRate = nil
	}
	return c
}

// BreedingTotals sums clutch outcomes.
type BreedingTotals struct {
	Clutches    int     `json:"clutches"`
	EggsLaid    int     `json:"eggs_laid"`
	FertileEggs int     `json:"fertile_eggs"`
	Hatched     int     `json:"hatched"`
	SuccessRate float64 `json:"success_rate"`
}

type PairPerformance struct {
	PairID   string `json:"pair_id"`
	PairName string `json:"pair_name"`
	BreedingTotals
}

type SpeciesPerformance struct {
	Species string `json:"species"`
	BreedingTotals
}

type BreedingReport struct {
	Summary BreedingTotals       `json:"summary"`
	Pairs   []PairPerformance    `json:"pair_performance"`
	Species []SpeciesPerformance `json:"species_performance"`
}

func (t *BreedingTotals) add(c Clutch) {
	t.Clutches++
	t.EggsLaid += c.EggsLaid
	t.FertileEggs += c.FertileEggs
	t.Hatched += c.HatchedCount
	t.SuccessRate, _ = HatchSuccessRate(t.EggsLaid, t.Hatched)
}

// BuildBreedingReport groups clutches per pair and per species. A pair's
// species is its female's species; clutches of unknown pairs are counted
// only in the summary.
func BuildBreedingReport(pairs []BreedingPair, birds []Bird, clutches []Clutch) BreedingReport {
	birdByID := make(map[string]Bird, len(birds))
	for _, b := range birds {
		birdByID[b.ID] = b
	}
	pairByID := make(map[string]BreedingPair, len(pairs))
	for _, p := range pairs {
		pairByID[p.ID] = p
	}

	var rep BreedingReport
	perPair := map[string]*PairPerformance{}
	perSpecies := map[string]*SpeciesPerformance{}
	for _, c := range clutches {
		rep.Summary.add(c)
		p, ok := pairByID[c.BreedingPairID]
		if !ok {
			continue
		}
		pp, ok := perPair[p.ID]
		if !ok {
			pp = &PairPerformance{PairID: p.ID, PairName: p.PairName}
			perPair[p.ID] = pp
		}
		pp.add(c)

		species := birdByID[p.FemaleBirdID].Species
		if species == "" {
			species = birdByID[p.MaleBirdID].Species
		}
		if species == "" {
			continue
		}
		sp, ok := perSpecies[species]
		if !ok {
			sp = &SpeciesPerformance{Species: species}
			perSpecies[species] = sp
		}
		sp.add(c)
	}

	rep.Pairs = make([]PairPerformance, 0, len(perPair))
	for _, pp := range perPair {
		rep.Pairs = append(rep.Pairs, *pp)
	}
	sort.Slice(rep.Pairs, func(i, j int) bool {
		if rep.Pairs[i].PairName != rep.Pairs[j].PairName {
			return rep.Pairs[i].PairName < rep.Pairs[j].PairName
		}
		return rep.Pairs[i].PairID < rep.Pairs[j].PairID
	})
	rep.Species = make([]SpeciesPerformance, 0, len(perSpecies))
	for _, sp := range perSpecies {
		rep.Species = append(rep.Species, *sp)
	}
	sort.Slice(rep.Species, func(i, j int) bool { return rep.Species[i].Species < rep.Species[j].Species })
	return rep
}
