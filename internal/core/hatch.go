package core

import (
	"sort"
	"strings"
)

// DefaultIncubationDays is used for species missing from the table.
const DefaultIncubationDays = 21

// IncubationTable maps species names to incubation periods in days.
// Lookups are case-insensitive and ignore surrounding whitespace.
type IncubationTable struct {
	Default int
	periods map[string]int
}

// NewIncubationTable builds a table. Non-positive periods are skipped and a
// non-positive default falls back to DefaultIncubationDays.
func NewIncubationTable(defaultDays int, periods map[string]int) IncubationTable {
	if defaultDays <= 0 {
		defaultDays = DefaultIncubationDays
	}
	t := IncubationTable{Default: defaultDays, periods: make(map[string]int, len(periods))}
	for name, days := range periods {
		key := speciesKey(name)
		if key == "" || days <= 0 {
			continue
		}
		t.periods[key] = days
	}
	return t
}

// DefaultIncubationTable returns the built-in periods for common aviary species.
func DefaultIncubationTable() IncubationTable {
	return NewIncubationTable(DefaultIncubationDays, map[string]int{
		"African Grey":  28,
		"Amazon Parrot": 26,
		"Budgerigar":    18,
		"Caique":        26,
		"Canary":        14,
		"Cockatiel":     18,
		"Cockatoo":      28,
		"Conure":        24,
		"Eclectus":      28,
		"Finch":         14,
		"Lovebird":      23,
		"Macaw":         28,
		"Parrotlet":     19,
		"Quaker Parrot": 24,
		"Ringneck":      23,
		"Zebra Finch":   14,
	})
}

// Period returns the incubation period for species, or the default.
func (t IncubationTable) Period(species string) int {
	if days, ok := t.periods[speciesKey(species)]; ok {
		return days
	}
	if t.Default <= 0 {
		return DefaultIncubationDays
	}
	return t.Default
}

// With returns a copy of t with periods added or overriding existing entries.
func (t IncubationTable) With(periods map[string]int) IncubationTable {
	out := NewIncubationTable(t.Default, nil)
	for k, v := range t.periods {
		out.periods[k] = v
	}
	for name, days := range periods {
		key := speciesKey(name)
		if key == "" || days <= 0 {
			continue
		}
		out.periods[key] = days
	}
	return out
}

// Known reports whether species has its own entry.
func (t IncubationTable) Known(species string) bool {
	_, ok := t.periods[speciesKey(species)]
	return ok
}

// Species lists the table's species keys in sorted order.
func (t IncubationTable) Species() []string {
	out := make([]string, 0, len(t.periods))
	for k := range t.periods {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// EstimateHatchDate adds the species' incubation period to the laying date.
// Unknown or empty species use the default period.
func (t IncubationTable) EstimateHatchDate(layingDate Date, species string) Date {
	return layingDate.AddDays(t.Period(species))
}

func speciesKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
