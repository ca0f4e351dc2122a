package core

import "testing"

func TestEstimateHatchDate(t *testing.T) {
	table := DefaultIncubationTable()
	lay := NewDate(2025, 1, 1)

	cases := []struct {
		species string
		want    Date
	}{
		{"Cockatiel", NewDate(2025, 1, 19)},
		{"  cockatiel ", NewDate(2025, 1, 19)},
		{"African Grey", NewDate(2025, 1, 29)},
		{"african  grey", NewDate(2025, 1, 29)},
		{"Dodo", NewDate(2025, 1, 22)},
		{"", NewDate(2025, 1, 22)},
	}
	for _, tc := range cases {
		t.Run(tc.species, func(t *testing.T) {
			if got := table.EstimateHatchDate(lay, tc.species); !got.Equal(tc.want) {
				t.Fatalf("want %s, got %s", tc.want, got)
			}
		})
	}
}

func TestIncubationTableSkipsBadEntries(t *testing.T) {
	table := NewIncubationTable(0, map[string]int{"Kakapo": 30, "Broken": 0, "  ": 12})
	if table.Default != DefaultIncubationDays {
		t.Fatalf("expected default %d, got %d", DefaultIncubationDays, table.Default)
	}
	if got := table.Period("kakapo"); got != 30 {
		t.Fatalf("expected 30, got %d", got)
	}
	if table.Known("Broken") {
		t.Fatalf("non-positive period should be dropped")
	}
	if got := table.Period("Broken"); got != DefaultIncubationDays {
		t.Fatalf("expected default, got %d", got)
	}
	if got := len(table.Species()); got != 1 {
		t.Fatalf("expected 1 species, got %d", got)
	}
}

func TestZeroValueTableUsesDefault(t *testing.T) {
	var table IncubationTable
	got := table.EstimateHatchDate(NewDate(2025, 1, 1), "Cockatiel")
	if !got.Equal(NewDate(2025, 1, 22)) {
		t.Fatalf("expected default period, got %s", got)
	}
}

func TestIncubationTableWithOverrides(t *testing.T) {
	base := DefaultIncubationTable()
	table := base.With(map[string]int{"cockatiel": 19, "Kea": 24})
	if got := table.Period("Cockatiel"); got != 19 {
		t.Fatalf("override: expected 19, got %d", got)
	}
	if got := table.Period("kea"); got != 24 {
		t.Fatalf("addition: expected 24, got %d", got)
	}
	if got := base.Period("Cockatiel"); got != 18 {
		t.Fatalf("base table must not change, got %d", got)
	}
}
