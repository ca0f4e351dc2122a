package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"aviary/internal/core"
)

// incubationFile is the on-disk shape of INCUBATION_TABLE_FILE:
//
//	default_days: 21
//	species:
//	  Cockatiel: 18
//	  African Grey: 28
type incubationFile struct {
	DefaultDays int            `yaml:"default_days"`
	Species     map[string]int `yaml:"species"`
}

// LoadIncubationTable returns the built-in table extended by the entries in
// path. An empty path returns the built-in table with defaultDays as fallback.
func LoadIncubationTable(path string, defaultDays int) (core.IncubationTable, error) {
	base := core.NewIncubationTable(defaultDays, nil).With(builtinPeriods())
	if path == "" {
		return base, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return core.IncubationTable{}, fmt.Errorf("read incubation table: %w", err)
	}
	var f incubationFile
	if err := yaml.UnmarshalStrict(raw, &f); err != nil {
		return core.IncubationTable{}, fmt.Errorf("parse incubation table %s: %w", path, err)
	}
	for name, days := range f.Species {
		if days <= 0 {
			return core.IncubationTable{}, fmt.Errorf("incubation table %s: species %q has non-positive period %d", path, name, days)
		}
	}

	if f.DefaultDays > 0 {
		defaultDays = f.DefaultDays
	}
	return core.NewIncubationTable(defaultDays, nil).With(builtinPeriods()).With(f.Species), nil
}

func builtinPeriods() map[string]int {
	t := core.DefaultIncubationTable()
	out := make(map[string]int)
	for _, s := range t.Species() {
		out[s] = t.Period(s)
	}
	return out
}
