package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type (
	ReadingKind string
	AlertLevel  string
)

const (
	Temperature ReadingKind = "temperature"
	Humidity    ReadingKind = "humidity"

	AlertLow  AlertLevel = "low"
	AlertHigh AlertLevel = "high"
)

// Range is an inclusive acceptable band parsed from text such as "37.2-37.8°C".
type Range struct {
	Min float64
	Max float64
}

// Alert describes a reading that fell outside its range.
type Alert struct {
	Kind    ReadingKind `json:"kind"`
	Level   AlertLevel  `json:"level"`
	Value   float64     `json:"value"`
	Min     float64     `json:"min"`
	Max     float64     `json:"max"`
	Message string      `json:"message"`
}

// ParseRange reads "<min>-<max><unit>". Surrounding whitespace, spaces around
// the dash and any trailing unit are ignored. Both bounds must be unsigned
// decimals. ok is false for anything else.
func ParseRange(spec string) (r Range, ok bool) {
	s := strings.TrimSpace(spec)
	s = strings.TrimRightFunc(s, func(c rune) bool { return !unicode.IsDigit(c) })
	if s == "" {
		return Range{}, false
	}
	lo, hi, found := strings.Cut(s, "-")
	if !found {
		return Range{}, false
	}
	minV, ok := parseBound(lo)
	if !ok {
		return Range{}, false
	}
	maxV, ok := parseBound(hi)
	if !ok {
		return Range{}, false
	}
	return Range{Min: minV, Max: maxV}, true
}

func parseBound(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	intPart, frac, hasDot := strings.Cut(s, ".")
	if intPart == "" || !allDigits(intPart) {
		return 0, false
	}
	if hasDot && (frac == "" || !allDigits(frac)) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// EvaluateReading checks value against rangeSpec and returns at most one alert.
// An empty or malformed rangeSpec yields no alerts.
func EvaluateReading(kind ReadingKind, value float64, rangeSpec string) []Alert {
	r, ok := ParseRange(rangeSpec)
	if !ok {
		return nil
	}
	var level AlertLevel
	switch {
	case value < r.Min:
		level = AlertLow
	case value > r.Max:
		level = AlertHigh
	default:
		return nil
	}
	return []Alert{{
		Kind:    kind,
		Level:   level,
		Value:   value,
		Min:     r.Min,
		Max:     r.Max,
		Message: alertMessage(kind, level, value, r),
	}}
}

// EvaluateEntry evaluates both readings of a monitoring entry against the
// incubator's ranges. Missing readings are skipped.
func EvaluateEntry(entry MonitoringEntry, inc Incubator) []Alert {
	var alerts []Alert
	if entry.Temperature != nil {
		alerts = append(alerts, EvaluateReading(Temperature, *entry.Temperature, inc.TemperatureRange)...)
	}
	if entry.Humidity != nil {
		alerts = append(alerts, EvaluateReading(Humidity, *entry.Humidity, inc.HumidityRange)...)
	}
	return alerts
}

func alertMessage(kind ReadingKind, level AlertLevel, value float64, r Range) string {
	name := string(kind)
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	dir := "below"
	if level == AlertHigh {
		dir = "above"
	}
	return fmt.Sprintf("%s %s is %s range [%s, %s]", name, fmtFloat(value), dir, fmtFloat(r.Min), fmtFloat(r.Max))
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
