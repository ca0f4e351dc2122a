package core

import (
	"strings"
	"testing"
)

func TestParseRange(t *testing.T) {
	cases := []struct {
		in       string
		min, max float64
		ok       bool
	}{
		{"37.2-37.8°C", 37.2, 37.8, true},
		{"55-65%", 55, 65, true},
		{" 37.5 - 37.5 C ", 37.5, 37.5, true},
		{"40-30", 40, 30, true},
		{"", 0, 0, false},
		{"°C", 0, 0, false},
		{"37.5", 0, 0, false},
		{"-5-10", 0, 0, false},
		{"37.-38", 0, 0, false},
		{"a-b", 0, 0, false},
		{"1-2-3", 0, 0, false},
	}
	for _, tc := range cases {
		r, ok := ParseRange(tc.in)
		if ok != tc.ok {
			t.Errorf("%q: ok=%v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if ok && (r.Min != tc.min || r.Max != tc.max) {
			t.Errorf("%q: got [%v, %v]", tc.in, r.Min, r.Max)
		}
	}
}

func TestEvaluateReading(t *testing.T) {
	low := EvaluateReading(Temperature, 36.5, "37.2-37.8°C")
	if len(low) != 1 || low[0].Level != AlertLow {
		t.Fatalf("expected one low alert, got %+v", low)
	}
	msg := low[0].Message
	for _, part := range []string{"Temperature", "36.5", "37.2", "37.8", "below"} {
		if !strings.Contains(msg, part) {
			t.Errorf("message %q missing %q", msg, part)
		}
	}

	if got := EvaluateReading(Temperature, 37.5, "37.2-37.8°C"); len(got) != 0 {
		t.Fatalf("expected no alerts, got %+v", got)
	}

	high := EvaluateReading(Humidity, 70, "55-65%")
	if len(high) != 1 || high[0].Level != AlertHigh || high[0].Kind != Humidity {
		t.Fatalf("expected one high humidity alert, got %+v", high)
	}

	if got := EvaluateReading(Humidity, 200, ""); len(got) != 0 {
		t.Fatalf("empty range must not alert, got %+v", got)
	}
	if got := EvaluateReading(Humidity, 200, "garbage"); len(got) != 0 {
		t.Fatalf("malformed range must not alert, got %+v", got)
	}
}

func TestEvaluateReadingBoundsAreInclusive(t *testing.T) {
	for _, v := range []float64{37.2, 37.8} {
		if got := EvaluateReading(Temperature, v, "37.2-37.8"); len(got) != 0 {
			t.Errorf("%v on the boundary raised %+v", v, got)
		}
	}
	if got := EvaluateReading(Temperature, 37.5, "37.5-37.5"); len(got) != 0 {
		t.Errorf("equal bounds should accept the exact value, got %+v", got)
	}
}

func TestEvaluateReadingInvertedRangeRaisesOneAlert(t *testing.T) {
	got := EvaluateReading(Temperature, 35, "40-30")
	if len(got) != 1 || got[0].Level != AlertLow {
		t.Fatalf("expected a single low alert, got %+v", got)
	}
}

func TestEvaluateEntry(t *testing.T) {
	temp, hum := 39.0, 50.0
	inc := Incubator{TemperatureRange: "37.2-37.8°C", HumidityRange: "55-65%"}
	alerts := EvaluateEntry(MonitoringEntry{Temperature: &temp, Humidity: &hum}, inc)
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %+v", alerts)
	}
	if alerts[0].Kind != Temperature || alerts[0].Level != AlertHigh {
		t.Errorf("unexpected first alert %+v", alerts[0])
	}
	if alerts[1].Kind != Humidity || alerts[1].Level != AlertLow {
		t.Errorf("unexpected second alert %+v", alerts[1])
	}

	if got := EvaluateEntry(MonitoringEntry{Humidity: &hum}, Incubator{}); len(got) != 0 {
		t.Fatalf("incubator without ranges should not alert, got %+v", got)
	}
}
