package prayer

import (
	"errors"
	"testing"
	"time"
)

func at(h, m, s int) time.Time {
	return time.Date(2025, 3, 10, h, m, s, 0, time.UTC)
}

func TestParseName(t *testing.T) {
	tests := []struct {
		in      string
		want    Name
		wantErr bool
	}{
		{"fajr", Fajr, false},
		{"  MAGHRIB ", Maghrib, false},
		{"Sunrise", Sunrise, false},
		{"jumuah", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseName(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseName(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNameIndexFollowsDayOrder(t *testing.T) {
	for i, n := range Names {
		if n.Index() != i {
			t.Errorf("%s.Index() = %d, want %d", n, n.Index(), i)
		}
	}
	if Name("Witr").Valid() {
		t.Error("unknown name should not be valid")
	}
}

func TestScheduleEntriesSortedByTime(t *testing.T) {
	s := NewSchedule("2025-03-10", map[Name]time.Time{
		Isha:  at(19, 30, 0),
		Fajr:  at(4, 45, 0),
		Asr:   at(15, 10, 0),
		Dhuhr: at(12, 5, 0),
	})

	entries := s.Entries()
	want := []Name{Fajr, Dhuhr, Asr, Isha}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if e.Prayer != want[i] {
			t.Errorf("entry %d = %s, want %s", i, e.Prayer, want[i])
		}
	}
}

func TestScheduleEqualTimesKeepCanonicalOrder(t *testing.T) {
	same := at(12, 0, 0)
	s := NewSchedule("2025-03-10", map[Name]time.Time{Asr: same, Dhuhr: same})

	entries := s.Entries()
	if entries[0].Prayer != Dhuhr || entries[1].Prayer != Asr {
		t.Errorf("expected Dhuhr before Asr, got %v", entries)
	}
}

func TestNewScheduleCopiesInput(t *testing.T) {
	in := map[Name]time.Time{Fajr: at(4, 45, 0)}
	s := NewSchedule("2025-03-10", in)
	in[Fajr] = at(5, 0, 0)
	in[Dhuhr] = at(12, 0, 0)

	got, _ := s.Time(Fajr)
	if !got.Equal(at(4, 45, 0)) {
		t.Errorf("schedule changed with its input: %v", got)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", s.Len())
	}
}

func TestNewScheduleDropsInvalidEntries(t *testing.T) {
	s := NewSchedule("2025-03-10", map[Name]time.Time{
		Fajr:         at(4, 45, 0),
		Name("Witr"): at(21, 0, 0),
		Dhuhr:        {},
	})
	if s.Len() != 1 {
		t.Errorf("expected only Fajr to survive, got %d entries", s.Len())
	}
}

func TestNextSkipsSunrise(t *testing.T) {
	s := NewSchedule("2025-03-10", map[Name]time.Time{
		Fajr:    at(4, 45, 0),
		Sunrise: at(6, 5, 0),
		Dhuhr:   at(12, 5, 0),
	})

	e, ok := Next(s, at(5, 0, 0))
	if !ok || e.Prayer != Dhuhr {
		t.Errorf("expected Dhuhr, got %v ok=%v", e, ok)
	}

	if _, ok := Next(s, at(13, 0, 0)); ok {
		t.Error("expected no next prayer after the last entry")
	}
}

func TestFixedProviderPlacesTimesOnNowDate(t *testing.T) {
	loc := time.FixedZone("PHT", 8*3600)
	p, err := NewFixedProvider(map[string]string{
		"fajr":  "04:45",
		"dhuhr": "12:05:30",
	}, loc)
	if err != nil {
		t.Fatalf("NewFixedProvider: %v", err)
	}

	now := time.Date(2025, 3, 10, 1, 0, 0, 0, loc)
	s, err := p.Today(now)
	if err != nil {
		t.Fatalf("Today: %v", err)
	}
	if s.Date != "2025-03-10" {
		t.Errorf("expected date 2025-03-10, got %s", s.Date)
	}
	dhuhr, _ := s.Time(Dhuhr)
	if want := time.Date(2025, 3, 10, 12, 5, 30, 0, loc); !dhuhr.Equal(want) {
		t.Errorf("Dhuhr = %v, want %v", dhuhr, want)
	}
}

func TestFixedProviderRejectsBadInput(t *testing.T) {
	if _, err := NewFixedProvider(map[string]string{"fajr": "4h45"}, nil); err == nil {
		t.Error("expected error for malformed time")
	}
	if _, err := NewFixedProvider(map[string]string{"tahajjud": "03:00"}, nil); err == nil {
		t.Error("expected error for unknown prayer")
	}
}

func TestFixedProviderEmpty(t *testing.T) {
	p, _ := NewFixedProvider(nil, time.UTC)
	if _, err := p.Today(at(10, 0, 0)); !errors.Is(err, ErrNoSchedule) {
		t.Errorf("expected ErrNoSchedule, got %v", err)
	}
}

func TestTimetableProviderFallsBack(t *testing.T) {
	fallback, _ := NewFixedProvider(map[string]string{"fajr": "05:00"}, time.UTC)
	p, err := NewTimetableProvider(map[string]map[string]string{
		"2025-03-10": {"fajr": "04:45"},
	}, time.UTC, fallback)
	if err != nil {
		t.Fatalf("NewTimetableProvider: %v", err)
	}

	s, _ := p.Today(at(3, 0, 0))
	if f, _ := s.Time(Fajr); f.Hour() != 4 || f.Minute() != 45 {
		t.Errorf("expected timetable row, got %v", f)
	}

	s, _ = p.Today(at(3, 0, 0).AddDate(0, 0, 1))
	if f, _ := s.Time(Fajr); f.Hour() != 5 {
		t.Errorf("expected fallback row, got %v", f)
	}
}

func TestTimetableProviderWithoutFallback(t *testing.T) {
	p, _ := NewTimetableProvider(nil, time.UTC, nil)
	if _, err := p.Today(at(3, 0, 0)); !errors.Is(err, ErrNoSchedule) {
		t.Errorf("expected ErrNoSchedule, got %v", err)
	}
}

func TestNextAfterRollsIntoTomorrow(t *testing.T) {
	p, _ := NewFixedProvider(map[string]string{
		"fajr": "04:45",
		"isha": "19:30",
	}, time.UTC)

	e, ok, err := NextAfter(p, at(20, 0, 0))
	if err != nil || !ok {
		t.Fatalf("NextAfter: ok=%v err=%v", ok, err)
	}
	if e.Prayer != Fajr || e.At.Day() != 11 {
		t.Errorf("expected tomorrow's Fajr, got %s at %v", e.Prayer, e.At)
	}
}
