package dates

import (
	"testing"
	"time"
)

func TestParseNormalizes(t *testing.T) {
	d, err := Parse("2024-01-07")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if d.Hour() != 0 || d.Minute() != 0 || d.Location() != time.UTC {
		t.Errorf("Expected UTC midnight, got %v", d)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	if _, err := Parse("07/01/2024"); err == nil {
		t.Error("Expected error for non-ISO date")
	}
	if _, err := Parse(""); err == nil {
		t.Error("Expected error for empty date")
	}
}

func TestIsSunday(t *testing.T) {
	sunday, _ := Parse("2024-01-07")
	monday, _ := Parse("2024-01-08")

	if !IsSunday(sunday) {
		t.Error("2024-01-07 is a Sunday")
	}
	if IsSunday(monday) {
		t.Error("2024-01-08 is not a Sunday")
	}
}

func TestSundayOnOrBefore(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2024-01-07", "2024-01-07"}, // already Sunday
		{"2024-01-08", "2024-01-07"}, // Monday
		{"2024-01-13", "2024-01-07"}, // Saturday
		{"2024-01-14", "2024-01-14"}, // next Sunday
	}
	for _, c := range cases {
		in, _ := Parse(c.in)
		got := SundayOnOrBefore(in)
		if Format(got) != c.want {
			t.Errorf("SundayOnOrBefore(%s) = %s, want %s", c.in, Format(got), c.want)
		}
	}
}

func TestSameDay(t *testing.T) {
	a := time.Date(2024, 1, 7, 23, 59, 0, 0, time.UTC)
	b := time.Date(2024, 1, 7, 0, 1, 0, 0, time.UTC)
	if !SameDay(a, b) {
		t.Error("Expected same day for different times on 2024-01-07")
	}
}
