package dates

import (
	"testing"
	"time"
)

func TestParseDisplay(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
		ok    bool
	}{
		{"19/10/2026", time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), true},
		{"5/3/2026", time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"29/02/2028", time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC), true},
		{"29/02/2027", time.Time{}, false},
		{"31/04/2026", time.Time{}, false},
		{"2026-10-19", time.Time{}, false},
		{"19/10/26", time.Time{}, false},
		{"", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDisplay(tt.input)
			if (err == nil) != tt.ok {
				t.Fatalf("ParseDisplay(%q): err=%v, want ok=%v", tt.input, err, tt.ok)
			}
			if tt.ok && !got.Equal(tt.want) {
				t.Errorf("ParseDisplay(%q): got %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestRoundTripBetweenForms(t *testing.T) {
	d, err := Parse("03/11/2026")
	if err != nil {
		t.Fatalf("parse display: %v", err)
	}
	if got := FormatStorage(d); got != "2026-11-03" {
		t.Errorf("storage form: got %q", got)
	}

	s, err := Parse("2026-11-03")
	if err != nil {
		t.Fatalf("parse storage: %v", err)
	}
	if got := FormatDisplay(s); got != "03/11/2026" {
		t.Errorf("display form: got %q", got)
	}
}

func TestFormatZero(t *testing.T) {
	if FormatDisplay(time.Time{}) != "" || FormatStorage(time.Time{}) != "" {
		t.Error("zero time should format as empty string")
	}
}
