package bot

import (
	"testing"
	"time"
)

func TestParseWhen(t *testing.T) {
	t.Parallel()

	tz, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	// 2024-06-01 12:00 UTC is 13:00 in London (BST).
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		raw     string
		want    time.Time
		wantErr bool
	}{
		{name: "relative minutes", raw: "+45", want: now.Add(45 * time.Minute)},
		{name: "clock later today", raw: "14:30", want: time.Date(2024, 6, 1, 14, 30, 0, 0, tz)},
		{name: "clock already passed rolls over", raw: "09:00", want: time.Date(2024, 6, 2, 9, 0, 0, 0, tz)},
		{name: "zero minutes rejected", raw: "+0", wantErr: true},
		{name: "negative minutes rejected", raw: "+-5", wantErr: true},
		{name: "garbage rejected", raw: "later", wantErr: true},
		{name: "out of range clock rejected", raw: "25:61", wantErr: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseWhen(tc.raw, now, tz)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseWhen(%q) = %v, want error", tc.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseWhen(%q): %v", tc.raw, err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("parseWhen(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestParseRaidID(t *testing.T) {
	t.Parallel()

	if id, err := parseRaidID("42"); err != nil || id != 42 {
		t.Fatalf("parseRaidID(42) = %d, %v", id, err)
	}
	for _, raw := range []string{"0", "-3", "abc", ""} {
		if _, err := parseRaidID(raw); err == nil {
			t.Fatalf("parseRaidID(%q) accepted", raw)
		}
	}
}
