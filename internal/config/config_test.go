package config

import "testing"

func TestPassingThreshold(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  int
	}{
		{"numeric", "85", 85},
		{"zero is respected", "0", 0},
		{"empty falls back", "", DefaultPassingScore},
		{"non-numeric falls back", "seventy", DefaultPassingScore},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{Scoring: ScoringConfig{PassingScore: tc.value}}
			if got := cfg.PassingThreshold(); got != tc.want {
				t.Fatalf("PassingThreshold(%q) = %d, want %d", tc.value, got, tc.want)
			}
		})
	}
}
