package timing

import (
	"strings"
	"testing"
	"time"
)

func TestEstimateSpeakingDurationClamps(t *testing.T) {
	p := Default()

	tests := []struct {
		name string
		text string
		want time.Duration
	}{
		{"empty clamps to min", "", 2500 * time.Millisecond},
		{"short clamps to min", "Hi.", 2500 * time.Millisecond},
		{"mid scales per char", strings.Repeat("a", 100), 4 * time.Second},
		{"long clamps to max", strings.Repeat("a", 500), 8 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.EstimateSpeakingDuration(tt.text); got != tt.want {
				t.Fatalf("EstimateSpeakingDuration(%d chars) = %v, want %v", len(tt.text), got, tt.want)
			}
		})
	}
}

func TestEstimateSpeakingDurationCountsRunes(t *testing.T) {
	p := Default()
	ascii := strings.Repeat("a", 100)
	accented := strings.Repeat("é", 100)
	if p.EstimateSpeakingDuration(ascii) != p.EstimateSpeakingDuration(accented) {
		t.Fatal("estimate must depend on rune count, not byte count")
	}
}

func TestBandFor(t *testing.T) {
	p := Default()

	tests := []struct {
		name     string
		timeLeft time.Duration
		want     Band
	}{
		{"deep negative", -5 * time.Second, BandHardStop},
		{"zero", 0, BandHardStop},
		{"at hard stop", 10 * time.Second, BandHardStop},
		{"just above hard stop", 11 * time.Second, BandConclude},
		{"at conclude", 15 * time.Second, BandConclude},
		{"gap between conclude and shorten", 18 * time.Second, BandNormal},
		{"at shorten lower bound (exclusive)", 20 * time.Second, BandNormal},
		{"inside shorten band", 30 * time.Second, BandShorten},
		{"at shorten upper bound (exclusive)", 40 * time.Second, BandNormal},
		{"plenty of time", 120 * time.Second, BandNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.BandFor(tt.timeLeft); got != tt.want {
				t.Fatalf("BandFor(%v) = %s, want %s", tt.timeLeft, got, tt.want)
			}
		})
	}
}
