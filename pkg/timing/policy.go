// Package timing contains the pure time-budget policy: speaking-duration
// estimation for synthesized replies and escalation banding over the time
// remaining in a conversation. It has no state and no I/O so it can be
// tuned and tested independent of any vendor.
package timing

import (
	"time"
	"unicode/utf8"
)

// Band classifies how much time is left in a conversation.
type Band int

const (
	// BandNormal means no escalation: ask questions as usual.
	BandNormal Band = iota
	// BandShorten means the next question must be short enough to be
	// answered inside the remaining window.
	BandShorten
	// BandConclude means the next reply must be a closing statement.
	BandConclude
	// BandHardStop means there is no time for another generated reply;
	// a fixed closing line is used instead.
	BandHardStop
)

func (b Band) String() string {
	switch b {
	case BandNormal:
		return "NORMAL"
	case BandShorten:
		return "SHORTEN"
	case BandConclude:
		return "CONCLUDE"
	case BandHardStop:
		return "HARDSTOP"
	default:
		return "UNKNOWN"
	}
}

// Policy holds the escalation thresholds and the reading-time model.
// All values are configuration, not constants.
type Policy struct {
	// PerCharRate is the assumed speaking cost per character of reply text.
	PerCharRate time.Duration
	// MinDuration and MaxDuration clamp the estimate.
	MinDuration time.Duration
	MaxDuration time.Duration

	// HardStop is the remaining time at or below which no reply is generated.
	HardStop time.Duration
	// Conclude is the remaining time at or below which the generator is told
	// to close the conversation.
	Conclude time.Duration
	// ShortenLow/ShortenHigh bound the open interval in which the generator
	// is told to keep its next question short. Remaining time between
	// Conclude and ShortenLow intentionally maps to BandNormal.
	ShortenLow  time.Duration
	ShortenHigh time.Duration
}

// Default returns the policy tuned for spoken interviews.
func Default() Policy {
	return Policy{
		PerCharRate: 40 * time.Millisecond,
		MinDuration: 2500 * time.Millisecond,
		MaxDuration: 8 * time.Second,
		HardStop:    10 * time.Second,
		Conclude:    15 * time.Second,
		ShortenLow:  20 * time.Second,
		ShortenHigh: 40 * time.Second,
	}
}

// EstimateSpeakingDuration estimates how long synthesized speech for text
// will remain audible, clamped to [MinDuration, MaxDuration].
func (p Policy) EstimateSpeakingDuration(text string) time.Duration {
	d := time.Duration(utf8.RuneCountInString(text)) * p.PerCharRate
	if d < p.MinDuration {
		return p.MinDuration
	}
	if d > p.MaxDuration {
		return p.MaxDuration
	}
	return d
}

// BandFor classifies the remaining time into an escalation band.
func (p Policy) BandFor(timeLeft time.Duration) Band {
	switch {
	case timeLeft <= p.HardStop:
		return BandHardStop
	case timeLeft <= p.Conclude:
		return BandConclude
	case timeLeft > p.ShortenLow && timeLeft < p.ShortenHigh:
		return BandShorten
	default:
		return BandNormal
	}
}
