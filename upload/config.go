package upload

import "time"

// Config holds the tunables of the upload pipeline.
type Config struct {
	// PartSize is the fixed size of every part except possibly the last.
	// Default: 512 KiB, the largest part the platform transfer endpoints accept.
	PartSize int64

	// BigFileThreshold selects the big-file protocol once the total
	// transferred part volume (TotalParts * PartSize) exceeds it.
	// Default: 10 MiB
	BigFileThreshold int64

	// MaxConcurrentParts caps simultaneous in-flight part uploads.
	// Default: 4
	MaxConcurrentParts int

	// MaxRetries is the attempt budget per part.
	// Default: 3
	MaxRetries int

	// RegularPartLimit and PremiumPartLimit bound the part count of a single
	// upload per account tier.
	RegularPartLimit int
	PremiumPartLimit int

	// RetryBackoffBase scales the 2^attempt backoff between retry attempts.
	// Default: 1 second
	RetryBackoffBase time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		PartSize:           512 * 1024,
		BigFileThreshold:   10 * 1024 * 1024,
		MaxConcurrentParts: 4,
		MaxRetries:         3,
		RegularPartLimit:   2000,
		PremiumPartLimit:   4000,
		RetryBackoffBase:   time.Second,
	}
}

// PartLimit returns the maximum permitted part count for the given tier.
func (c Config) PartLimit(tier Tier) int {
	if tier == TierPremium {
		return c.PremiumPartLimit
	}
	return c.RegularPartLimit
}
