package optin

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// IsWithinAcceptancePeriod reports whether now is strictly before createdAt + period.
func IsWithinAcceptancePeriod(createdAt time.Time, period time.Duration, now time.Time) bool {
	return now.Before(createdAt.Add(period))
}

// IsOutsideAcceptancePeriod is the negation of IsWithinAcceptancePeriod
func IsOutsideAcceptancePeriod(createdAt time.Time, period time.Duration, now time.Time) bool {
	return !IsWithinAcceptancePeriod(createdAt, period, now)
}

// ParseAcceptancePeriod parses duration expressions like "24h" or "90m".
// An empty pattern yields DefaultAcceptancePeriod.
func ParseAcceptancePeriod(pattern string) (time.Duration, error) {
	if pattern == "" {
		return DefaultAcceptancePeriod, nil
	}

	d, err := time.ParseDuration(pattern)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid acceptance period").
			WithMetadata(map[string]any{"pattern": pattern})
	}

	if d <= 0 {
		return 0, goerrors.New("acceptance period must be positive", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"pattern": pattern})
	}

	return d, nil
}
