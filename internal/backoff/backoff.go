package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

const (
	PolicyFixed          = "fixed"
	PolicyLinear         = "linear"
	PolicyExponential    = "exponential"
	PolicyExpEqualJitter = "exp_equal_jitter"
	PolicyExpFullJitter  = "exp_full_jitter"
)

// Policies lists every accepted policy name.
var Policies = []string{PolicyFixed, PolicyLinear, PolicyExponential, PolicyExpEqualJitter, PolicyExpFullJitter}

// Compute returns a delay in seconds based on attempts and policy.
// attempts is expected to be >= 0.
func Compute(policy string, baseSeconds int, maxSeconds int, attempts int, rng *rand.Rand) int {
	if attempts < 0 {
		attempts = 0
	}
	if baseSeconds <= 0 {
		baseSeconds = 1
	}
	if maxSeconds <= 0 {
		maxSeconds = baseSeconds
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	switch policy {
	case PolicyFixed:
		return min(baseSeconds, maxSeconds)
	case PolicyLinear:
		return min(baseSeconds*max(1, attempts), maxSeconds)
	case PolicyExponential:
		return expCapped(baseSeconds, maxSeconds, attempts)
	case PolicyExpEqualJitter:
		half := expCapped(baseSeconds, maxSeconds, attempts) / 2
		return half + rng.Intn(half+1)
	default: // exp_full_jitter
		maxDelay := expCapped(baseSeconds, maxSeconds, attempts)
		if maxDelay <= 0 {
			return 0
		}
		return rng.Intn(maxDelay + 1)
	}
}

func expCapped(base, maxSeconds, attempts int) int {
	v := float64(base) * math.Pow(2, float64(attempts))
	if v > float64(maxSeconds) {
		return maxSeconds
	}
	return int(v)
}

// Policy bounds a retried call. MaxAttempts <= 1 means a single attempt.
type Policy struct {
	Name        string
	MaxAttempts int
	BaseSeconds int
	MaxSeconds  int
}

// Retry calls fn until it succeeds, returns a non-retryable error, the attempts run out, or
// ctx ends. A nil retryable treats every error as retryable. The last error is returned.
func Retry(ctx context.Context, p Policy, rng *rand.Rand, retryable func(error) bool, fn func(ctx context.Context) error) error {
	attempts := max(1, p.MaxAttempts)
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 || (retryable != nil && !retryable(err)) {
			return err
		}
		delay := time.Duration(Compute(p.Name, p.BaseSeconds, p.MaxSeconds, i, rng)) * time.Second
		if delay <= 0 {
			if ctx.Err() != nil {
				return err
			}
			continue
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
	return err
}
