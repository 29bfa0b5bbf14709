package middleware

import (
	crand "crypto/rand"
	"math"
	"math/big"
	"time"
)

const randPrecision = 1 << 53

// Backoff computes the delay before each retry attempt.
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64

	// rand returns a value in [0, 1). Defaults to crypto/rand.
	rand func() float64
}

// Delay returns the wait before attempt (attempt >= 2). The nominal delay is
// Base*Multiplier^(attempt-2), capped at Max, scaled by a factor drawn from
// [1-Jitter, 1+Jitter] and clamped to [nominal*(1-Jitter), Max].
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 2 {
		return 0
	}
	exp := attempt - 2
	if exp > 62 {
		exp = 62
	}

	nominal := float64(b.Base) * math.Pow(b.multiplier(), float64(exp))
	maxDelay := float64(b.Max)
	if maxDelay <= 0 {
		maxDelay = math.MaxInt64
	}
	capped := math.Min(nominal, maxDelay)

	j := b.jitter()
	factor := 1 - j + 2*j*b.random()
	d := capped * factor

	lower := math.Min(nominal*(1-j), maxDelay)
	if d < lower {
		d = lower
	}
	if d > maxDelay {
		d = maxDelay
	}
	// float64(math.MaxInt64) rounds up to 2^63, which overflows Duration.
	if d >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func (b Backoff) multiplier() float64 {
	if b.Multiplier < 1 {
		return 1
	}
	return b.Multiplier
}

func (b Backoff) jitter() float64 {
	switch {
	case b.Jitter < 0:
		return 0
	case b.Jitter > 1:
		return 1
	default:
		return b.Jitter
	}
}

func (b Backoff) random() float64 {
	if b.rand != nil {
		return b.rand()
	}
	return cryptoFloat64()
}

func cryptoFloat64() float64 {
	n, err := crand.Int(crand.Reader, big.NewInt(randPrecision))
	if err != nil {
		// On RNG failure, use the nominal delay
		return 0.5
	}
	return float64(n.Int64()) / randPrecision
}
