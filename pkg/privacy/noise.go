package privacy

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
)

const (
	// DefaultEpsilon is the per-query privacy cost for noised aggregates.
	DefaultEpsilon = 1.0

	// DefaultBudgetCeiling is the cumulative epsilon allowed before the
	// budget trips. Resetting it is an explicit operator action.
	DefaultBudgetCeiling = 10.0

	// countSensitivity is the L1 sensitivity of a counting query.
	countSensitivity = 1.0
)

// ErrPrivacyBudgetExceeded signals that the cumulative epsilon ceiling has
// been crossed. It is a caller-visible condition, not a hard failure: callers
// decide whether to serve a degraded (non-private) or rejected response.
var ErrPrivacyBudgetExceeded = errors.New("privacy budget exceeded")

// Budget accumulates epsilon across queries against a fixed ceiling.
// Safe for concurrent use.
type Budget struct {
	mu      sync.Mutex
	used    float64
	ceiling float64
}

// NewBudget creates a budget with the given ceiling. A non-positive ceiling
// uses the default.
func NewBudget(ceiling float64) *Budget {
	if ceiling <= 0 {
		ceiling = DefaultBudgetCeiling
	}
	return &Budget{ceiling: ceiling}
}

// Spend charges eps against the budget. Once the charge would cross the
// ceiling the spend is rejected with ErrPrivacyBudgetExceeded and the budget
// stays tripped until Reset.
func (b *Budget) Spend(eps float64) error {
	if eps <= 0 {
		return fmt.Errorf("invalid epsilon %v", eps)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.used+eps > b.ceiling {
		return ErrPrivacyBudgetExceeded
	}
	b.used += eps
	return nil
}

// Ceiling returns the budget's epsilon ceiling.
func (b *Budget) Ceiling() float64 {
	return b.ceiling
}

// Used returns the cumulative epsilon spent so far.
func (b *Budget) Used() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Exceeded reports whether another default-cost query would trip the budget.
func (b *Budget) Exceeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used >= b.ceiling
}

// Reset clears the accumulated spend. This is the explicit operator action;
// the budget never resets on its own.
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used = 0
}

// Injector adds Laplace noise calibrated for counting queries. Each call
// charges epsilon against the shared budget. Safe for concurrent use.
type Injector struct {
	epsilon float64
	budget  *Budget

	mu      sync.Mutex
	uniform func() float64 // returns values in (0,1)
}

// InjectorOption configures an Injector.
type InjectorOption func(*Injector)

// WithUniform overrides the uniform source. Tests use a seeded source for
// reproducible distributions.
func WithUniform(u func() float64) InjectorOption {
	return func(i *Injector) {
		i.uniform = u
	}
}

// NewInjector creates a Laplace noise injector with the given per-query
// epsilon (non-positive uses the default) charging against budget.
func NewInjector(epsilon float64, budget *Budget, opts ...InjectorOption) *Injector {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	if budget == nil {
		budget = NewBudget(DefaultBudgetCeiling)
	}
	inj := &Injector{
		epsilon: epsilon,
		budget:  budget,
		uniform: cryptoUniform,
	}
	for _, opt := range opts {
		opt(inj)
	}
	return inj
}

// Budget returns the budget this injector charges against.
func (i *Injector) Budget() *Budget {
	return i.budget
}

// NoisyCount returns the true count perturbed with Laplace noise of scale
// sensitivity/epsilon, clamped to be non-negative and rounded back to count
// semantics. Returns ErrPrivacyBudgetExceeded once the budget trips.
func (i *Injector) NoisyCount(trueCount int) (int, error) {
	if err := i.budget.Spend(i.epsilon); err != nil {
		return 0, err
	}

	noised := float64(trueCount) + i.laplace(countSensitivity/i.epsilon)
	if noised < 0 {
		noised = 0
	}
	return int(math.Round(noised)), nil
}

// laplace draws one sample from Laplace(0, scale) via the inverse CDF:
// for u ~ Uniform(-1/2, 1/2), x = -scale * sgn(u) * ln(1 - 2|u|).
func (i *Injector) laplace(scale float64) float64 {
	i.mu.Lock()
	u := i.uniform() - 0.5
	i.mu.Unlock()

	sign := 1.0
	if u < 0 {
		sign = -1.0
	}
	return -scale * sign * math.Log(1-2*math.Abs(u))
}

// cryptoUniform draws a uniform float64 in (0,1) from crypto/rand.
func cryptoUniform() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failure is unrecoverable; degrade to the midpoint,
		// which yields zero noise rather than a crash.
		return 0.5
	}
	// 53 bits of mantissa, shifted into (0,1).
	v := binary.BigEndian.Uint64(buf[:]) >> 11
	return (float64(v) + 0.5) / (1 << 53)
}
