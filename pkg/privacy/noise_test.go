package privacy

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seededUniform returns a deterministic uniform source for reproducible
// distribution tests.
func seededUniform(seed int64) func() float64 {
	r := rand.New(rand.NewSource(seed))
	return func() float64 {
		// Never exactly 0 or 1, keeping the inverse CDF finite.
		return (r.Float64()*(1<<53-1) + 0.5) / (1 << 53)
	}
}

func TestNoisyCountEmpiricalMean(t *testing.T) {
	const (
		trueCount = 100
		trials    = 10_000
	)
	inj := NewInjector(DefaultEpsilon, NewBudget(float64(trials)+1),
		WithUniform(seededUniform(42)))

	var sum float64
	for i := 0; i < trials; i++ {
		n, err := inj.NoisyCount(trueCount)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 0, "noised counts are never negative")
		sum += float64(n)
	}

	mean := sum / trials
	t.Logf("empirical mean over %d trials: %.3f (true count %d)", trials, mean, trueCount)
	assert.InDelta(t, float64(trueCount), mean, 0.5,
		"Laplace noise is zero-mean, so the empirical mean converges on the true count")
}

func TestNoisyCountNeverNegative(t *testing.T) {
	inj := NewInjector(DefaultEpsilon, NewBudget(10_000),
		WithUniform(seededUniform(7)))

	for i := 0; i < 2_000; i++ {
		n, err := inj.NoisyCount(0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 0)
	}
}

func TestNoisyCountSpendsBudget(t *testing.T) {
	budget := NewBudget(2.5)
	inj := NewInjector(1.0, budget)

	_, err := inj.NoisyCount(50)
	require.NoError(t, err)
	_, err = inj.NoisyCount(50)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, budget.Used(), 1e-9)

	t.Log("third query would push spend past the 2.5 ceiling")
	_, err = inj.NoisyCount(50)
	assert.ErrorIs(t, err, ErrPrivacyBudgetExceeded)

	t.Log("budget stays tripped until an explicit reset")
	_, err = inj.NoisyCount(50)
	assert.ErrorIs(t, err, ErrPrivacyBudgetExceeded)

	budget.Reset()
	assert.Zero(t, budget.Used())
	_, err = inj.NoisyCount(50)
	assert.NoError(t, err)
}

func TestBudgetSpendValidation(t *testing.T) {
	b := NewBudget(5)
	assert.Error(t, b.Spend(0))
	assert.Error(t, b.Spend(-1))
	assert.Zero(t, b.Used())
}

func TestBudgetExceeded(t *testing.T) {
	b := NewBudget(2)
	assert.False(t, b.Exceeded())
	require.NoError(t, b.Spend(2))
	assert.True(t, b.Exceeded())
}

func TestNewInjectorDefaults(t *testing.T) {
	inj := NewInjector(0, nil)
	assert.Equal(t, DefaultEpsilon, inj.epsilon)
	require.NotNil(t, inj.Budget())

	n, err := inj.NoisyCount(10)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 0)
}

func TestLaplaceScaleTracksEpsilon(t *testing.T) {
	// With epsilon 0.5 the scale doubles; the empirical absolute deviation
	// should roughly double too (E|X| = scale for Laplace).
	tight := NewInjector(2.0, NewBudget(1e9), WithUniform(seededUniform(1)))
	loose := NewInjector(0.5, NewBudget(1e9), WithUniform(seededUniform(1)))

	dev := func(inj *Injector) float64 {
		var total float64
		for i := 0; i < 5_000; i++ {
			n, err := inj.NoisyCount(1_000)
			require.NoError(t, err)
			total += math.Abs(float64(n) - 1_000)
		}
		return total / 5_000
	}

	tightDev, looseDev := dev(tight), dev(loose)
	t.Logf("mean abs deviation: eps=2.0 %.3f, eps=0.5 %.3f", tightDev, looseDev)
	assert.Greater(t, looseDev, tightDev*2,
		"smaller epsilon must produce visibly wider noise")
}
