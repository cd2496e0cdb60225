package privacy

import (
	"context"
	"fmt"
)

// DefaultAggregatorWorkers bounds concurrent homomorphic aggregations. The
// modular exponentiations are CPU-heavy; an unbounded fan-out would starve
// request handling under load.
const DefaultAggregatorWorkers = 4

// Aggregator runs homomorphic score aggregation through a bounded worker
// pool. Safe for concurrent use.
type Aggregator struct {
	kp  KeyPair
	sem chan struct{}
}

// NewAggregator wraps a key pair with a pool of the given size. Non-positive
// sizes use the default.
func NewAggregator(kp KeyPair, workers int) (*Aggregator, error) {
	if kp == nil {
		return nil, fmt.Errorf("paillier: nil key pair")
	}
	if workers <= 0 {
		workers = DefaultAggregatorWorkers
	}
	return &Aggregator{kp: kp, sem: make(chan struct{}, workers)}, nil
}

// AggregateScore computes the weighted sum of factor scores without exposing
// any individual score in plaintext. Blocks for a pool slot; a cancelled
// context aborts both the wait and the aggregation itself.
func (a *Aggregator) AggregateScore(ctx context.Context, factors, weights []float64) (float64, error) {
	select {
	case a.sem <- struct{}{}:
		defer func() { <-a.sem }()
	case <-ctx.Done():
		return 0, fmt.Errorf("aggregation aborted: %w", ctx.Err())
	}
	return AggregateWeighted(ctx, a.kp, factors, weights)
}
