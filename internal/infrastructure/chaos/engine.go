package chaos

import (
	"math/rand"
	"sync"
	"time"
)

// Engine draws fault decisions and price perturbations from one seeded
// source. It is safe for concurrent use by request handlers.
type Engine struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine seeds the engine; a zero seed uses the current time.
func NewEngine(seed int64) *Engine {
	if seed == 0 {
		seed = time.Now().UTC().UnixNano()
	}
	return &Engine{rng: rand.New(rand.NewSource(seed))}
}

// Trigger reports whether an event with the given probability fires.
// Probabilities of zero or one never consume randomness.
func (e *Engine) Trigger(probability float64) bool {
	if probability <= 0 {
		return false
	}
	if probability >= 1 {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64() < probability
}

// Perturb returns a value drawn uniformly from [-spread, spread].
func (e *Engine) Perturb(spread float64) float64 {
	if spread <= 0 {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return (e.rng.Float64()*2 - 1) * spread
}
