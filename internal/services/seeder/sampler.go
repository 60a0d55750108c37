package seeder

import (
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Sampler draws a decimal in [min, max].
type Sampler interface {
	Sample(min, max decimal.Decimal) decimal.Decimal
}

// UniformSampler samples uniformly. Safe for concurrent use.
type UniformSampler struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewUniformSampler returns a sampler seeded with seed. A zero seed uses the clock.
func NewUniformSampler(seed int64) *UniformSampler {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &UniformSampler{rnd: rand.New(rand.NewSource(seed))}
}

// Sample returns min + u*(max-min) with u in [0, 1).
func (s *UniformSampler) Sample(min, max decimal.Decimal) decimal.Decimal {
	if !max.GreaterThan(min) {
		return min
	}
	s.mu.Lock()
	u := s.rnd.Float64()
	s.mu.Unlock()
	return min.Add(max.Sub(min).Mul(decimal.NewFromFloat(u)))
}
