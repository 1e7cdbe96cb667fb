package ev

import (
	"math/rand"
	"sync"
)

// LeverageStrategy draws a leverage from a tier band [min, max). It is an
// explicit strategy so tests can substitute a deterministic source.
type LeverageStrategy interface {
	Draw(min, max int) int
}

// UniformLeverage draws uniformly within the band from a seedable source.
type UniformLeverage struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewUniformLeverage creates a uniform strategy seeded with seed.
func NewUniformLeverage(seed int64) *UniformLeverage {
	return &UniformLeverage{rnd: rand.New(rand.NewSource(seed))}
}

// Draw returns an integer in [min, max), or min when the band is degenerate.
func (u *UniformLeverage) Draw(min, max int) int {
	if max <= min {
		return min
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return min + u.rnd.Intn(max-min)
}

// FixedLeverage always returns the band floor. Used in tests.
type FixedLeverage struct{}

func (FixedLeverage) Draw(min, _ int) int { return min }
