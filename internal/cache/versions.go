package cache

import (
	"sync"
	"sync/atomic"
)

// DefaultVersion is what Current reports for a farmer that was never bumped.
const DefaultVersion int64 = 1

// Versions holds one change counter per farmer. Counters only move forward and
// concurrent bumps never lose an increment.
type Versions struct {
	counters sync.Map // map[int64]*atomic.Int64
}

func NewVersions() *Versions {
	return &Versions{}
}

func (v *Versions) counter(farmerID int64) *atomic.Int64 {
	if c, ok := v.counters.Load(farmerID); ok {
		return c.(*atomic.Int64)
	}
	fresh := new(atomic.Int64)
	fresh.Store(DefaultVersion)
	c, _ := v.counters.LoadOrStore(farmerID, fresh)
	return c.(*atomic.Int64)
}

// Bump increments the farmer's counter and returns the new value. The first
// bump for a farmer yields 2.
func (v *Versions) Bump(farmerID int64) int64 {
	return v.counter(farmerID).Add(1)
}

func (v *Versions) Current(farmerID int64) int64 {
	c, ok := v.counters.Load(farmerID)
	if !ok {
		return DefaultVersion
	}
	return c.(*atomic.Int64).Load()
}
