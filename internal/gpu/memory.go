package gpu

import (
	"errors"
	"fmt"
	"sync"
)

// ErrMemoryBudgetExceeded is returned when an allocation would exceed
// the texture budget.
var ErrMemoryBudgetExceeded = errors.New("gpu: texture memory budget exceeded")

// MemoryStats contains texture memory usage statistics.
type MemoryStats struct {
	// BudgetBytes is the budget in bytes, zero when unlimited.
	BudgetBytes uint64

	// UsedBytes is the currently allocated memory in bytes.
	UsedBytes uint64

	// PeakBytes is the highest UsedBytes seen.
	PeakBytes uint64

	// TextureCount is the number of live tracked textures.
	TextureCount int

	// Allocations counts successful reservations.
	Allocations uint64

	// Rejections counts reservations refused by the budget.
	Rejections uint64
}

// String returns a human-readable string of memory stats.
func (s MemoryStats) String() string {
	budget := "unlimited"
	if s.BudgetBytes > 0 {
		budget = fmt.Sprintf("%d MB", s.BudgetBytes/(1024*1024))
	}
	return fmt.Sprintf("Memory[%d/%s, peak %d MB, %d textures, %d rejected]",
		s.UsedBytes/(1024*1024), budget, s.PeakBytes/(1024*1024), s.TextureCount, s.Rejections)
}

// memoryTracker accounts for texture allocations against an optional
// budget. Surface textures cannot be evicted, so an allocation over
// budget fails and leaves that one surface without content.
type memoryTracker struct {
	mu     sync.Mutex
	budget uint64
	stats  MemoryStats
}

func newMemoryTracker(budgetMB int) *memoryTracker {
	m := &memoryTracker{}
	if budgetMB > 0 {
		m.budget = uint64(budgetMB) * 1024 * 1024
	}
	m.stats.BudgetBytes = m.budget
	return m
}

func (m *memoryTracker) reserve(n uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.budget > 0 && m.stats.UsedBytes+n > m.budget {
		m.stats.Rejections++
		return fmt.Errorf("%w: need %d bytes, %d of %d in use",
			ErrMemoryBudgetExceeded, n, m.stats.UsedBytes, m.budget)
	}
	m.stats.UsedBytes += n
	m.stats.TextureCount++
	m.stats.Allocations++
	if m.stats.UsedBytes > m.stats.PeakBytes {
		m.stats.PeakBytes = m.stats.UsedBytes
	}
	return nil
}

func (m *memoryTracker) release(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > m.stats.UsedBytes {
		n = m.stats.UsedBytes
	}
	m.stats.UsedBytes -= n
	if m.stats.TextureCount > 0 {
		m.stats.TextureCount--
	}
}

func (m *memoryTracker) snapshot() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
