package operations

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker tracks item-level progress within one step.
type ProgressTracker struct {
	mu        sync.RWMutex
	step      string
	current   int
	total     int
	message   string
	startTime time.Time
}

// NewProgressTracker starts tracking total items for a step.
func NewProgressTracker(step string, total int) *ProgressTracker {
	return &ProgressTracker{
		step:      step,
		total:     total,
		startTime: time.Now(),
	}
}

// Update sets the current item count and message.
func (p *ProgressTracker) Update(current int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = current
	p.message = message
}

// Increment advances the item count by one.
func (p *ProgressTracker) Increment(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current++
	p.message = message
}

// Progress returns the current counts, the completion percentage and the
// latest message.
func (p *ProgressTracker) Progress() (current, total int, percentage float64, message string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	percentage = 0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100
	}
	return p.current, p.total, percentage, p.message
}

// ETA estimates the remaining time from the rate so far.
func (p *ProgressTracker) ETA() (time.Duration, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == 0 || p.total == 0 || p.current >= p.total {
		return 0, false
	}
	elapsed := time.Since(p.startTime)
	perItem := elapsed / time.Duration(p.current)
	return perItem * time.Duration(p.total-p.current), true
}

// IsComplete reports whether every item finished.
func (p *ProgressTracker) IsComplete() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.total > 0 && p.current >= p.total
}

// Elapsed returns the time since tracking started.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Since(p.startTime)
}

// String renders a compact "current/total (pct%)" summary.
func (p *ProgressTracker) String() string {
	current, total, pct, _ := p.Progress()
	return fmt.Sprintf("%d/%d (%.0f%%)", current, total, pct)
}
