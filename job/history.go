package job

import (
	"sync"
	"time"
)

// defaultAvgProcessing is the wait-time estimate used before any job has
// completed.
const defaultAvgProcessing = 60 * time.Second

// historyRing keeps the processing durations of the last N completed jobs
// for the estimated-wait heuristic.
type historyRing struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	filled  int
}

func newHistoryRing(size int) *historyRing {
	if size <= 0 {
		size = 50
	}
	return &historyRing{samples: make([]time.Duration, size)}
}

func (r *historyRing) Add(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[r.next] = d
	r.next = (r.next + 1) % len(r.samples)
	if r.filled < len(r.samples) {
		r.filled++
	}
}

// Average returns the mean recorded duration, or the fallback default when
// no job has completed yet.
func (r *historyRing) Average() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.filled == 0 {
		return defaultAvgProcessing
	}
	var total time.Duration
	for i := 0; i < r.filled; i++ {
		total += r.samples[i]
	}
	return total / time.Duration(r.filled)
}
