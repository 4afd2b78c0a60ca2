package progress

import (
	"sync"
	"time"

	"github.com/cruxtone/hymnsift/src/features/queue"
)

// historySize is the rolling window of observed per-item durations kept per
// job type.
const historySize = 100

// Default per-item durations used until a job type has observed history.
var defaultPerItem = map[queue.JobType]float64{
	queue.JobTypeSong:       30.0,
	queue.JobTypePlaylist:   25.0,
	queue.JobTypeBackground: 20.0,
}

const fallbackPerItem = 30.0

// ETACalculator estimates remaining duration from a rolling window of
// observed per-item rates per job type.
type ETACalculator struct {
	mu      sync.Mutex
	history map[queue.JobType][]float64
}

// NewETACalculator creates an empty calculator.
func NewETACalculator() *ETACalculator {
	return &ETACalculator{history: make(map[queue.JobType][]float64)}
}

// averagePerItem returns the history average for the type, or its default.
func (c *ETACalculator) averagePerItem(jobType queue.JobType) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	samples := c.history[jobType]
	if len(samples) == 0 {
		if d, ok := defaultPerItem[jobType]; ok {
			return d
		}
		return fallbackPerItem
	}
	sum := 0.0
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

// Estimate returns the remaining seconds for a job. Before any item
// completes it uses historical (or default) per-item durations; once the job
// has its own observed rate, that live rate wins.
func (c *ETACalculator) Estimate(jobType queue.JobType, total, completed int, elapsed time.Duration) float64 {
	remaining := total - completed
	if remaining <= 0 {
		return 0
	}
	if completed == 0 {
		return float64(remaining) * c.averagePerItem(jobType)
	}
	perItem := elapsed.Seconds() / float64(completed)
	return float64(remaining) * perItem
}

// RecordCompletion feeds a finished job's observed per-item rate into the
// rolling window for its type.
func (c *ETACalculator) RecordCompletion(jobType queue.JobType, elapsed time.Duration, completedItems int) {
	if completedItems <= 0 {
		return
	}
	perItem := elapsed.Seconds() / float64(completedItems)

	c.mu.Lock()
	defer c.mu.Unlock()
	samples := append(c.history[jobType], perItem)
	if len(samples) > historySize {
		samples = samples[len(samples)-historySize:]
	}
	c.history[jobType] = samples
}
