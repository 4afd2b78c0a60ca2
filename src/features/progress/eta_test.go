package progress

import (
	"testing"
	"time"

	"github.com/cruxtone/hymnsift/src/features/queue"
)

func TestEstimateUsesDefaultsWhenEmpty(t *testing.T) {
	c := NewETACalculator()

	if got := c.Estimate(queue.JobTypeSong, 1, 0, 0); got != 30.0 {
		t.Fatalf("song default should be 30s/item, got %.1f", got)
	}
	if got := c.Estimate(queue.JobTypePlaylist, 4, 0, 0); got != 100.0 {
		t.Fatalf("playlist default should be 25s/item, got %.1f", got)
	}
	if got := c.Estimate(queue.JobTypeBackground, 10, 0, 0); got != 200.0 {
		t.Fatalf("background default should be 20s/item, got %.1f", got)
	}
}

func TestEstimateUsesLiveRateOnceStarted(t *testing.T) {
	c := NewETACalculator()

	// 2 items in 10s: 5s/item, 8 remaining.
	got := c.Estimate(queue.JobTypePlaylist, 10, 2, 10*time.Second)
	if got != 40.0 {
		t.Fatalf("expected live-rate ETA of 40s, got %.1f", got)
	}
}

func TestEstimateDoneReturnsZero(t *testing.T) {
	c := NewETACalculator()
	if got := c.Estimate(queue.JobTypeSong, 3, 3, time.Minute); got != 0 {
		t.Fatalf("finished job should have zero ETA, got %.1f", got)
	}
}

func TestRecordCompletionFeedsHistory(t *testing.T) {
	c := NewETACalculator()

	// Two completions at 10s/item shift the average well below the default.
	c.RecordCompletion(queue.JobTypeSong, 10*time.Second, 1)
	c.RecordCompletion(queue.JobTypeSong, 30*time.Second, 3)

	if got := c.Estimate(queue.JobTypeSong, 2, 0, 0); got != 20.0 {
		t.Fatalf("expected history average of 10s/item over 2 items, got %.1f", got)
	}
}

func TestHistoryWindowBounded(t *testing.T) {
	c := NewETACalculator()
	for i := 0; i < historySize+50; i++ {
		c.RecordCompletion(queue.JobTypeSong, time.Second, 1)
	}
	if got := len(c.history[queue.JobTypeSong]); got != historySize {
		t.Fatalf("history window should hold %d samples, got %d", historySize, got)
	}
}

func TestRecordCompletionIgnoresZeroItems(t *testing.T) {
	c := NewETACalculator()
	c.RecordCompletion(queue.JobTypeSong, time.Minute, 0)
	if len(c.history[queue.JobTypeSong]) != 0 {
		t.Fatal("zero-item completions must not pollute the history")
	}
}
