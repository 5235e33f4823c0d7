package metrics

import (
	"math"
	"time"
)

// durationStats keeps running statistics of durations using Welford's online algorithm.
type durationStats struct {
	mean  float64
	m2    float64
	max   float64
	count uint64
}

// update adds a duration to the statistics.
func (w *durationStats) update(d time.Duration) {
	val := d.Seconds()
	w.count++
	delta := val - w.mean
	w.mean += delta / float64(w.count)
	w.m2 += delta * (val - w.mean)
	w.max = math.Max(w.max, val)
}

// get returns the mean, the sample standard deviation and the largest of the durations.
// The deviation is 0 for fewer than two durations.
func (w *durationStats) get() (mean, stddev, max time.Duration, count uint64) {
	mean = seconds(w.mean)
	max = seconds(w.max)
	if w.count < 2 {
		return mean, 0, max, w.count
	}
	return mean, seconds(math.Sqrt(w.m2 / float64(w.count-1))), max, w.count
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// reset clears the statistics.
func (w *durationStats) reset() {
	*w = durationStats{}
}
