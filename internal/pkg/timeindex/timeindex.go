package timeindex

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmpty is returned when a TimeIndex would hold no timestamps.
var ErrEmpty = errors.New("timeindex: empty time index")

// ErrInvalidFrequency is returned for a non-positive step frequency.
var ErrInvalidFrequency = errors.New("timeindex: frequency must be positive")

// NotIncreasingError reports the first timestamp that does not follow its
// predecessor.
type NotIncreasingError struct {
	Position int
	Prev     time.Time
	Next     time.Time
}

func (e NotIncreasingError) Error() string {
	return fmt.Sprintf("timeindex: timestamp %d (%v) is not after %v", e.Position, e.Next, e.Prev)
}

// TimeIndex is an immutable, strictly increasing sequence of timestamps.
// Its length defines the temporal dimension of every flow variable.
type TimeIndex struct {
	times []time.Time
	freq  time.Duration
}

// New returns a TimeIndex of periods timestamps starting at start and spaced
// by freq.
func New(start time.Time, periods int, freq time.Duration) (TimeIndex, error) {
	if periods < 1 {
		return TimeIndex{}, ErrEmpty
	}
	if freq <= 0 {
		return TimeIndex{}, ErrInvalidFrequency
	}

	times := make([]time.Time, periods)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * freq)
	}
	return TimeIndex{times: times, freq: freq}, nil
}

// FromTimes returns a TimeIndex over a copy of times.
func FromTimes(times []time.Time) (TimeIndex, error) {
	if len(times) == 0 {
		return TimeIndex{}, ErrEmpty
	}
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			return TimeIndex{}, NotIncreasingError{Position: i, Prev: times[i-1], Next: times[i]}
		}
	}

	cp := make([]time.Time, len(times))
	copy(cp, times)

	freq := time.Hour
	if len(cp) > 1 {
		freq = cp[1].Sub(cp[0])
	}
	return TimeIndex{times: cp, freq: freq}, nil
}

// Len returns the number of time steps.
func (ti TimeIndex) Len() int {
	return len(ti.times)
}

// Timesteps returns the index domain 0..N-1.
func (ti TimeIndex) Timesteps() []int {
	steps := make([]int, len(ti.times))
	for i := range steps {
		steps[i] = i
	}
	return steps
}

// At returns the timestamp of step t.
func (ti TimeIndex) At(t int) time.Time {
	return ti.times[t]
}

// Times returns a copy of the timestamps.
func (ti TimeIndex) Times() []time.Time {
	cp := make([]time.Time, len(ti.times))
	copy(cp, ti.times)
	return cp
}

// Increment returns the length of step t in hours. The last step reuses the
// gap before it.
func (ti TimeIndex) Increment(t int) float64 {
	n := len(ti.times)
	switch {
	case n == 1:
		return ti.freq.Hours()
	case t < n-1:
		return ti.times[t+1].Sub(ti.times[t]).Hours()
	default:
		return ti.times[n-1].Sub(ti.times[n-2]).Hours()
	}
}
