package perfstats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Counter counts events, and how many samples (eg frames) those events were spread over.
// We use it to surface silent losses, such as decoded boxes that were dropped because
// they exceeded the output capacity.
type Counter struct {
	Samples int64 // Number of times Add was called with a non-zero amount
	Total   int64 // Sum of all amounts
}

func (c *Counter) Reset() {
	c.Samples = 0
	c.Total = 0
}

func (c *Counter) Add(n int) {
	if n == 0 {
		return
	}
	c.Samples++
	c.Total += int64(n)
}

// Accumulate samples of how long something took
type TimeAccumulator struct {
	Samples int64
	Total   time.Duration
	Max     time.Duration
}

func (a *TimeAccumulator) Reset() {
	a.Samples = 0
	a.Total = 0
	a.Max = 0
}

func (a *TimeAccumulator) AddSample(v time.Duration) {
	a.Samples++
	a.Total += v
	a.Max = max(a.Max, v)
}

func (a *TimeAccumulator) Average() time.Duration {
	if a.Samples == 0 {
		return 0
	}
	return time.Duration(a.Total.Nanoseconds() / a.Samples)
}

// StageTimes keeps one TimeAccumulator per named processing stage.
// Not safe for concurrent use. Each pipeline owns its own StageTimes.
type StageTimes struct {
	stages map[string]*TimeAccumulator
}

func NewStageTimes() *StageTimes {
	return &StageTimes{
		stages: map[string]*TimeAccumulator{},
	}
}

// Measure the time since 'start', and add it to the stage.
func (s *StageTimes) Since(stage string, start time.Time) {
	s.Add(stage, time.Since(start))
}

func (s *StageTimes) Add(stage string, d time.Duration) {
	acc := s.stages[stage]
	if acc == nil {
		acc = &TimeAccumulator{}
		s.stages[stage] = acc
	}
	acc.AddSample(d)
}

// Returns a copy of the accumulator for the stage (zero if the stage has never been measured)
func (s *StageTimes) Get(stage string) TimeAccumulator {
	if acc := s.stages[stage]; acc != nil {
		return *acc
	}
	return TimeAccumulator{}
}

func (s *StageTimes) Reset() {
	s.stages = map[string]*TimeAccumulator{}
}

// Summary returns one line per stage, sorted by stage name, eg "decode: avg 1.2ms max 3.4ms (100 samples)"
func (s *StageTimes) Summary() string {
	names := make([]string, 0, len(s.stages))
	for name := range s.stages {
		names = append(names, name)
	}
	sort.Strings(names)
	b := strings.Builder{}
	for _, name := range names {
		acc := s.stages[name]
		fmt.Fprintf(&b, "%v: avg %v max %v (%v samples)\n", name, acc.Average(), acc.Max, acc.Samples)
	}
	return b.String()
}
