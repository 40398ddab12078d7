package perfstats

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Accumulate samples of how long something took
type TimeAccumulator struct {
	Samples int64
	Total   time.Duration
}

func (a *TimeAccumulator) Reset() {
	a.Samples = 0
	a.Total = 0
}

func (a *TimeAccumulator) AddSample(v time.Duration) {
	a.Samples++
	a.Total += v
}

func (a *TimeAccumulator) Merge(b TimeAccumulator) {
	a.Samples += b.Samples
	a.Total += b.Total
}

func (a *TimeAccumulator) Average() time.Duration {
	if a.Samples == 0 {
		return 0
	}
	return time.Duration(a.Total.Nanoseconds() / a.Samples)
}

// Stages accumulates time spent in named pipeline stages (decode, match, estimate).
// Stages is safe for concurrent use, so that workers can merge into a shared total.
type Stages struct {
	lock  sync.Mutex
	times map[string]*TimeAccumulator
}

func NewStages() *Stages {
	return &Stages{
		times: map[string]*TimeAccumulator{},
	}
}

// Add a sample of duration d to the named stage
func (s *Stages) Add(stage string, d time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	acc := s.times[stage]
	if acc == nil {
		acc = &TimeAccumulator{}
		s.times[stage] = acc
	}
	acc.AddSample(d)
}

// Start a timer for the stage. Call the returned function to stop it.
//
//	defer stages.Start("decode")()
func (s *Stages) Start(stage string) func() {
	start := time.Now()
	return func() {
		s.Add(stage, time.Since(start))
	}
}

// Merge adds all of b's stages into s
func (s *Stages) Merge(b *Stages) {
	snap := b.Snapshot()
	s.lock.Lock()
	defer s.lock.Unlock()
	for name, acc := range snap {
		if s.times[name] == nil {
			s.times[name] = &TimeAccumulator{}
		}
		s.times[name].Merge(acc)
	}
}

// Snapshot returns a copy of the accumulated times
func (s *Stages) Snapshot() map[string]TimeAccumulator {
	s.lock.Lock()
	defer s.lock.Unlock()
	c := map[string]TimeAccumulator{}
	for name, acc := range s.times {
		c[name] = *acc
	}
	return c
}

// String returns "decode: 12 x 3.1ms, match: ..." with stages sorted by name
func (s *Stages) String() string {
	snap := s.Snapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	slices.Sort(names)
	parts := []string{}
	for _, name := range names {
		acc := snap[name]
		parts = append(parts, fmt.Sprintf("%v: %v x %v", name, acc.Samples, acc.Average().Round(10*time.Microsecond)))
	}
	return strings.Join(parts, ", ")
}
