// Package history holds the normalized battery history currently served.
package history

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/cptspacemanspiff/battery-history/internal/batterystats"
)

// Snapshot is a fully normalized history set. It is immutable once built.
type Snapshot struct {
	Samples   []batterystats.NormalizedSample
	Wakelocks []batterystats.WakelockRecord
	Offset    int64
	AlignedAt time.Time
}

// Build orders samples by raw time, aligns them so the newest one lands on
// alignAt and aggregates wakelocks per holder, longest first. The input
// slice is not modified.
func Build(samples []batterystats.HistorySample, wakelocks []batterystats.WakelockRecord, alignAt time.Time) *Snapshot {
	samples = sortedByTime(samples)
	offset := batterystats.AlignmentOffset(samples, alignAt)
	agg := batterystats.AggregateWakelocks(wakelocks)
	batterystats.SortWakelocksByDuration(agg)
	return &Snapshot{
		Samples:   batterystats.NormalizeAll(samples, offset),
		Wakelocks: agg,
		Offset:    offset,
		AlignedAt: alignAt,
	}
}

// sortedByTime returns samples in chronological order. Entries sharing a
// time keep their dump order.
func sortedByTime(samples []batterystats.HistorySample) []batterystats.HistorySample {
	if sort.SliceIsSorted(samples, func(i, j int) bool { return samples[i].Time < samples[j].Time }) {
		return samples
	}
	out := make([]batterystats.HistorySample, len(samples))
	copy(out, samples)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// FlagSummary counts the samples with a flag set.
type FlagSummary struct {
	Flag    string `json:"flag"`
	Samples int    `json:"samples"`
}

// Store publishes snapshots to concurrent readers. A reader always sees
// one complete snapshot, never a partially normalized set.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore returns an empty store.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&Snapshot{})
	return s
}

// Publish replaces the served snapshot.
func (s *Store) Publish(snap *Snapshot) {
	if snap == nil {
		snap = &Snapshot{}
	}
	s.current.Store(snap)
}

// Snapshot returns the snapshot currently served.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// LatestSample returns the most recent sample, or nil if there is none.
func (s *Store) LatestSample() *batterystats.NormalizedSample {
	return s.current.Load().Latest()
}

// SamplesInRange returns samples whose normalized time lies in [from, to],
// both in epoch milliseconds.
func (s *Store) SamplesInRange(from, to int64) []batterystats.NormalizedSample {
	return s.current.Load().SamplesInRange(from, to)
}

// Latest returns the most recent sample, or nil if there is none.
func (snap *Snapshot) Latest() *batterystats.NormalizedSample {
	if len(snap.Samples) == 0 {
		return nil
	}
	latest := snap.Samples[len(snap.Samples)-1]
	return &latest
}

// SamplesInRange returns a copy of the samples with normalized time in
// [from, to]. Samples are ordered, so both bounds are binary searched.
func (snap *Snapshot) SamplesInRange(from, to int64) []batterystats.NormalizedSample {
	samples := snap.Samples
	lo := sort.Search(len(samples), func(i int) bool { return samples[i].NormalizedTime() >= from })
	hi := sort.Search(len(samples), func(i int) bool { return samples[i].NormalizedTime() > to })
	if lo >= hi {
		return nil
	}
	out := make([]batterystats.NormalizedSample, hi-lo)
	copy(out, samples[lo:hi])
	return out
}

// Wakelocks returns the aggregated wakelock records.
func (s *Store) Wakelocks() []batterystats.WakelockRecord {
	wl := s.current.Load().Wakelocks
	out := make([]batterystats.WakelockRecord, len(wl))
	copy(out, wl)
	return out
}

// Summary counts, for every flag, how many samples had it set.
func (s *Store) Summary() []FlagSummary {
	samples := s.current.Load().Samples
	flags := batterystats.AllFlags()
	out := make([]FlagSummary, len(flags))
	for i, f := range flags {
		out[i].Flag = f.String()
		for _, smp := range samples {
			if smp.States.Has(f) {
				out[i].Samples++
			}
		}
	}
	return out
}
