package liftover

import (
	"sort"

	"github.com/grailbio/liftover/chain"
)

// MappedInterval is one fragment of a mapping result.  Source coordinates
// are the clipped query sub-interval; target coordinates are half-open on
// the target contig's forward strand.  TgtStrand is the query strand with
// the block's strand flip applied.
type MappedInterval struct {
	SrcContig string
	SrcStart  int
	SrcEnd    int
	TgtContig string
	TgtStart  int
	TgtEnd    int
	TgtStrand Strand

	// flipped records whether the aligned block reversed orientation,
	// independent of the query strand.
	flipped bool
}

// Mapper answers liftover queries against an Index.  It is immutable and
// safe for concurrent use.
type Mapper struct {
	index  *Index
	mode   CompatMode
	policy ChromidPolicy
}

// NewMapper returns a Mapper over index with the given compat mode and
// chromid policy.
func NewMapper(index *Index, mode CompatMode, policy ChromidPolicy) *Mapper {
	return &Mapper{index: index, mode: mode, policy: policy}
}

// Index returns the underlying index.
func (m *Mapper) Index() *Index { return m.index }

// Mode returns the mapper's compat mode.
func (m *Mapper) Mode() CompatMode { return m.mode }

// Map lifts [start, end) on contig to the target assembly.  It returns one
// fragment per overlapping aligned block (coalesced where the improved mode
// allows), or an empty slice plus the failure reason.
func (m *Mapper) Map(contig string, start, end int, strand Strand) ([]MappedInterval, Reason) {
	if !m.index.HasContig(contig) {
		return nil, ReasonUnknownContig
	}
	blocks := m.index.Overlapping(contig, start, end)
	if len(blocks) == 0 {
		return nil, ReasonNoOverlap
	}
	out := make([]MappedInterval, 0, len(blocks))
	for _, b := range blocks {
		cs, ce := start, end
		if b.SrcStart > cs {
			cs = b.SrcStart
		}
		if b.SrcEnd < ce {
			ce = b.SrcEnd
		}
		if cs > ce || (cs == ce && start != end) {
			continue
		}
		lo := cs - b.SrcStart
		hi := ce - b.SrcStart
		mi := MappedInterval{
			SrcContig: m.policy.Apply(contig, contig),
			SrcStart:  cs,
			SrcEnd:    ce,
			TgtContig: m.policy.Apply(b.TgtContig, contig),
		}
		if b.TgtStrand == chain.Plus {
			mi.TgtStart = b.TgtStart + lo
			mi.TgtEnd = b.TgtStart + hi
			mi.TgtStrand = strand
		} else {
			mi.TgtStart = b.TgtEnd - hi
			mi.TgtEnd = b.TgtEnd - lo
			mi.TgtStrand = strand.Flip()
			mi.flipped = true
		}
		out = append(out, mi)
	}
	if len(out) == 0 {
		return nil, ReasonNoOverlap
	}
	if m.mode == CompatStrict {
		// Already in chain order (Overlapping guarantees it).
		return out, ReasonNone
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TgtContig != out[j].TgtContig {
			return out[i].TgtContig < out[j].TgtContig
		}
		return out[i].TgtStart < out[j].TgtStart
	})
	return coalesce(out), ReasonNone
}

// coalesce merges neighboring fragments that are contiguous in both source
// and target coordinates on the same contig and strand.  Merging never
// crosses a target-coordinate gap, even a one-base one.
func coalesce(in []MappedInterval) []MappedInterval {
	out := in[:1]
	for _, mi := range in[1:] {
		prev := &out[len(out)-1]
		if mi.TgtContig == prev.TgtContig && mi.TgtStrand == prev.TgtStrand &&
			mi.flipped == prev.flipped && mi.TgtStart == prev.TgtEnd && srcContiguous(prev, &mi) {
			prev.TgtEnd = mi.TgtEnd
			if mi.SrcStart < prev.SrcStart {
				prev.SrcStart = mi.SrcStart
			}
			if mi.SrcEnd > prev.SrcEnd {
				prev.SrcEnd = mi.SrcEnd
			}
			continue
		}
		out = append(out, mi)
	}
	return out
}

// srcContiguous reports whether next extends prev without a source gap.
// Fragments are ordered by target start; on a strand-flipped mapping the
// source therefore runs in the opposite direction.
func srcContiguous(prev, next *MappedInterval) bool {
	if prev.SrcContig != next.SrcContig {
		return false
	}
	if prev.flipped {
		return next.SrcEnd == prev.SrcStart
	}
	return next.SrcStart == prev.SrcEnd
}

// RegionResult is the outcome of a whole-region mapping.
type RegionResult struct {
	MappedInterval
	// MapRatio is the fraction of query bases covered by aligned blocks.
	MapRatio float64
}

// MapRegion lifts a large region, tolerating interior gaps: the fragments
// must land on a single target contig and strand, and must cover at least
// minRatio of the query.  The returned interval spans from the smallest to
// the largest mapped target coordinate.
func (m *Mapper) MapRegion(contig string, start, end int, strand Strand, minRatio float64) (RegionResult, Reason) {
	frags, reason := m.Map(contig, start, end, strand)
	if reason != ReasonNone {
		return RegionResult{}, reason
	}
	res := RegionResult{MappedInterval: frags[0], MapRatio: 1.0}
	if len(frags) == 1 && frags[0].SrcEnd-frags[0].SrcStart == end-start {
		return res, ReasonNone
	}
	mapped := 0
	for i := range frags {
		f := &frags[i]
		mapped += f.SrcEnd - f.SrcStart
		if f.TgtContig != res.TgtContig || f.TgtStrand != res.TgtStrand {
			return RegionResult{}, ReasonSplitOverBoundaries
		}
		if f.TgtStart < res.TgtStart {
			res.TgtStart = f.TgtStart
		}
		if f.TgtEnd > res.TgtEnd {
			res.TgtEnd = f.TgtEnd
		}
		if f.SrcStart < res.SrcStart {
			res.SrcStart = f.SrcStart
		}
		if f.SrcEnd > res.SrcEnd {
			res.SrcEnd = f.SrcEnd
		}
	}
	if end > start {
		res.MapRatio = float64(mapped) / float64(end-start)
	}
	if res.MapRatio < minRatio {
		return RegionResult{}, ReasonLowRatio
	}
	return res, ReasonNone
}
