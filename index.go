package liftover

import (
	"sort"

	"github.com/biogo/store/interval"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/liftover/chain"
)

// Strand re-exports the chain strand type for callers that never touch the
// chain package directly.
type Strand = chain.Strand

// blockRef is the interval-tree entry for one aligned block: the block's
// source range plus its position in the contig's block slice.
type blockRef struct {
	start, end int
	idx        uintptr
}

func (r blockRef) Overlap(b interval.IntRange) bool {
	return r.end > b.Start && r.start < b.End
}
func (r blockRef) Range() interval.IntRange {
	return interval.IntRange{Start: r.start, End: r.end}
}
func (r blockRef) ID() uintptr { return r.idx }

// contigIndex is the searchable block set of one source contig.
type contigIndex struct {
	tree   interval.IntTree
	blocks []chain.AlignedBlock
}

// Index answers block-overlap queries per source contig.  It is built once
// from a parsed chain file and is immutable afterwards; queries take no
// locks and are safe from any number of goroutines.
type Index struct {
	contigs  map[string]*contigIndex
	srcSizes map[string]int
	tgtSizes map[string]int
}

// NewIndex builds the per-contig interval trees from f.  Contigs are
// indexed under their names exactly as spelled in the chain file; queries
// accept the chr-prefix variants.
func NewIndex(f *chain.File) (*Index, error) {
	ix := &Index{
		contigs:  make(map[string]*contigIndex),
		srcSizes: f.SrcSizes,
		tgtSizes: f.TgtSizes,
	}
	for _, b := range f.Blocks {
		ci := ix.contigs[b.SrcContig]
		if ci == nil {
			ci = &contigIndex{}
			ix.contigs[b.SrcContig] = ci
		}
		ci.blocks = append(ci.blocks, b)
	}
	names := make([]string, 0, len(ix.contigs))
	for name := range ix.contigs {
		names = append(names, name)
	}
	sort.Strings(names)
	// Tree construction dominates index build time on whole-genome chain
	// files; the per-contig trees are independent.
	err := traverse.Each(len(names), func(i int) error {
		ci := ix.contigs[names[i]]
		for blockIdx := range ci.blocks {
			b := &ci.blocks[blockIdx]
			ref := blockRef{start: b.SrcStart, end: b.SrcEnd, idx: uintptr(blockIdx)}
			if err := ci.tree.Insert(ref, true); err != nil {
				return err
			}
		}
		ci.tree.AdjustRanges()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ix, nil
}

// lookup resolves contig to its index, trying the raw name first and then
// the chr-toggled variant so inputs may mix naming styles.
func (ix *Index) lookup(contig string) *contigIndex {
	if ci := ix.contigs[contig]; ci != nil {
		return ci
	}
	return ix.contigs[chrToggled(contig)]
}

// HasContig reports whether contig (under either naming style) appears in
// the chain file.
func (ix *Index) HasContig(contig string) bool {
	return ix.lookup(contig) != nil
}

// Overlapping returns pointers to all blocks on contig whose source range
// overlaps [start, end), in chain-file order.  A zero-width query returns
// the blocks covering start.
func (ix *Index) Overlapping(contig string, start, end int) []*chain.AlignedBlock {
	ci := ix.lookup(contig)
	if ci == nil {
		return nil
	}
	qEnd := end
	if start == end {
		// A zero-width point maps iff a block covers start.
		qEnd = start + 1
	}
	q := blockRef{start: start, end: qEnd}
	hits := ci.tree.Get(q)
	if len(hits) == 0 {
		return nil
	}
	out := make([]*chain.AlignedBlock, 0, len(hits))
	for _, e := range hits {
		out = append(out, &ci.blocks[e.ID()])
	}
	// The tree yields range order, not insertion order; restore chain-file
	// order for deterministic downstream tie-breaks.
	sort.Slice(out, func(i, j int) bool { return out[i].Ord < out[j].Ord })
	return out
}

// BlockCount returns the number of indexed blocks on contig (0 if absent).
func (ix *Index) BlockCount(contig string) int {
	if ci := ix.lookup(contig); ci != nil {
		return len(ci.blocks)
	}
	return 0
}

// TotalBlocks returns the number of indexed blocks across all contigs.
func (ix *Index) TotalBlocks() int {
	n := 0
	for _, ci := range ix.contigs {
		n += len(ci.blocks)
	}
	return n
}

// TgtContigs returns the names of all target contigs mentioned by the
// chain headers, in map order.
func (ix *Index) TgtContigs() []string {
	names := make([]string, 0, len(ix.tgtSizes))
	for name := range ix.tgtSizes {
		names = append(names, name)
	}
	return names
}

// SrcSize returns the source contig's length from the chain headers.
func (ix *Index) SrcSize(contig string) (int, bool) {
	return ix.size(ix.srcSizes, contig)
}

// TgtSize returns the target contig's length from the chain headers.
func (ix *Index) TgtSize(contig string) (int, bool) {
	return ix.size(ix.tgtSizes, contig)
}

func (ix *Index) size(m map[string]int, contig string) (int, bool) {
	if n, ok := m[contig]; ok {
		return n, true
	}
	n, ok := m[chrToggled(contig)]
	return n, ok
}
