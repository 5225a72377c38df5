// Package xam repositions SAM/BAM records through a liftover Mapper.  The
// alignment codec itself (reading and writing BAM/SAM/CRAM) is the caller's
// business; this package only rewrites the coordinate-bearing fields of
// records the codec hands it.
package xam

import (
	"sort"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/liftover"
	"github.com/grailbio/liftover/chain"
	"github.com/pkg/errors"
)

// RefMap resolves target contig names to references of the output header.
type RefMap map[string]*sam.Reference

func chrToggled(contig string) string {
	if len(contig) > 3 && (contig[:3] == "chr" || contig[:3] == "Chr" || contig[:3] == "CHR") {
		return contig[3:]
	}
	return "chr" + contig
}

// BuildTargetHeader creates a header whose references are the target
// contigs of the chain file, sized from the chain headers, plus a RefMap
// for record rewriting.
func BuildTargetHeader(ix *liftover.Index) (*sam.Header, RefMap, error) {
	names := ix.TgtContigs()
	sort.Strings(names)
	refs := make([]*sam.Reference, 0, len(names))
	refMap := make(RefMap, len(names))
	for _, name := range names {
		size, ok := ix.TgtSize(name)
		if !ok {
			return nil, nil, errors.Errorf("no size recorded for target contig %s", name)
		}
		ref, err := sam.NewReference(name, "", "", size, nil, nil)
		if err != nil {
			return nil, nil, err
		}
		refs = append(refs, ref)
		refMap[name] = ref
		// Accept the other naming style too, so a mapper running under a
		// non-default chromid policy still resolves.
		refMap[chrToggled(name)] = ref
	}
	hdr, err := sam.NewHeader(nil, refs)
	if err != nil {
		return nil, nil, err
	}
	return hdr, refMap, nil
}

// LiftRecord rewrites r's reference, position, and strand flag in place.
// A non-ReasonNone return means the record could not be lifted and should
// be routed to the caller's unmapped output; r is left unmodified in that
// case.  Records spanning multiple blocks are repositioned to the fragment
// with the smallest source start (the one covering the alignment start when
// that start lies inside a block), matching the legacy per-read behavior.
func LiftRecord(m *liftover.Mapper, refs RefMap, r *sam.Record) (liftover.Reason, error) {
	if r.Ref == nil {
		return liftover.ReasonUnknownContig, nil
	}
	frags, reason := m.Map(r.Ref.Name(), r.Pos, r.End(), chain.Plus)
	if reason != liftover.ReasonNone {
		return reason, nil
	}
	frag := &frags[0]
	for i := 1; i < len(frags); i++ {
		if frags[i].SrcStart < frag.SrcStart {
			frag = &frags[i]
		}
	}
	ref, ok := refs[frag.TgtContig]
	if !ok {
		return liftover.ReasonNone, errors.Errorf("target contig %s missing from output header", frag.TgtContig)
	}
	r.Ref = ref
	r.Pos = frag.TgtStart
	if frag.TgtStrand == chain.Minus {
		r.Flags ^= sam.Reverse
	}
	return liftover.ReasonNone, nil
}
