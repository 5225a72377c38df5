package liftover

import "github.com/pkg/errors"

// CompatMode selects between bit-identical legacy liftover semantics and
// this implementation's improved semantics at the mapping policy points:
// fragment coalescing, tie-break ordering, and the unmapped reason tokens.
// The mode is fixed at Mapper construction.
type CompatMode int

const (
	// CompatImproved coalesces contiguous fragments and orders ambiguous
	// mappings by (target contig, target start).
	CompatImproved CompatMode = iota
	// CompatStrict reproduces the legacy tool's behavior: no coalescing,
	// chain-order ties, legacy unmapped tokens.
	CompatStrict
)

// ParseCompatMode converts a CLI string to a CompatMode.
func ParseCompatMode(s string) (CompatMode, error) {
	switch s {
	case "improved", "default", "":
		return CompatImproved, nil
	case "strict":
		return CompatStrict, nil
	}
	return 0, errors.Errorf("invalid compat mode %q: expected 'strict' or 'improved'", s)
}

func (m CompatMode) String() string {
	if m == CompatStrict {
		return "strict"
	}
	return "improved"
}

// Reason explains why a query produced no (or a rejected) mapping.
type Reason int

const (
	// ReasonNone means the query mapped.
	ReasonNone Reason = iota
	// ReasonUnknownContig means the source contig is absent from the chain
	// file under every naming variant.
	ReasonUnknownContig
	// ReasonNoOverlap means no aligned block overlaps the query.
	ReasonNoOverlap
	// ReasonSplitOverBoundaries means the fragments land on more than one
	// target contig or strand, so no single spanning interval exists.
	ReasonSplitOverBoundaries
	// ReasonLowRatio means region mapping covered less of the query than
	// the caller's minimum ratio.  Only returned by MapRegion.
	ReasonLowRatio
)

// Token renders the reason the way the unmapped sink expects: the legacy
// token set in strict mode, structured names otherwise.
func (r Reason) Token(mode CompatMode) string {
	if mode == CompatStrict {
		switch r {
		case ReasonUnknownContig:
			return "Fail(Unknown chromosome)"
		case ReasonNoOverlap:
			return "Fail(Unmap)"
		case ReasonSplitOverBoundaries:
			return "Fail(Split in new assembly)"
		case ReasonLowRatio:
			return "Fail(Low ratio)"
		}
		return ""
	}
	switch r {
	case ReasonUnknownContig:
		return "UnknownContig"
	case ReasonNoOverlap:
		return "NoOverlap"
	case ReasonSplitOverBoundaries:
		return "SplitOverBoundaries"
	case ReasonLowRatio:
		return "LowRatio"
	}
	return ""
}
