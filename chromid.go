package liftover

import (
	"strings"

	"github.com/pkg/errors"
)

// ChromidPolicy controls contig-name normalization on output, bridging the
// "chr1" and "1" naming conventions.
type ChromidPolicy int

const (
	// ChromidAsIs mirrors the caller's naming style onto the output.
	ChromidAsIs ChromidPolicy = iota
	// ChromidShort strips a leading "chr".
	ChromidShort
	// ChromidLong prepends "chr" when missing.
	ChromidLong
)

// ParseChromidPolicy converts a CLI string to a ChromidPolicy.  The
// one-letter forms match the legacy tool's --chromid values.
func ParseChromidPolicy(s string) (ChromidPolicy, error) {
	switch s {
	case "asis", "a", "":
		return ChromidAsIs, nil
	case "short", "s":
		return ChromidShort, nil
	case "long", "l":
		return ChromidLong, nil
	}
	return 0, errors.Errorf("invalid chromid policy %q: expected 'asis', 'short', or 'long'", s)
}

func (p ChromidPolicy) String() string {
	switch p {
	case ChromidShort:
		return "short"
	case ChromidLong:
		return "long"
	}
	return "asis"
}

func hasChrPrefix(contig string) bool {
	return len(contig) > 3 && strings.EqualFold(contig[:3], "chr")
}

// chrToggled returns the opposite naming style of contig: "chr1" <-> "1".
func chrToggled(contig string) string {
	if hasChrPrefix(contig) {
		return contig[3:]
	}
	return "chr" + contig
}

// Apply renders contig under the policy.  queryContig supplies the caller's
// naming style for ChromidAsIs.
func (p ChromidPolicy) Apply(contig, queryContig string) string {
	switch p {
	case ChromidShort:
		if hasChrPrefix(contig) {
			return contig[3:]
		}
		return contig
	case ChromidLong:
		if hasChrPrefix(contig) {
			// Normalize the prefix casing.
			return "chr" + contig[3:]
		}
		return "chr" + contig
	}
	// As-is: follow the query's style, not the chain file's.
	if hasChrPrefix(queryContig) == hasChrPrefix(contig) {
		return contig
	}
	return chrToggled(contig)
}
