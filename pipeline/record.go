// Package pipeline streams BED-shaped records through a liftover Mapper
// with bounded memory and configurable worker parallelism, writing a mapped
// file and an unmapped companion file that both preserve input order.
package pipeline

import (
	"bytes"
	"strconv"
	"strings"

	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/liftover"
	"github.com/grailbio/liftover/chain"
	"github.com/pkg/errors"
)

// lineClass distinguishes data records from the line shapes that bypass the
// mapper.
type lineClass int

const (
	classData lineClass = iota
	// classPassThrough lines (comments, track/browser headers) go to the
	// mapped sink unchanged, in input order.
	classPassThrough
	// classBlank lines are dropped.
	classBlank
)

func classify(line []byte) lineClass {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return classBlank
	}
	if trimmed[0] == '#' ||
		bytes.HasPrefix(trimmed, []byte("track")) ||
		bytes.HasPrefix(trimmed, []byte("browser")) {
		return classPassThrough
	}
	return classData
}

// record is the BED core shape: contig, half-open coordinates, an optional
// strand in field 6, and the remaining fields carried through verbatim.
type record struct {
	contig string
	start  int
	end    int
	strand chain.Strand
	// hasStrand is set when field 6 exists and holds '+' or '-'; only then
	// is the field rewritten on output.
	hasStrand bool
	fields    []string
}

// parseRecord splits a data line on whitespace and parses the coordinate
// fields.  Malformed records are format errors, which are fatal to the run.
func parseRecord(line []byte) (record, error) {
	var rec record
	rec.fields = strings.Fields(gunsafe.BytesToString(line))
	if len(rec.fields) < 3 {
		return rec, errors.Errorf("record has %d fields, expected at least 3", len(rec.fields))
	}
	// The fields slice aliases line's bytes; copy the strings we keep.
	for i, f := range rec.fields {
		rec.fields[i] = string(append([]byte(nil), f...))
	}
	rec.contig = rec.fields[0]
	var err error
	if rec.start, err = strconv.Atoi(rec.fields[1]); err != nil || rec.start < 0 {
		return rec, errors.Errorf("invalid start coordinate %q", rec.fields[1])
	}
	if rec.end, err = strconv.Atoi(rec.fields[2]); err != nil || rec.end < rec.start {
		return rec, errors.Errorf("invalid end coordinate %q", rec.fields[2])
	}
	rec.strand = chain.Plus
	if len(rec.fields) >= 6 {
		if s, ok := parseStrandField(rec.fields[5]); ok {
			rec.strand = s
			rec.hasStrand = true
		}
	}
	return rec, nil
}

func parseStrandField(s string) (chain.Strand, bool) {
	if len(s) != 1 {
		return 0, false
	}
	return chain.ParseStrand(s[0])
}

// formatMapped renders one output line for a mapped fragment, substituting
// the coordinate fields (and the strand field when present) and keeping the
// tail columns unchanged.
func (r *record) formatMapped(mi *liftover.MappedInterval) string {
	var sb strings.Builder
	sb.Grow(64 + 8*len(r.fields))
	sb.WriteString(mi.TgtContig)
	sb.WriteByte('\t')
	sb.WriteString(strconv.Itoa(mi.TgtStart))
	sb.WriteByte('\t')
	sb.WriteString(strconv.Itoa(mi.TgtEnd))
	for i := 3; i < len(r.fields); i++ {
		sb.WriteByte('\t')
		if i == 5 && r.hasStrand {
			sb.WriteString(mi.TgtStrand.String())
		} else {
			sb.WriteString(r.fields[i])
		}
	}
	return sb.String()
}
