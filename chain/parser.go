package chain

import (
	"bytes"
	"context"
	"strconv"

	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/liftover/lineio"
	"github.com/pkg/errors"
)

// lineSource is the subset of lineio.Scanner the parser consumes; tests use
// an in-memory implementation.
type lineSource interface {
	Scan() bool
	Bytes() []byte
	Line() int
	Err() error
}

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.  These simple loops beat the standard library
// string-split functions when a handful of tokens is expected.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

func parseNonneg(field string, tok []byte, lineIdx int) (int, error) {
	v, err := strconv.Atoi(gunsafe.BytesToString(tok))
	if err != nil || v < 0 {
		return 0, errors.Errorf("chain.Parse: line %d: invalid %s value %q: expected a non-negative integer", lineIdx, field, tok)
	}
	return v, nil
}

// walkState tracks the block-emission cursors within one open chain.
type walkState struct {
	hdr    Chain
	srcPos int
	tgtPos int
}

// Parse consumes a lineio.Scanner and returns the parsed chain file.
func Parse(sc *lineio.Scanner) (*File, error) {
	return parseLines(sc)
}

// ParseFile opens path (plain, gzip, or bzip2) and parses it.
func ParseFile(ctx context.Context, path string) (*File, error) {
	sc, err := lineio.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	f, perr := parseLines(sc)
	if cerr := sc.Close(); cerr != nil && perr == nil {
		perr = cerr
	}
	if perr != nil {
		return nil, perr
	}
	return f, nil
}

// ParseBytes parses in-memory chain text.
func ParseBytes(data []byte) (*File, error) {
	return parseLines(&byteScanner{data: data})
}

func parseLines(src lineSource) (*File, error) {
	f := &File{
		SrcSizes: make(map[string]int),
		TgtSizes: make(map[string]int),
	}
	var (
		cur    *walkState
		tokens [16][]byte
	)
	for src.Scan() {
		line := bytes.TrimRight(src.Bytes(), "\r")
		lineIdx := src.Line()
		nToken := getTokens(tokens[:], line)
		if nToken == 0 || tokens[0][0] == '#' {
			// Blank lines and comments separate chains.
			if cur != nil {
				return nil, errors.Errorf("chain.Parse: line %d: chain %q has no terminating block size", lineIdx, cur.hdr.ID)
			}
			continue
		}
		if bytes.Equal(tokens[0], []byte("chain")) {
			if cur != nil {
				return nil, errors.Errorf("chain.Parse: line %d: chain %q has no terminating block size", lineIdx, cur.hdr.ID)
			}
			hdr, err := parseHeader(tokens[:nToken], lineIdx)
			if err != nil {
				return nil, err
			}
			f.SrcSizes[hdr.SrcName] = hdr.SrcSize
			f.TgtSizes[hdr.TgtName] = hdr.TgtSize
			f.Chains = append(f.Chains, hdr)
			cur = &walkState{hdr: hdr, srcPos: hdr.SrcStart, tgtPos: hdr.TgtStart}
			continue
		}
		if cur == nil {
			return nil, errors.Errorf("chain.Parse: line %d: data line outside a chain", lineIdx)
		}
		size, dt, dq, last, err := parseDataLine(tokens[:nToken], lineIdx)
		if err != nil {
			return nil, err
		}
		if size > 0 {
			f.Blocks = append(f.Blocks, cur.emit(size, len(f.Blocks)))
		}
		cur.srcPos += size + dt
		cur.tgtPos += size + dq
		if last {
			if cur.srcPos != cur.hdr.SrcEnd || cur.tgtPos != cur.hdr.TgtEnd {
				return nil, &ConsistencyError{
					ChainID: cur.hdr.ID,
					Detail: "block sizes do not close: walked src end " + strconv.Itoa(cur.srcPos) +
						" (header " + strconv.Itoa(cur.hdr.SrcEnd) + "), tgt end " + strconv.Itoa(cur.tgtPos) +
						" (header " + strconv.Itoa(cur.hdr.TgtEnd) + ")",
				}
			}
			cur = nil
		}
	}
	if err := src.Err(); err != nil {
		return nil, err
	}
	if cur != nil {
		return nil, errors.Errorf("chain.Parse: unexpected EOF: chain %q has no terminating block size", cur.hdr.ID)
	}
	return f, nil
}

// emit produces the aligned block at the current cursors, reflecting the
// target range to the forward frame on '-' chains.
func (w *walkState) emit(size, ord int) AlignedBlock {
	b := AlignedBlock{
		SrcContig: w.hdr.SrcName,
		SrcStart:  w.srcPos,
		SrcEnd:    w.srcPos + size,
		TgtContig: w.hdr.TgtName,
		TgtStrand: w.hdr.TgtStrand,
		TgtSize:   w.hdr.TgtSize,
		Ord:       ord,
	}
	if w.hdr.TgtStrand == Plus {
		b.TgtStart = w.tgtPos
		b.TgtEnd = w.tgtPos + size
	} else {
		b.TgtStart = w.hdr.TgtSize - (w.tgtPos + size)
		b.TgtEnd = w.hdr.TgtSize - w.tgtPos
	}
	return b
}

func parseHeader(tokens [][]byte, lineIdx int) (Chain, error) {
	var hdr Chain
	if len(tokens) < 12 {
		return hdr, errors.Errorf("chain.Parse: line %d: chain header has %d fields, expected at least 12", lineIdx, len(tokens))
	}
	score, err := strconv.ParseUint(gunsafe.BytesToString(tokens[1]), 10, 64)
	if err != nil {
		return hdr, errors.Errorf("chain.Parse: line %d: invalid score value %q", lineIdx, tokens[1])
	}
	hdr.Score = score

	// UCSC t-fields are the liftover source.
	hdr.SrcName = string(tokens[2])
	if hdr.SrcSize, err = parseNonneg("source size", tokens[3], lineIdx); err != nil {
		return hdr, err
	}
	if len(tokens[4]) != 1 || tokens[4][0] != '+' {
		return hdr, errors.Errorf("chain.Parse: line %d: source strand must be '+', got %q", lineIdx, tokens[4])
	}
	if hdr.SrcStart, err = parseNonneg("source start", tokens[5], lineIdx); err != nil {
		return hdr, err
	}
	if hdr.SrcEnd, err = parseNonneg("source end", tokens[6], lineIdx); err != nil {
		return hdr, err
	}
	if hdr.SrcStart >= hdr.SrcEnd {
		return hdr, errors.Errorf("chain.Parse: line %d: source start %d >= source end %d", lineIdx, hdr.SrcStart, hdr.SrcEnd)
	}
	if hdr.SrcEnd > hdr.SrcSize {
		return hdr, errors.Errorf("chain.Parse: line %d: source end %d > source size %d", lineIdx, hdr.SrcEnd, hdr.SrcSize)
	}

	// UCSC q-fields are the liftover target.
	hdr.TgtName = string(tokens[7])
	if hdr.TgtSize, err = parseNonneg("target size", tokens[8], lineIdx); err != nil {
		return hdr, err
	}
	var ok bool
	if len(tokens[9]) != 1 {
		ok = false
	} else {
		hdr.TgtStrand, ok = ParseStrand(tokens[9][0])
	}
	if !ok {
		return hdr, errors.Errorf("chain.Parse: line %d: target strand must be '+' or '-', got %q", lineIdx, tokens[9])
	}
	if hdr.TgtStart, err = parseNonneg("target start", tokens[10], lineIdx); err != nil {
		return hdr, err
	}
	if hdr.TgtEnd, err = parseNonneg("target end", tokens[11], lineIdx); err != nil {
		return hdr, err
	}
	if hdr.TgtStart >= hdr.TgtEnd {
		return hdr, errors.Errorf("chain.Parse: line %d: target start %d >= target end %d", lineIdx, hdr.TgtStart, hdr.TgtEnd)
	}
	if hdr.TgtEnd > hdr.TgtSize {
		return hdr, errors.Errorf("chain.Parse: line %d: target end %d > target size %d", lineIdx, hdr.TgtEnd, hdr.TgtSize)
	}
	// The trailing id is optional in files produced by some tools.
	if len(tokens) > 12 {
		hdr.ID = string(tokens[12])
	}
	return hdr, nil
}

// parseDataLine parses "size dt dq" or the terminal bare "size".
func parseDataLine(tokens [][]byte, lineIdx int) (size, dt, dq int, last bool, err error) {
	switch len(tokens) {
	case 1:
		size, err = parseNonneg("block size", tokens[0], lineIdx)
		return size, 0, 0, true, err
	case 3:
		if size, err = parseNonneg("block size", tokens[0], lineIdx); err != nil {
			return
		}
		if dt, err = parseNonneg("source gap (dt)", tokens[1], lineIdx); err != nil {
			return
		}
		dq, err = parseNonneg("target gap (dq)", tokens[2], lineIdx)
		return
	default:
		return 0, 0, 0, false, errors.Errorf("chain.Parse: line %d: data line has %d fields, expected 1 or 3", lineIdx, len(tokens))
	}
}

// byteScanner adapts an in-memory byte slice to the parser's line source.
type byteScanner struct {
	data    []byte
	cur     []byte
	lineIdx int
}

func (s *byteScanner) Scan() bool {
	if len(s.data) == 0 {
		return false
	}
	if i := bytes.IndexByte(s.data, '\n'); i >= 0 {
		s.cur = s.data[:i]
		s.data = s.data[i+1:]
	} else {
		s.cur = s.data
		s.data = nil
	}
	s.lineIdx++
	return true
}

func (s *byteScanner) Bytes() []byte { return s.cur }
func (s *byteScanner) Line() int     { return s.lineIdx }
func (s *byteScanner) Err() error    { return nil }
