// Package lineio opens plain, gzip, or bzip2 compressed text files and
// yields byte lines, and creates line-oriented sinks with the same
// compression-by-suffix policy.  Compression is selected by filename suffix
// first (".gz", ".bz2"), falling back to magic-byte sniffing so that
// misnamed inputs still open.
package lineio

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Note that bufio.Scanner rejects lines longer than its maximum buffer size;
// the buffer grows on demand only up to the limit set in advance.
const maxLineLen = 16 * 1024 * 1024

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte{'B', 'Z', 'h'}
)

// scanLinesKeepCR is bufio.ScanLines without the CR stripping; a trailing
// '\r' is part of the line so that byte-parity modes can round-trip it.
func scanLinesKeepCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[0:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Scanner yields the lines of a possibly-compressed file.  Lines are
// returned without the trailing newline.
type Scanner struct {
	sc      *bufio.Scanner
	decomp  io.Closer
	in      file.File
	ctx     context.Context
	path    string
	lineIdx int
}

// Open opens path for line scanning, transparently decompressing gzip and
// bzip2 content.
func Open(ctx context.Context, path string) (*Scanner, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReaderSize(in.Reader(ctx), 128*1024)
	var (
		reader io.Reader = br
		decomp io.Closer
	)
	switch {
	case strings.HasSuffix(path, ".gz") || sniff(br, gzipMagic):
		gz, err := gzip.NewReader(br)
		if err != nil {
			_ = in.Close(ctx)
			return nil, errors.Wrapf(err, "%s: gzip stream", path)
		}
		reader = gz
		decomp = gz
	case strings.HasSuffix(path, ".bz2") || sniff(br, bzip2Magic):
		bz, err := bzip2.NewReader(br, nil)
		if err != nil {
			_ = in.Close(ctx)
			return nil, errors.Wrapf(err, "%s: bzip2 stream", path)
		}
		reader = bz
		decomp = bz
	}
	sc := bufio.NewScanner(reader)
	sc.Buffer(make([]byte, 128*1024), maxLineLen)
	sc.Split(scanLinesKeepCR)
	return &Scanner{sc: sc, decomp: decomp, in: in, ctx: ctx, path: path}, nil
}

func sniff(br *bufio.Reader, magic []byte) bool {
	head, err := br.Peek(len(magic))
	if err != nil {
		return false
	}
	return bytes.Equal(head, magic)
}

// Scan advances to the next line.
func (s *Scanner) Scan() bool {
	if s.sc.Scan() {
		s.lineIdx++
		return true
	}
	return false
}

// Bytes returns the current line.  The slice is only valid until the next
// Scan call.
func (s *Scanner) Bytes() []byte { return s.sc.Bytes() }

// Line returns the 1-based line number of the current line.
func (s *Scanner) Line() int { return s.lineIdx }

// Err returns the first error encountered while scanning, wrapped with the
// stream name.
func (s *Scanner) Err() error {
	if err := s.sc.Err(); err != nil {
		return errors.Wrapf(err, "%s: line %d", s.path, s.lineIdx)
	}
	return nil
}

// Close releases the decompressor (if any) and the underlying file.
func (s *Scanner) Close() error {
	var err error
	if s.decomp != nil {
		err = s.decomp.Close()
	}
	if e := s.in.Close(s.ctx); e != nil && err == nil {
		err = e
	}
	return err
}

// Writer is a buffered line sink, compressing by filename suffix.
type Writer struct {
	w      *bufio.Writer
	comp   io.Closer
	out    file.File
	ctx    context.Context
	closed bool
}

// Create creates path for line writing.  ".gz" and ".bz2" suffixes select
// the corresponding compressor.
func Create(ctx context.Context, path string) (*Writer, error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	var (
		w    io.Writer = out.Writer(ctx)
		comp io.Closer
	)
	switch {
	case strings.HasSuffix(path, ".gz"):
		gz := gzip.NewWriter(w)
		w = gz
		comp = gz
	case strings.HasSuffix(path, ".bz2"):
		bz, err := bzip2.NewWriter(w, nil)
		if err != nil {
			_ = out.Close(ctx)
			return nil, errors.Wrapf(err, "%s: bzip2 stream", path)
		}
		w = bz
		comp = bz
	}
	return &Writer{w: bufio.NewWriterSize(w, 128*1024), comp: comp, out: out, ctx: ctx}, nil
}

// WriteLine writes line followed by '\n'.
func (w *Writer) WriteLine(line []byte) error {
	if _, err := w.w.Write(line); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// WriteString writes s followed by '\n'.
func (w *Writer) WriteString(s string) error {
	if _, err := w.w.WriteString(s); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Close flushes buffers, finishes any compression stream, and closes the
// file.  It is safe to call twice.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.w.Flush()
	if w.comp != nil {
		if e := w.comp.Close(); e != nil && err == nil {
			err = e
		}
	}
	if e := w.out.Close(w.ctx); e != nil && err == nil {
		err = e
	}
	return err
}
