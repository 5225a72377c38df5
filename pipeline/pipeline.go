package pipeline

import (
	"container/heap"
	"context"
	"runtime"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/liftover"
	"github.com/grailbio/liftover/lineio"
	perrors "github.com/pkg/errors"
)

// Opts configures one pipeline run.
type Opts struct {
	// Threads is the worker count: 0 means all hardware threads, 1 selects
	// the single-threaded fast path that bypasses the queues.
	Threads int
	// BatchSize is the number of input lines handed to a worker at once.
	BatchSize int
}

// DefaultOpts is the baseline configuration.
var DefaultOpts = Opts{
	Threads:   0,
	BatchSize: 256,
}

// Stats summarizes one run.
type Stats struct {
	// Total counts data records (pass-through and blank lines excluded).
	Total int64
	// Mapped counts records that produced at least one output fragment.
	Mapped int64
	// Unmapped counts records routed to the companion sink.
	Unmapped int64
	// Split counts mapped records that fragmented over multiple blocks.
	Split int64
}

func (s *Stats) add(o Stats) {
	s.Total += o.Total
	s.Mapped += o.Mapped
	s.Unmapped += o.Unmapped
	s.Split += o.Split
}

// Run maps every record of inputPath through m, writing mapped lines to
// outputPath and unmapped lines (original line, tab, reason token) to
// outputPath+".unmap".  Both outputs preserve input record order for any
// worker count.  Compression of all three paths follows the lineio suffix
// policy.
func Run(ctx context.Context, m *liftover.Mapper, inputPath, outputPath string, opts Opts) (Stats, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOpts.BatchSize
	}
	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	in, err := lineio.Open(ctx, inputPath)
	if err != nil {
		return Stats{}, err
	}
	defer in.Close()

	out, err := lineio.Create(ctx, outputPath)
	if err != nil {
		return Stats{}, err
	}
	unmap, err := lineio.Create(ctx, outputPath+".unmap")
	if err != nil {
		_ = out.Close()
		return Stats{}, err
	}

	var stats Stats
	if threads == 1 {
		stats, err = runSerial(m, in, out, unmap)
	} else {
		stats, err = runParallel(m, in, out, unmap, threads, opts.BatchSize)
	}
	if e := out.Close(); e != nil && err == nil {
		err = e
	}
	if e := unmap.Close(); e != nil && err == nil {
		err = e
	}
	return stats, err
}

// lineResult is the rendered output of one input line.
type lineResult struct {
	mapped   []string
	unmapped string
	isData   bool
	split    bool
}

// processLine classifies and maps one line.  lineNo is 1-based and only
// used for error context.
func processLine(m *liftover.Mapper, line []byte, lineNo int) (lineResult, error) {
	var res lineResult
	switch classify(line) {
	case classBlank:
		return res, nil
	case classPassThrough:
		res.mapped = []string{string(line)}
		return res, nil
	}
	res.isData = true
	rec, err := parseRecord(line)
	if err != nil {
		return res, perrors.Wrapf(err, "line %d", lineNo)
	}
	frags, reason := m.Map(rec.contig, rec.start, rec.end, rec.strand)
	if len(frags) == 0 {
		res.unmapped = string(line) + "\t" + reason.Token(m.Mode())
		return res, nil
	}
	res.split = len(frags) > 1
	res.mapped = make([]string, len(frags))
	for i := range frags {
		res.mapped[i] = rec.formatMapped(&frags[i])
	}
	return res, nil
}

func (s *Stats) observe(res *lineResult) {
	if !res.isData {
		return
	}
	s.Total++
	if res.unmapped != "" {
		s.Unmapped++
		return
	}
	s.Mapped++
	if res.split {
		s.Split++
	}
}

func writeResult(out, unmap *lineio.Writer, res *lineResult) error {
	for _, line := range res.mapped {
		if err := out.WriteString(line); err != nil {
			return err
		}
	}
	if res.unmapped != "" {
		return unmap.WriteString(res.unmapped)
	}
	return nil
}

// runSerial is the threads=1 fast path: no queues, no reorder buffer.
func runSerial(m *liftover.Mapper, in *lineio.Scanner, out, unmap *lineio.Writer) (Stats, error) {
	var stats Stats
	for in.Scan() {
		res, err := processLine(m, in.Bytes(), in.Line())
		if err != nil {
			return stats, err
		}
		stats.observe(&res)
		if err := writeResult(out, unmap, &res); err != nil {
			return stats, err
		}
	}
	return stats, in.Err()
}

// batch is the reader->worker work unit.
type batch struct {
	seq       int
	firstLine int
	lines     [][]byte
}

// batchResult is the worker->writer unit: the rendered lines of one batch
// plus its contribution to the run stats.
type batchResult struct {
	seq     int
	results []lineResult
	stats   Stats
}

type resultHeap []*batchResult

func (h resultHeap) Len() int            { return len(h) }
func (h resultHeap) Less(i, j int) bool  { return h[i].seq < h[j].seq }
func (h resultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x interface{}) { *h = append(*h, x.(*batchResult)) }
func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// runParallel wires reader -> workers -> writer through bounded channels.
// The writer restores input order with a min-heap keyed by batch sequence
// number; the bounded channels cap the reorder skew and provide the only
// backpressure.  The first error poisons the run: the cancel channel stops
// the reader, in-flight batches are drained and discarded, and the
// first-seen error is returned.
func runParallel(m *liftover.Mapper, in *lineio.Scanner, out, unmap *lineio.Writer, threads, batchSize int) (Stats, error) {
	var (
		errOnce    errors.Once
		cancel     = make(chan struct{})
		cancelOnce sync.Once
	)
	abort := func(err error) {
		errOnce.Set(err)
		cancelOnce.Do(func() { close(cancel) })
	}

	batchCh := make(chan batch, threads)
	resCh := make(chan *batchResult, 2*threads)

	var readerWg, workerWg sync.WaitGroup
	readerWg.Add(1)
	go func() {
		defer readerWg.Done()
		defer close(batchCh)
		seq := 0
		cur := batch{seq: seq, firstLine: 1}
		send := func() bool {
			if len(cur.lines) == 0 {
				return true
			}
			select {
			case batchCh <- cur:
				seq++
				cur = batch{seq: seq, firstLine: 0}
				return true
			case <-cancel:
				return false
			}
		}
		for in.Scan() {
			if cur.firstLine == 0 {
				cur.firstLine = in.Line()
			}
			cur.lines = append(cur.lines, append([]byte(nil), in.Bytes()...))
			if len(cur.lines) == batchSize {
				if !send() {
					return
				}
			}
		}
		if !send() {
			return
		}
		if err := in.Err(); err != nil {
			abort(err)
		}
	}()

	for i := 0; i < threads; i++ {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			for b := range batchCh {
				res := &batchResult{seq: b.seq, results: make([]lineResult, 0, len(b.lines))}
				for i, line := range b.lines {
					lr, err := processLine(m, line, b.firstLine+i)
					if err != nil {
						abort(err)
						return
					}
					res.stats.observe(&lr)
					res.results = append(res.results, lr)
				}
				select {
				case resCh <- res:
				case <-cancel:
					return
				}
			}
		}()
	}
	go func() {
		workerWg.Wait()
		close(resCh)
	}()

	// Writer: restore input order by sequence number.
	var (
		stats   Stats
		pending resultHeap
		next    int
		failed  bool
	)
	for res := range resCh {
		if failed {
			continue // drain so workers can exit
		}
		heap.Push(&pending, res)
		for len(pending) > 0 && pending[0].seq == next {
			r := heap.Pop(&pending).(*batchResult)
			for i := range r.results {
				if err := writeResult(out, unmap, &r.results[i]); err != nil {
					abort(err)
					failed = true
					break
				}
			}
			if failed {
				break
			}
			stats.add(r.stats)
			next++
		}
	}
	readerWg.Wait()
	return stats, errOnce.Err()
}
