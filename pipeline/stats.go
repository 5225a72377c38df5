package pipeline

import (
	"context"
	"strconv"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
)

// WriteTSV writes the run summary as a two-line TSV report.
func (s Stats) WriteTSV(ctx context.Context, path string) (err error) {
	var out file.File
	if out, err = file.Create(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, out, &err)

	w := tsv.NewWriter(out.Writer(ctx))
	w.WriteString("total\tmapped\tunmapped\tsplit")
	if err = w.EndLine(); err != nil {
		return
	}
	for _, v := range []int64{s.Total, s.Mapped, s.Unmapped, s.Split} {
		w.WriteString(strconv.FormatInt(v, 10))
	}
	if err = w.EndLine(); err != nil {
		return
	}
	return w.Flush()
}
