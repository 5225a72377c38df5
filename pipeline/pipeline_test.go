package pipeline

import (
	"fmt"
	"io/ioutil"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/liftover"
	"github.com/grailbio/liftover/chain"
	"github.com/grailbio/liftover/lineio"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChains = `chain 100 chr1 10000 + 1000 2000 chr1 10000 + 5000 6000 1
1000

chain 100 chr1 10000 + 2500 2800 chr2 20000 - 11000 11300 2
300

chain 100 chr3 10000 + 100 400 chr3 10000 + 700 1100 3
100 100 200
100
`

func newMapper(t *testing.T, mode liftover.CompatMode) *liftover.Mapper {
	f, err := chain.ParseBytes([]byte(testChains))
	require.NoError(t, err)
	ix, err := liftover.NewIndex(f)
	require.NoError(t, err)
	return liftover.NewMapper(ix, mode, liftover.ChromidAsIs)
}

func runOn(t *testing.T, m *liftover.Mapper, input string, opts Opts) (mapped, unmapped []string, stats Stats) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	inPath := filepath.Join(tempDir, "in.bed")
	outPath := filepath.Join(tempDir, "out.bed")
	require.NoError(t, ioutil.WriteFile(inPath, []byte(input), 0644))
	ctx := vcontext.Background()
	stats, err := Run(ctx, m, inPath, outPath, opts)
	require.NoError(t, err)
	return readLines(t, outPath), readLines(t, outPath+".unmap"), stats
}

func readLines(t *testing.T, path string) []string {
	ctx := vcontext.Background()
	sc, err := lineio.Open(ctx, path)
	require.NoError(t, err)
	defer sc.Close()
	lines := []string{}
	for sc.Scan() {
		lines = append(lines, string(sc.Bytes()))
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestRunBasic(t *testing.T) {
	m := newMapper(t, liftover.CompatImproved)
	input := "# comment\n" +
		"track name=test\n" +
		"chr1\t1100\t1200\n" +
		"chrZ\t0\t10\n" +
		"chr1\t100\t200\n"
	mapped, unmapped, stats := runOn(t, m, input, Opts{Threads: 1})

	assert.Equal(t, []string{
		"# comment",
		"track name=test",
		"chr1\t5100\t5200",
	}, mapped)
	assert.Equal(t, []string{
		"chrZ\t0\t10\tUnknownContig",
		"chr1\t100\t200\tNoOverlap",
	}, unmapped)
	assert.Equal(t, Stats{Total: 3, Mapped: 1, Unmapped: 2}, stats)
}

func TestRunStrictTokens(t *testing.T) {
	m := newMapper(t, liftover.CompatStrict)
	_, unmapped, _ := runOn(t, m, "chrZ\t0\t10\nchr1\t100\t200\n", Opts{Threads: 1})
	assert.Equal(t, []string{
		"chrZ\t0\t10\tFail(Unknown chromosome)",
		"chr1\t100\t200\tFail(Unmap)",
	}, unmapped)
}

func TestRunStrandRewrite(t *testing.T) {
	m := newMapper(t, liftover.CompatImproved)
	// The chr1:2500-2800 block maps to chr2 on '-': the record's strand
	// field flips, the tail stays put.
	input := "chr1\t2600\t2700\tfeat1\t960\t+\textra\n"
	mapped, unmapped, _ := runOn(t, m, input, Opts{Threads: 1})
	require.Empty(t, unmapped)
	require.Len(t, mapped, 1)
	// Block [2500,2800) -> reflected [8700,9000): lo=100, hi=200 ->
	// [9000-200, 9000-100).
	assert.Equal(t, "chr2\t8800\t8900\tfeat1\t960\t-\textra", mapped[0])
}

func TestRunSplitRecord(t *testing.T) {
	m := newMapper(t, liftover.CompatStrict)
	mapped, unmapped, stats := runOn(t, m, "chr3\t150\t350\n", Opts{Threads: 1})
	require.Empty(t, unmapped)
	assert.Equal(t, []string{
		"chr3\t750\t800",
		"chr3\t1000\t1050",
	}, mapped)
	assert.Equal(t, Stats{Total: 1, Mapped: 1, Split: 1}, stats)
}

func TestRunZeroWidth(t *testing.T) {
	m := newMapper(t, liftover.CompatImproved)
	mapped, unmapped, _ := runOn(t, m, "chr1\t1150\t1150\n", Opts{Threads: 1})
	require.Empty(t, unmapped)
	assert.Equal(t, []string{"chr1\t5150\t5150"}, mapped)
}

func TestRunMalformedRecordIsFatal(t *testing.T) {
	m := newMapper(t, liftover.CompatImproved)
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	inPath := filepath.Join(tempDir, "in.bed")
	require.NoError(t, ioutil.WriteFile(inPath, []byte("chr1\tnotanumber\t10\n"), 0644))
	ctx := vcontext.Background()
	_, err := Run(ctx, m, inPath, filepath.Join(tempDir, "out.bed"), Opts{Threads: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")

	// The parallel path surfaces the same error.
	_, err = Run(ctx, m, inPath, filepath.Join(tempDir, "out2.bed"), Opts{Threads: 4})
	require.Error(t, err)
}

// makeFuzzInput generates a deterministic mix of mappable, unmappable, and
// pass-through lines.
func makeFuzzInput(n int) string {
	rng := rand.New(rand.NewSource(1))
	var sb strings.Builder
	sb.WriteString("# header\n")
	for i := 0; i < n; i++ {
		switch rng.Intn(5) {
		case 0:
			fmt.Fprintf(&sb, "chrZ\t%d\t%d\n", i, i+10)
		case 1:
			start := 100 + rng.Intn(250)
			fmt.Fprintf(&sb, "chr3\t%d\t%d\tname%d\t0\t+\n", start, start+rng.Intn(100)+1, i)
		default:
			start := 1000 + rng.Intn(900)
			fmt.Fprintf(&sb, "chr1\t%d\t%d\tname%d\n", start, start+rng.Intn(120)+1, i)
		}
	}
	return sb.String()
}

func TestDeterminismAcrossThreadCounts(t *testing.T) {
	m := newMapper(t, liftover.CompatImproved)
	input := makeFuzzInput(3000)
	mapped1, unmapped1, stats1 := runOn(t, m, input, Opts{Threads: 1})
	mapped8, unmapped8, stats8 := runOn(t, m, input, Opts{Threads: 8, BatchSize: 64})
	assert.Equal(t, mapped1, mapped8)
	assert.Equal(t, unmapped1, unmapped8)
	assert.Equal(t, stats1, stats8)
}

func TestOrderPreservation(t *testing.T) {
	m := newMapper(t, liftover.CompatImproved)
	var sb strings.Builder
	n := 2000
	for i := 0; i < n; i++ {
		// All records map inside the chr1 block; the name column carries
		// the input index.
		fmt.Fprintf(&sb, "chr1\t%d\t%d\trec%06d\n", 1100, 1101, i)
	}
	mapped, _, stats := runOn(t, m, sb.String(), Opts{Threads: 8, BatchSize: 32})
	require.Equal(t, int64(n), stats.Mapped)
	require.Len(t, mapped, n)
	for i, line := range mapped {
		assert.True(t, strings.HasSuffix(line, fmt.Sprintf("rec%06d", i)), "line %d: %s", i, line)
	}
}

func TestPartition(t *testing.T) {
	// Every data record lands in exactly one of {mapped, unmapped}.
	m := newMapper(t, liftover.CompatImproved)
	input := makeFuzzInput(500)
	_, _, stats := runOn(t, m, input, Opts{Threads: 4})
	assert.Equal(t, stats.Total, stats.Mapped+stats.Unmapped)
}

func TestRunCompressedOutput(t *testing.T) {
	m := newMapper(t, liftover.CompatImproved)
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	inPath := filepath.Join(tempDir, "in.bed")
	outPath := filepath.Join(tempDir, "out.bed.gz")
	require.NoError(t, ioutil.WriteFile(inPath, []byte("chr1\t1100\t1200\nchrZ\t0\t1\n"), 0644))
	ctx := vcontext.Background()
	stats, err := Run(ctx, m, inPath, outPath, Opts{Threads: 2})
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 2, Mapped: 1, Unmapped: 1}, stats)
	assert.Equal(t, []string{"chr1\t5100\t5200"}, readLines(t, outPath))
	assert.Equal(t, []string{"chrZ\t0\t1\tUnknownContig"}, readLines(t, outPath+".unmap"))
}

func TestStatsTSV(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(tempDir, "stats.tsv")
	ctx := vcontext.Background()
	s := Stats{Total: 10, Mapped: 7, Unmapped: 3, Split: 2}
	require.NoError(t, s.WriteTSV(ctx, path))
	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Equal(t, "total\tmapped\tunmapped\tsplit", lines[0])
	assert.Equal(t, "10\t7\t3\t2", lines[1])
}
