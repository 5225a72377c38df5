package pipeline

import (
	"testing"

	"github.com/grailbio/liftover/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		want lineClass
	}{
		{"", classBlank},
		{"   ", classBlank},
		{"# a comment", classPassThrough},
		{"track name=x", classPassThrough},
		{"browser position chr1", classPassThrough},
		{"chr1\t10\t20", classData},
		{"trackless\t10\t20", classPassThrough}, // prefix rule, as in the legacy tool
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classify([]byte(tt.line)), "%q", tt.line)
	}
}

func TestParseRecord(t *testing.T) {
	rec, err := parseRecord([]byte("chr1\t100\t200"))
	require.NoError(t, err)
	assert.Equal(t, "chr1", rec.contig)
	assert.Equal(t, 100, rec.start)
	assert.Equal(t, 200, rec.end)
	assert.Equal(t, chain.Plus, rec.strand)
	assert.False(t, rec.hasStrand)

	rec, err = parseRecord([]byte("chr1\t100\t200\tname\t0\t-\textra\tcols"))
	require.NoError(t, err)
	assert.Equal(t, chain.Minus, rec.strand)
	assert.True(t, rec.hasStrand)
	assert.Len(t, rec.fields, 8)

	// Space-delimited input is accepted too.
	rec, err = parseRecord([]byte("chr1 100 200 name"))
	require.NoError(t, err)
	assert.Equal(t, "name", rec.fields[3])

	// A '.' strand column is carried through but not treated as a strand.
	rec, err = parseRecord([]byte("chr1\t100\t200\tname\t0\t."))
	require.NoError(t, err)
	assert.False(t, rec.hasStrand)
	assert.Equal(t, chain.Plus, rec.strand)
}

func TestParseRecordErrors(t *testing.T) {
	for _, line := range []string{
		"chr1\t100",
		"chr1\tx\t200",
		"chr1\t100\ty",
		"chr1\t-5\t10",
		"chr1\t200\t100",
	} {
		_, err := parseRecord([]byte(line))
		assert.Error(t, err, "%q", line)
	}
}

func TestParseRecordDoesNotAliasInput(t *testing.T) {
	line := []byte("chr1\t100\t200\tname")
	rec, err := parseRecord(line)
	require.NoError(t, err)
	for i := range line {
		line[i] = 'x'
	}
	assert.Equal(t, "chr1", rec.contig)
	assert.Equal(t, "name", rec.fields[3])
}
