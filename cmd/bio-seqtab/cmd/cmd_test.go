package cmd

import (
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/seqtab/pipeline"
	"github.com/grailbio/seqtab/reconcile"
	"github.com/grailbio/seqtab/seqtable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTables(t *testing.T) {
	tables, err := parseTables([]string{"S2=work/S2.tsv", "S1=s3://b/S1.tsv"})
	require.NoError(t, err)
	assert.Equal(t, []seqtable.Table{{Sample: "S2", Path: "work/S2.tsv"}, {Sample: "S1", Path: "s3://b/S1.tsv"}}, tables)

	for _, bad := range [][]string{
		{"S1"},
		{"=x.tsv"},
		{"S1="},
		{"S:1=x.tsv"},
		{"S1=a.tsv", "S1=b.tsv"},
	} {
		_, err := parseTables(bad)
		assert.True(t, errors.Is(errors.Invalid, err), "%v", bad)
	}
}

func TestReconciledPaths(t *testing.T) {
	out := reconciledPaths("w/S1", ".fastq")
	assert.Equal(t, "w/S1.singleton.R1.fastq", out[reconcile.TrueSingleton][0])
	assert.Equal(t, "w/S1.asymmetric.R2.fastq", out[reconcile.AsymmetricSingleton][1])
}

func TestRequiredTools(t *testing.T) {
	opts := pipeline.DefaultOpts
	assert.Equal(t, []string{"mmseqs"}, requiredTools(opts))
	opts.Dedup.Engine = "seqkit"
	assert.Equal(t, []string{"mmseqs", "seqkit"}, requiredTools(opts))
}
