package pipeline_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/seqtab/cluster"
	"github.com/grailbio/seqtab/dedup"
	"github.com/grailbio/seqtab/engine"
	"github.com/grailbio/seqtab/pipeline"
	"github.com/grailbio/seqtab/reconcile"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const config = `
samples:
  - name: S1
    r1: in/S1_R1.fastq.gz
    r2: in/S1_R2.fastq.gz
    singletons: in/S1_single.fastq.gz
    asymmetric: in/S1_asym.bam
  - name: S2
    r1: in/S2_R1.fastq.gz
    r2: in/S2_R2.fastq.gz
    singletons: in/S2_single.fastq.gz
    asymmetric: in/S2_asym.fastq.gz
work_dir: /scratch/run1
out_dir: s3://bucket/run1/
parallelism: 8
compress: true
dedup:
  engine: seqkit
  threads: 4
cluster:
  min_seq_id: 0.99
`

func TestLoadOpts(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := write(t, filepath.Join(dir, "run.yaml"), config)

	opts, err := pipeline.LoadOpts(ctx, path)
	require.NoError(t, err)
	require.NoError(t, opts.Validate())
	assert.Len(t, opts.Samples, 2)
	assert.Equal(t, "in/S1_asym.bam", opts.Samples[0].Asymmetric)
	assert.Equal(t, 8, opts.Parallelism)
	assert.Equal(t, "seqkit", opts.Dedup.Engine)
	assert.Equal(t, "seqkit", opts.Dedup.Path)
	assert.Equal(t, 4, opts.Dedup.Threads)
	assert.Equal(t, 0.99, opts.Cluster.MinSeqID)
	assert.Equal(t, pipeline.DefaultOpts.Cluster.Coverage, opts.Cluster.Coverage)
	assert.True(t, opts.Index)
	// Defaults are not modified by loading.
	assert.Equal(t, "builtin", pipeline.DefaultOpts.Dedup.Engine)

	eng := opts.Engines(engine.ExecRunner{})
	assert.IsType(t, dedup.Seqkit{}, eng.Dedup)
	assert.Equal(t, 0.99, eng.Cluster.(cluster.MMseqs).Opts.MinSeqID)

	cfg, err := pipeline.NewConfig(opts)
	require.NoError(t, err)
	samples := cfg.Samples()
	require.Len(t, samples, 2)
	s1 := samples[0]
	assert.Equal(t, "S1", s1.Name)
	assert.Equal(t, "in/S1_R1.fastq.gz", s1.Paired.R1())
	assert.Equal(t, "in/S1_asym.bam", s1.Singletons[reconcile.AsymmetricSingleton])
	assert.Equal(t, "/scratch/run1/S1/S1.singleton.R2.fastq.gz", s1.Work.Reconciled[reconcile.TrueSingleton][1])
	assert.Equal(t, "/scratch/run1/S1/S1.unified.R1.fastq.gz", s1.Work.Combined.Unified.R1())
	assert.Equal(t, "/scratch/run1/S1/S1.dedup.fastq.gz", s1.Work.Dedup)
	assert.Equal(t, "/scratch/run1/S1/S1.clu", s1.Work.ClusterPrefix)
	assert.Equal(t, "/scratch/run1/S1/S1.seqtab.tsv", s1.Work.Table)
	assert.Equal(t, pipeline.Outputs{
		Catalog:     "s3://bucket/run1/catalog.fasta",
		Summary:     "s3://bucket/run1/summary.tsv",
		Index:       "s3://bucket/run1/catalog.fasta.fai",
		Composition: "s3://bucket/run1/composition.tsv",
		Complexity:  "s3://bucket/run1/complexity.tsv",
		Properties:  "s3://bucket/run1/properties.tsv",
	}, cfg.Outputs())
	assert.Equal(t, 8, cfg.Parallelism())

	// Callers cannot change the configuration through returned values.
	samples[0].Name = "X"
	assert.Equal(t, "S1", cfg.Samples()[0].Name)
}

func TestLoadOptsUnknownKey(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := write(t, filepath.Join(dir, "run.yaml"), config+"threshold: 0.5\n")
	_, err := pipeline.LoadOpts(ctx, path)
	assert.True(t, errors.Is(errors.Invalid, err), "%v", err)

	_, err = pipeline.LoadOpts(ctx, filepath.Join(dir, "missing.yaml"))
	assert.True(t, errors.Is(errors.NotExist, err), "%v", err)
}

func TestValidate(t *testing.T) {
	sample := pipeline.SampleOpts{Name: "S1", R1: "a", R2: "b", Singletons: "c", Asymmetric: "d"}
	valid := pipeline.DefaultOpts
	valid.Samples = []pipeline.SampleOpts{sample}
	valid.WorkDir = "work"
	valid.OutDir = "out"
	require.NoError(t, valid.Validate())

	for _, test := range []struct {
		name   string
		modify func(o *pipeline.Opts)
		msg    string
	}{
		{"no samples", func(o *pipeline.Opts) { o.Samples = nil }, "no samples"},
		{"duplicate sample", func(o *pipeline.Opts) { o.Samples = append(o.Samples, sample) }, "duplicate name"},
		{"colon in name", func(o *pipeline.Opts) { o.Samples = []pipeline.SampleOpts{{Name: "S:1", R1: "a", R2: "b", Singletons: "c", Asymmetric: "d"}} }, "contains ':'"},
		{"missing input", func(o *pipeline.Opts) { o.Samples = []pipeline.SampleOpts{{Name: "S1", R1: "a", R2: "b", Singletons: "c"}} }, "asymmetric not set"},
		{"remote work dir", func(o *pipeline.Opts) { o.WorkDir = "s3://b/w" }, "must be local"},
		{"no out dir", func(o *pipeline.Opts) { o.OutDir = "" }, "out_dir not set"},
		{"parallelism", func(o *pipeline.Opts) { o.Parallelism = 0 }, "parallelism 0"},
		{"dedup engine", func(o *pipeline.Opts) { o.Dedup.Engine = "cdhit" }, "dedup.engine"},
		{"cluster engine", func(o *pipeline.Opts) { o.Cluster.Engine = "vsearch" }, "cluster.engine"},
		{"identity", func(o *pipeline.Opts) { o.Cluster.MinSeqID = 0 }, "min_seq_id"},
		{"coverage", func(o *pipeline.Opts) { o.Cluster.Coverage = 1.5 }, "coverage"},
		{"cov mode", func(o *pipeline.Opts) { o.Cluster.CovMode = 6 }, "cov_mode"},
	} {
		t.Run(test.name, func(t *testing.T) {
			o := valid
			o.Samples = append([]pipeline.SampleOpts(nil), valid.Samples...)
			test.modify(&o)
			err := o.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(errors.Invalid, err))
			assert.Contains(t, err.Error(), test.msg)
			_, err = pipeline.NewConfig(o)
			assert.Error(t, err)
		})
	}
}
