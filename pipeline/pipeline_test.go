package pipeline_test

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/seqtab/cluster"
	"github.com/grailbio/seqtab/encoding/fastq"
	"github.com/grailbio/seqtab/encoding/seqio"
	"github.com/grailbio/seqtab/engine"
	"github.com/grailbio/seqtab/pipeline"
	"github.com/grailbio/seqtab/seqtable"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func write(t *testing.T, path, data string) string {
	assert.NoError(t, ioutil.WriteFile(path, []byte(data), 0600))
	return path
}

func read(t *testing.T, path string) string {
	data, err := ioutil.ReadFile(path)
	assert.NoError(t, err)
	return string(data)
}

func fq(reads ...string) string {
	var b strings.Builder
	for i := 0; i < len(reads); i += 2 {
		b.WriteString("@" + reads[i] + "\n" + reads[i+1] + "\n+\n" + strings.Repeat("I", len(reads[i+1])) + "\n")
	}
	return b.String()
}

// fakeMMseqs stands in for "mmseqs easy-cluster". Reads sharing their
// first two bases form one cluster, represented by its first read.
func fakeMMseqs(t *testing.T, calls *int) engine.Runner {
	return engine.RunnerFunc(func(ctx context.Context, c engine.Command) engine.Result {
		*calls++
		in, prefix := c.Args[1], c.Args[2]
		f, err := seqio.Open(ctx, in)
		assert.NoError(t, err)
		defer f.Close(ctx)
		var (
			sc      = fastq.NewScanner(f, fastq.ID|fastq.Seq)
			r       fastq.Read
			reps    = map[string]string{}
			fasta   strings.Builder
			members strings.Builder
		)
		for sc.Scan(&r) {
			name := strings.Fields(strings.TrimPrefix(r.ID, "@"))[0]
			key := r.Seq[:2]
			rep, ok := reps[key]
			if !ok {
				rep = name
				reps[key] = rep
				fasta.WriteString(">" + name + "\n" + r.Seq + "\n")
			}
			members.WriteString(rep + "\t" + name + "\n")
		}
		assert.NoError(t, sc.Err())
		out := cluster.Outputs(prefix)
		write(t, out.RepSeqs, fasta.String())
		write(t, out.Membership, members.String())
		return engine.Result{Command: c}
	})
}

func testOpts(t *testing.T, dir string) pipeline.Opts {
	in := filepath.Join(dir, "in")
	assert.NoError(t, os.MkdirAll(in, 0777))
	path := func(name string) string { return filepath.Join(in, name) }

	opts := pipeline.DefaultOpts
	opts.WorkDir = filepath.Join(dir, "work")
	opts.OutDir = filepath.Join(dir, "out")
	opts.Parallelism = 2
	opts.Samples = []pipeline.SampleOpts{
		{
			Name:       "S1",
			R1:         write(t, path("S1.R1.fastq"), fq("r1/1", "ACGT", "r2/1", "ACGA")),
			R2:         write(t, path("S1.R2.fastq"), fq("r1/2", "TTTT", "r2/2", "TTTA")),
			Singletons: write(t, path("S1.single.fastq"), fq("s1/1", "ACGT", "s2/2", "GGGG")),
			Asymmetric: write(t, path("S1.asym.fastq"), fq("a1 1:N:0:ATCACG", "GGGC")),
		},
		{
			Name:       "S2",
			R1:         write(t, path("S2.R1.fastq"), fq("p1/1", "CCCC")),
			R2:         write(t, path("S2.R2.fastq"), fq("p1/2", "AAAA")),
			Singletons: write(t, path("S2.single.fastq"), ""),
			Asymmetric: write(t, path("S2.asym.fastq"), fq("b1/2", "TTTT")),
		},
		{
			Name:       "S3",
			R1:         write(t, path("S3.R1.fastq"), ""),
			R2:         write(t, path("S3.R2.fastq"), ""),
			Singletons: write(t, path("S3.single.fastq"), ""),
			Asymmetric: write(t, path("S3.asym.fastq"), ""),
		},
	}
	return opts
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	for _, compress := range []bool{false, true} {
		opts := testOpts(t, dir)
		opts.Compress = compress
		cfg, err := pipeline.NewConfig(opts)
		assert.NoError(t, err)
		var calls int
		res, err := pipeline.Run(ctx, cfg, opts.Engines(fakeMMseqs(t, &calls)))
		assert.NoError(t, err)
		// S3 has nothing to cluster.
		expect.EQ(t, calls, 2)

		out := cfg.Outputs()
		expect.EQ(t, read(t, out.Catalog), ">S1:1:0\nGGGC\n>S1:2:1\nACGT\n>S2:1:0\nCCCC\n")
		expect.EQ(t, read(t, out.Summary), "S1\t3\nS2\t1\nS3\t0\n")
		expect.EQ(t, res.Totals, []seqtable.SampleTotal{{Sample: "S1", Total: 3}, {Sample: "S2", Total: 1}, {Sample: "S3", Total: 0}})
		expect.EQ(t, read(t, out.Index), "S1:1:0\t4\t8\t4\t5\nS1:2:1\t4\t21\t4\t5\nS2:1:0\t4\t34\t4\t5\n")
		expect.EQ(t, read(t, out.Properties),
			"id\tlength\tgc_content\tmax_homopolymer\tentropy\n"+
				"S1:1:0\t4\t1.0000\t3\t0.8113\n"+
				"S1:2:1\t4\t0.5000\t1\t2.0000\n"+
				"S2:1:0\t4\t1.0000\t4\t0.0000\n")

		s1 := res.Samples[0]
		expect.EQ(t, s1.Sample, "S1")
		expect.EQ(t, s1.Reconcile.TotalIn(), int64(3))
		expect.EQ(t, s1.Combine.Unified, [2]int64{4, 3})
		expect.EQ(t, s1.Dedup.In, int64(4))
		expect.EQ(t, s1.Dedup.Out, int64(3))
		rows, err := seqtable.ReadTable(ctx, s1.Table.Path, "S1")
		assert.NoError(t, err)
		expect.EQ(t, rows, []seqtable.Row{{Seq: "GGGC", Count: 1}, {Seq: "ACGT", Count: 2}})

		s2 := res.Samples[1]
		expect.EQ(t, s2.Combine.Unified, [2]int64{1, 2})
		expect.EQ(t, res.Samples[2].Total, int64(0))
	}
}

func TestRunIdempotent(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	opts := testOpts(t, dir)
	cfg, err := pipeline.NewConfig(opts)
	assert.NoError(t, err)
	var calls int
	eng := opts.Engines(fakeMMseqs(t, &calls))

	_, err = pipeline.Run(ctx, cfg, eng)
	assert.NoError(t, err)
	catalog, summary := read(t, cfg.Outputs().Catalog), read(t, cfg.Outputs().Summary)
	_, err = pipeline.Run(ctx, cfg, eng)
	assert.NoError(t, err)
	expect.EQ(t, read(t, cfg.Outputs().Catalog), catalog)
	expect.EQ(t, read(t, cfg.Outputs().Summary), summary)
}

func TestRunAbort(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	opts := testOpts(t, dir)
	// No mate marker.
	write(t, opts.Samples[1].Asymmetric, fq("b1", "TTTT"))
	cfg, err := pipeline.NewConfig(opts)
	assert.NoError(t, err)
	var calls int
	_, err = pipeline.Run(ctx, cfg, opts.Engines(fakeMMseqs(t, &calls)))
	expect.True(t, errors.Is(errors.Invalid, err), "%v", err)
	expect.HasSubstr(t, err.Error(), "S2")
	_, err = os.Stat(cfg.Outputs().Catalog)
	expect.True(t, os.IsNotExist(err))
}

func TestRunClusterFailure(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	opts := testOpts(t, dir)
	cfg, err := pipeline.NewConfig(opts)
	assert.NoError(t, err)
	runner := engine.RunnerFunc(func(ctx context.Context, c engine.Command) engine.Result {
		return engine.Result{Command: c, ExitCode: 137, Stderr: "Killed"}
	})
	_, err = pipeline.Run(ctx, cfg, opts.Engines(runner))
	expect.True(t, errors.Is(errors.Remote, err), "%v", err)
	_, err = os.Stat(cfg.Outputs().Summary)
	expect.True(t, os.IsNotExist(err))
}

func TestMergeOnly(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	opts := testOpts(t, dir)
	opts.Index = false
	opts.Properties = false
	cfg, err := pipeline.NewConfig(opts)
	assert.NoError(t, err)
	tables := []seqtable.Table{
		{Sample: "S1", Path: write(t, filepath.Join(dir, "S1.tsv"), "sequence\tS1\nACGT\t5\nTTTT\t2\n")},
		{Sample: "S2", Path: write(t, filepath.Join(dir, "S2.tsv"), "sequence\tS2\nGGGG\t9\n")},
	}
	assert.NoError(t, os.MkdirAll(opts.OutDir, 0777))
	totals, err := pipeline.Merge(ctx, cfg, tables)
	assert.NoError(t, err)
	expect.EQ(t, totals, []seqtable.SampleTotal{{Sample: "S1", Total: 7}, {Sample: "S2", Total: 9}})
	expect.EQ(t, read(t, cfg.Outputs().Catalog), ">S1:5:0\nACGT\n>S1:2:1\nTTTT\n>S2:9:0\nGGGG\n")
	expect.EQ(t, read(t, cfg.Outputs().Summary), "S1\t7\nS2\t9\n")
	expect.EQ(t, cfg.Outputs().Index, "")
	assert.NoError(t, pipeline.Annotate(ctx, cfg))
}
