// Package pipeline runs the count-table pipeline over a set of samples.
//
// Each sample goes through reconcile, combine, dedup, cluster and table
// building independently, several samples at a time. Once every per-sample
// table exists, the tables are merged into the global catalog in configured
// sample order by a single sequential pass, and the property tables are
// computed from the catalog. The first error aborts the run.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/seqtab/cluster"
	"github.com/grailbio/seqtab/combine"
	"github.com/grailbio/seqtab/dedup"
	"github.com/grailbio/seqtab/property"
	"github.com/grailbio/seqtab/reconcile"
	"github.com/grailbio/seqtab/seqtable"
)

// Engines are the pluggable per-sample stages.
type Engines struct {
	Dedup   dedup.Collapser
	Cluster cluster.Clusterer
}

// SampleResult describes one sample's trip through the per-sample stages.
type SampleResult struct {
	Sample    string
	Reconcile reconcile.Counts
	Combine   combine.Counts
	Dedup     dedup.Stats
	Clusters  cluster.Output
	Table     seqtable.Table
	// Total is the sum of the table counts.
	Total int64
}

// Result describes a completed run.
type Result struct {
	// Samples are in configured order.
	Samples []SampleResult
	Totals  []seqtable.SampleTotal
	Outputs Outputs
}

// Run executes the whole pipeline.
func Run(ctx context.Context, cfg Config, eng Engines) (Result, error) {
	samples, err := RunSamples(ctx, cfg, eng)
	if err != nil {
		return Result{}, err
	}
	tables := make([]seqtable.Table, len(samples))
	for i, s := range samples {
		tables[i] = s.Table
	}
	totals, err := Merge(ctx, cfg, tables)
	if err != nil {
		return Result{}, err
	}
	for i, t := range totals {
		if t.Total != samples[i].Total {
			return Result{}, errors.E(errors.Integrity,
				fmt.Sprintf("sample %s: table total %d, merged total %d", t.Sample, samples[i].Total, t.Total))
		}
	}
	if err := Annotate(ctx, cfg); err != nil {
		return Result{}, err
	}
	return Result{Samples: samples, Totals: totals, Outputs: cfg.Outputs()}, nil
}

// RunSamples runs the per-sample stages for every sample, up to
// cfg.Parallelism() at a time. Results are in configured order. The first
// failure cancels the samples still running.
func RunSamples(ctx context.Context, cfg Config, eng Engines) ([]SampleResult, error) {
	samples := cfg.Samples()
	results := make([]SampleResult, len(samples))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	err := traverse.Limit(cfg.Parallelism()).Each(len(samples), func(i int) error {
		r, err := RunSample(ctx, samples[i], eng)
		if err != nil {
			cancel()
			return errors.E(err, "sample", samples[i].Name)
		}
		results[i] = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// RunSample takes one sample from its host-filtered reads to its count
// table.
func RunSample(ctx context.Context, s Sample, eng Engines) (SampleResult, error) {
	r := SampleResult{Sample: s.Name}
	if err := os.MkdirAll(s.Work.Dir, 0777); err != nil {
		return r, errors.E(err, "mkdir", s.Work.Dir)
	}
	var err error
	if r.Reconcile, err = reconcile.Reconcile(ctx, s.Singletons, s.Work.Reconciled); err != nil {
		return r, err
	}
	in := combine.Input{Paired: s.Paired, Reconciled: s.Work.Reconciled}
	if r.Combine, err = combine.Combine(ctx, in, s.Work.Combined); err != nil {
		return r, err
	}
	if err := checkConservation(r.Reconcile, r.Combine); err != nil {
		return r, errors.E(err, s.Name)
	}
	if r.Dedup, err = eng.Dedup.Collapse(ctx, s.Work.Combined.Unified.R1(), s.Work.Dedup); err != nil {
		return r, err
	}
	log.Printf("%s: dedup kept %d of %d reads", s.Name, r.Dedup.Out, r.Dedup.In)
	if r.Dedup.Out == 0 {
		r.Clusters, err = cluster.Empty(ctx, s.Work.ClusterPrefix)
	} else {
		r.Clusters, err = eng.Cluster.Cluster(ctx, s.Work.Dedup, s.Work.ClusterPrefix)
	}
	if err != nil {
		return r, err
	}
	if r.Table, r.Total, err = seqtable.Build(ctx, s.Name, r.Clusters, s.Work.Table); err != nil {
		return r, err
	}
	if r.Total != r.Dedup.Out {
		return r, errors.E(errors.Integrity,
			fmt.Sprintf("%s: %d reads clustered, %d in table", s.Name, r.Dedup.Out, r.Total))
	}
	return r, nil
}

// checkConservation verifies that every reconciled singleton reached the
// combined streams, and that the paired survivors did too.
func checkConservation(rc reconcile.Counts, cc combine.Counts) error {
	var singletons int64
	for _, o := range cc.Singletons {
		singletons += o[0] + o[1]
	}
	if rc.TotalOut() != singletons {
		return errors.E(errors.Integrity,
			fmt.Sprintf("%d reads reconciled, %d singletons combined", rc.TotalOut(), singletons))
	}
	if in, out := rc.TotalIn()+cc.Paired[0]+cc.Paired[1], cc.Unified[0]+cc.Unified[1]; in != out {
		return errors.E(errors.Integrity, fmt.Sprintf("%d reads in, %d combined", in, out))
	}
	return nil
}

// Merge builds the catalog and summary from tables, which must be in
// configured sample order, and verifies the result.
func Merge(ctx context.Context, cfg Config, tables []seqtable.Table) ([]seqtable.SampleTotal, error) {
	out := cfg.Outputs()
	if !strings.Contains(cfg.outDir, "://") {
		if err := os.MkdirAll(cfg.outDir, 0777); err != nil {
			return nil, errors.E(err, "mkdir", cfg.outDir)
		}
	}
	totals, err := seqtable.Merge(ctx, tables, seqtable.MergeOpts{
		Catalog: out.Catalog,
		Summary: out.Summary,
		Index:   out.Index,
	})
	if err != nil {
		return nil, err
	}
	if err := seqtable.Check(ctx, out.Catalog, out.Summary); err != nil {
		return nil, err
	}
	return totals, nil
}

// Annotate writes the property tables of the catalog, if configured.
func Annotate(ctx context.Context, cfg Config) error {
	out := cfg.Outputs()
	if out.Properties == "" {
		return nil
	}
	if err := property.WriteComposition(ctx, out.Catalog, out.Composition); err != nil {
		return err
	}
	if err := property.WriteComplexity(ctx, out.Catalog, out.Complexity); err != nil {
		return err
	}
	return property.Annotate(ctx, out.Composition, out.Complexity, out.Properties)
}
