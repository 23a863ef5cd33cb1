// Package cluster defines the contract with the external similarity
// clustering engine. The engine receives one sample's deduplicated reads and
// returns representative sequences plus a membership table mapping every
// clustered read to its representative. This package never clusters by
// itself; it runs the engine, locates its outputs and interprets the
// membership table.
package cluster

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/seqtab/encoding/seqio"
	"github.com/grailbio/seqtab/engine"
)

// Output locates the files a clustering run produced.
type Output struct {
	// RepSeqs is a FASTA file of representative sequences, named by
	// representative ID.
	RepSeqs string
	// Membership is a headerless TSV whose first column is the representative
	// ID of each clustered read.
	Membership string
}

// Clusterer clusters the reads in the file in. Output files are named after
// prefix.
type Clusterer interface {
	Cluster(ctx context.Context, in, prefix string) (Output, error)
}

// MMseqsOpts configures "mmseqs easy-cluster".
type MMseqsOpts struct {
	// Path is the mmseqs executable.
	Path string
	// MinSeqID is the minimum sequence identity of cluster members, in (0, 1].
	MinSeqID float64
	// Coverage is the minimum alignment coverage, in (0, 1].
	Coverage float64
	// CovMode selects how coverage is computed (mmseqs --cov-mode).
	CovMode int
	Threads int
	// TmpDir is the engine's scratch directory. Empty means prefix + "_tmp".
	TmpDir string
}

// MMseqs runs MMseqs2 easy-cluster.
type MMseqs struct {
	Opts   MMseqsOpts
	Runner engine.Runner
}

// Command returns the engine invocation.
func (m MMseqs) Command(in, prefix string) engine.Command {
	tmp := m.Opts.TmpDir
	if tmp == "" {
		tmp = prefix + "_tmp"
	}
	args := []string{
		"easy-cluster", in, prefix, tmp,
		"--min-seq-id", strconv.FormatFloat(m.Opts.MinSeqID, 'g', -1, 64),
		"-c", strconv.FormatFloat(m.Opts.Coverage, 'g', -1, 64),
		"--cov-mode", strconv.Itoa(m.Opts.CovMode),
	}
	if m.Opts.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(m.Opts.Threads))
	}
	return engine.Command{Name: m.Opts.Path, Args: args}
}

// Outputs returns the files easy-cluster writes for prefix.
func Outputs(prefix string) Output {
	return Output{
		RepSeqs:    prefix + "_rep_seq.fasta",
		Membership: prefix + "_cluster.tsv",
	}
}

// Cluster implements Clusterer.
func (m MMseqs) Cluster(ctx context.Context, in, prefix string) (Output, error) {
	if err := engine.Run(ctx, m.Runner, m.Command(in, prefix)); err != nil {
		return Output{}, errors.E(err, "cluster", in)
	}
	out := Outputs(prefix)
	for _, path := range []string{out.RepSeqs, out.Membership} {
		if _, err := file.Stat(ctx, path); err != nil {
			return out, errors.E(errors.Integrity, err,
				fmt.Sprintf("cluster engine reported success but %s is missing", path))
		}
	}
	return out, nil
}

// Empty writes empty outputs for prefix. It stands in for the engine when a
// sample has no reads left to cluster.
func Empty(ctx context.Context, prefix string) (Output, error) {
	out := Outputs(prefix)
	for _, path := range []string{out.RepSeqs, out.Membership} {
		w, err := seqio.Create(ctx, path)
		if err != nil {
			return out, err
		}
		if err := w.Close(ctx); err != nil {
			return out, err
		}
	}
	log.Debug.Printf("cluster: %s: no reads, wrote empty outputs", prefix)
	return out, nil
}

type membershipRow struct {
	Rep    string
	Member string
}

// Frequencies reads a two-column membership table and returns the number of
// reads assigned to each representative ID.
func Frequencies(ctx context.Context, path string) (freq map[string]int64, err error) {
	in, err := seqio.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	r := tsv.NewReader(in)
	freq = map[string]int64{}
	line := 0
	for {
		var row membershipRow
		if err := r.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.E(errors.Invalid, err, fmt.Sprintf("%s:%d", path, line+1))
		}
		line++
		if row.Rep == "" {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("%s:%d: empty representative ID", path, line))
		}
		freq[row.Rep]++
	}
	return freq, nil
}
