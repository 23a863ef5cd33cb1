// Package dedup removes byte-identical sequences from a unified read stream.
// Exact duplicates are treated as PCR artifacts: they are dropped, and how
// many copies existed is deliberately not carried forward into abundance
// counts.
//
// The collapse itself is delegated to an external engine (seqkit rmdup) or
// done in process by Builtin. Either way the output is checked against the
// input: it must be a subset of the input sequences and contain no
// duplicates of its own.
package dedup

import (
	"context"
	"fmt"
	"strconv"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/seqtab/encoding/fastq"
	"github.com/grailbio/seqtab/encoding/seqio"
	"github.com/grailbio/seqtab/engine"
)

// Stats summarizes one collapse.
type Stats struct {
	// In is the number of reads in the input stream.
	In int64
	// Out is the number of distinct sequences kept.
	Out int64
}

// Removed returns the number of reads dropped as duplicates.
func (s Stats) Removed() int64 { return s.In - s.Out }

// Collapser removes exact-duplicate sequences from the FASTQ file in and
// writes the survivors to out.
type Collapser interface {
	Collapse(ctx context.Context, in, out string) (Stats, error)
}

// Builtin collapses duplicates in process, keeping the first occurrence of
// every sequence in input order.
type Builtin struct{}

// Collapse implements Collapser.
func (Builtin) Collapse(ctx context.Context, inPath, outPath string) (stats Stats, err error) {
	in, err := seqio.Open(ctx, inPath)
	if err != nil {
		return stats, err
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	out, err := seqio.Create(ctx, outPath)
	if err != nil {
		return stats, err
	}
	var (
		sc   = fastq.NewScanner(in, fastq.All)
		w    = fastq.NewWriter(out)
		seen = newSeqSet()
		r    fastq.Read
	)
	for sc.Scan(&r) {
		if !seen.add(r.Seq) {
			continue
		}
		if err = w.Write(&r); err != nil {
			out.Discard(ctx)
			return stats, err
		}
	}
	if err = sc.Err(); err != nil {
		out.Discard(ctx)
		return stats, errors.E(errors.Invalid, err, fmt.Sprintf("%s: record %d", inPath, sc.N()+1))
	}
	if err = out.Close(ctx); err != nil {
		return stats, err
	}
	stats = Stats{In: sc.N(), Out: w.N()}
	log.Debug.Printf("dedup: %s: kept %d of %d reads", inPath, stats.Out, stats.In)
	return stats, nil
}

// SeqkitOpts configures the seqkit engine.
type SeqkitOpts struct {
	// Path is the seqkit executable.
	Path    string
	Threads int
}

// Seqkit runs "seqkit rmdup --by-seq".
type Seqkit struct {
	Opts   SeqkitOpts
	Runner engine.Runner
}

// Command returns the engine invocation for the given files.
func (s Seqkit) Command(in, out string) engine.Command {
	args := []string{"rmdup", "--by-seq"}
	if s.Opts.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(s.Opts.Threads))
	}
	args = append(args, "--out-file", out, in)
	return engine.Command{Name: s.Opts.Path, Args: args}
}

// Collapse implements Collapser.
func (s Seqkit) Collapse(ctx context.Context, in, out string) (Stats, error) {
	if err := engine.Run(ctx, s.Runner, s.Command(in, out)); err != nil {
		return Stats{}, errors.E(err, "dedup", in)
	}
	stats, err := Verify(ctx, in, out)
	if err != nil {
		return stats, err
	}
	log.Debug.Printf("dedup: %s: kept %d of %d reads", in, stats.Out, stats.In)
	return stats, nil
}

// Verify checks the collapse contract between a stream and its
// deduplicated form: every output sequence occurs in the input, and no
// sequence occurs twice in the output. Sequences are compared by their
// 128-bit farm fingerprints, which keeps memory proportional to the number of
// distinct sequences rather than their length.
func Verify(ctx context.Context, inPath, outPath string) (Stats, error) {
	var stats Stats
	inSeqs := map[fingerprint]struct{}{}
	n, err := scanSeqs(ctx, inPath, func(seq string) error {
		inSeqs[fingerprintOf(seq)] = struct{}{}
		return nil
	})
	if err != nil {
		return stats, err
	}
	stats.In = n
	outSeqs := map[fingerprint]struct{}{}
	n, err = scanSeqs(ctx, outPath, func(seq string) error {
		fp := fingerprintOf(seq)
		if _, ok := inSeqs[fp]; !ok {
			return errors.E(errors.Integrity, fmt.Sprintf("dedup output %s holds sequence %q absent from %s", outPath, seq, inPath))
		}
		if _, ok := outSeqs[fp]; ok {
			return errors.E(errors.Integrity, fmt.Sprintf("dedup output %s still holds duplicate sequence %q", outPath, seq))
		}
		outSeqs[fp] = struct{}{}
		return nil
	})
	stats.Out = n
	return stats, err
}

func scanSeqs(ctx context.Context, path string, fn func(seq string) error) (n int64, err error) {
	in, err := seqio.Open(ctx, path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	sc := fastq.NewScanner(in, fastq.Seq)
	var r fastq.Read
	for sc.Scan(&r) {
		if err = fn(r.Seq); err != nil {
			return sc.N(), err
		}
	}
	if err = sc.Err(); err != nil {
		return sc.N(), errors.E(errors.Invalid, err, fmt.Sprintf("%s: record %d", path, sc.N()+1))
	}
	return sc.N(), nil
}

type fingerprint struct{ hi, lo uint64 }

func fingerprintOf(seq string) fingerprint {
	lo, hi := farm.Fingerprint128([]byte(seq))
	return fingerprint{hi, lo}
}

// seqSet is an exact set of sequences, bucketed by 64-bit fingerprint.
type seqSet struct {
	buckets map[uint64][]string
}

func newSeqSet() *seqSet { return &seqSet{buckets: map[uint64][]string{}} }

// add inserts seq and reports whether it was new.
func (s *seqSet) add(seq string) bool {
	fp := farm.Fingerprint64([]byte(seq))
	for _, x := range s.buckets[fp] {
		if x == seq {
			return false
		}
	}
	s.buckets[fp] = append(s.buckets[fp], seq)
	return true
}
