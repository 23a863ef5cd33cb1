// Package combine concatenates the paired host-filter survivors with the
// reconciled singleton streams into one read stream per mate.
//
// Order is fixed: paired survivors, then true singletons, then asymmetric
// singletons, so per-sample record positions are reproducible across runs.
// The unified R1 and R2 streams are not re-paired and may differ in length;
// what is guaranteed is that each unified mate stream holds exactly the
// records of its three parts.
package combine

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/seqtab/encoding/fastq"
	"github.com/grailbio/seqtab/encoding/seqio"
	"github.com/grailbio/seqtab/reconcile"
)

// Pair names an R1/R2 file pair.
type Pair [2]string

// R1 returns the first-mate path.
func (p Pair) R1() string { return p[fastq.Mate1] }

// R2 returns the second-mate path.
func (p Pair) R2() string { return p[fastq.Mate2] }

// Input lists the streams to combine.
type Input struct {
	// Paired are the reads whose mates both survived host filtering.
	Paired Pair
	// Reconciled are the oriented singleton files from reconcile.
	Reconciled reconcile.Output
}

// Output names the combined files.
type Output struct {
	// Unified holds every surviving read, per mate.
	Unified Pair
	// Singletons holds the singleton reads only, kept for traceability.
	Singletons Pair
}

// Counts tallies records per part and per output, indexed by mate.
type Counts struct {
	Paired     [2]int64
	Singletons [2][2]int64 // [origin][mate]
	Unified    [2]int64
	Union      [2]int64
}

// In returns the number of records read from all parts.
func (c Counts) In() int64 {
	n := c.Paired[0] + c.Paired[1]
	for _, s := range c.Singletons {
		n += s[0] + s[1]
	}
	return n
}

// Combine writes out.Unified and out.Singletons from in. The paired
// survivors must name the same templates in the same order in R1 and R2.
// On error no output file is left behind.
func Combine(ctx context.Context, in Input, out Output) (Counts, error) {
	var c Counts
	if err := combine(ctx, in, out, &c); err != nil {
		return c, errors.E(err, "combine", out.Unified.R1())
	}
	for _, mate := range []fastq.Mate{fastq.Mate1, fastq.Mate2} {
		want := c.Paired[mate]
		for _, o := range reconcile.Origins {
			want += c.Singletons[o][mate]
		}
		if c.Unified[mate] != want {
			remove(ctx, out)
			return c, errors.E(errors.Integrity,
				fmt.Sprintf("combine %s: unified stream has %d reads, parts total %d", mate, c.Unified[mate], want))
		}
	}
	log.Debug.Printf("combine: %s: %d/%d reads (%d/%d singletons)", out.Unified.R1(),
		c.Unified[fastq.Mate1], c.Unified[fastq.Mate2], c.Union[fastq.Mate1], c.Union[fastq.Mate2])
	return c, nil
}

func combine(ctx context.Context, in Input, out Output, c *Counts) (err error) {
	var files []*seqio.Writer
	create := func(path string) *fastq.Writer {
		if err != nil {
			return nil
		}
		var w *seqio.Writer
		if w, err = seqio.Create(ctx, path); err != nil {
			return nil
		}
		files = append(files, w)
		return fastq.NewWriter(w)
	}
	var unified, union [2]*fastq.Writer
	for _, mate := range []fastq.Mate{fastq.Mate1, fastq.Mate2} {
		unified[mate] = create(out.Unified[mate])
		union[mate] = create(out.Singletons[mate])
	}
	defer func() {
		if err != nil {
			for _, f := range files {
				f.Discard(ctx)
			}
			return
		}
		for mate := range unified {
			c.Unified[mate], c.Union[mate] = unified[mate].N(), union[mate].N()
		}
		once := errors.Once{}
		for _, f := range files {
			once.Set(f.Close(ctx))
		}
		if err = once.Err(); err != nil {
			remove(ctx, out)
		}
	}()
	if err != nil {
		return err
	}
	if err = copyPairs(ctx, in.Paired, unified, c); err != nil {
		return err
	}
	for _, o := range reconcile.Origins {
		for _, mate := range []fastq.Mate{fastq.Mate1, fastq.Mate2} {
			if c.Singletons[o][mate], err = copyReads(ctx, in.Reconciled.Path(o, mate), unified[mate], union[mate]); err != nil {
				return err
			}
		}
	}
	return nil
}

// copyPairs appends the paired survivors to the unified writers.
func copyPairs(ctx context.Context, paired Pair, ws [2]*fastq.Writer, c *Counts) (err error) {
	var ins [2]*seqio.Reader
	for mate, path := range paired {
		if ins[mate], err = seqio.Open(ctx, path); err != nil {
			if mate == 1 {
				_ = ins[0].Close(ctx)
			}
			return err
		}
	}
	defer func() {
		once := errors.Once{}
		once.Set(ins[0].Close(ctx))
		once.Set(ins[1].Close(ctx))
		if e := once.Err(); e != nil && err == nil {
			err = e
		}
	}()
	var (
		sc     = fastq.NewPairScanner(ins[0], ins[1], fastq.All)
		r1, r2 fastq.Read
	)
	for sc.Scan(&r1, &r2) {
		if err = ws[0].Write(&r1); err == nil {
			err = ws[1].Write(&r2)
		}
		if err != nil {
			return err
		}
	}
	if err = sc.Err(); err != nil {
		return errors.E(errors.Invalid, err, fmt.Sprintf("paired survivors %s, %s", paired.R1(), paired.R2()))
	}
	c.Paired = [2]int64{sc.N(), sc.N()}
	return nil
}

// copyReads appends every read of path to each of ws and returns the number
// of reads copied.
func copyReads(ctx context.Context, path string, ws ...*fastq.Writer) (n int64, err error) {
	in, err := seqio.Open(ctx, path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	sc := fastq.NewScanner(in, fastq.All)
	var r fastq.Read
	for sc.Scan(&r) {
		for _, w := range ws {
			if err = w.Write(&r); err != nil {
				return sc.N(), err
			}
		}
	}
	if err = sc.Err(); err != nil {
		return sc.N(), errors.E(errors.Invalid, err, fmt.Sprintf("%s: record %d", path, sc.N()+1))
	}
	return sc.N(), nil
}

// remove deletes already committed outputs after a failed check.
func remove(ctx context.Context, out Output) {
	for _, p := range []Pair{out.Unified, out.Singletons} {
		for _, path := range p {
			if err := file.Remove(ctx, path); err != nil {
				log.Debug.Printf("combine: remove %s: %v", path, err)
			}
		}
	}
}
