package seqtable

import (
	"context"
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/seqtab/cluster"
	"github.com/grailbio/seqtab/encoding/fasta"
	"github.com/grailbio/seqtab/encoding/seqio"
)

// Build writes sample's count table to dst from one clustering output. Each
// representative sequence yields one row whose count is the number of
// membership entries naming it. Rows are ordered by representative ID.
//
// Every representative must have at least one member and every member must
// point at a known representative; either violation is an Integrity error.
func Build(ctx context.Context, sample string, clu cluster.Output, dst string) (Table, int64, error) {
	reps, err := readReps(ctx, clu.RepSeqs)
	if err != nil {
		return Table{}, 0, err
	}
	freq, err := cluster.Frequencies(ctx, clu.Membership)
	if err != nil {
		return Table{}, 0, err
	}
	names := append([]string(nil), reps.SeqNames()...)
	sort.Strings(names)
	var (
		rows  = make([]Row, 0, len(names))
		total int64
	)
	for _, name := range names {
		n, ok := freq[name]
		if !ok {
			return Table{}, 0, errors.E(errors.Integrity,
				fmt.Sprintf("%s: representative %q has no members in %s", sample, name, clu.Membership))
		}
		seq, err := reps.Get(name)
		if err != nil {
			return Table{}, 0, errors.E(errors.Integrity, err, clu.RepSeqs)
		}
		rows = append(rows, Row{Seq: seq, Count: n})
		total += n
		delete(freq, name)
	}
	if len(freq) > 0 {
		orphans := make([]string, 0, len(freq))
		for name := range freq {
			orphans = append(orphans, name)
		}
		sort.Strings(orphans)
		return Table{}, 0, errors.E(errors.Integrity,
			fmt.Sprintf("%s: %d representative(s) in %s missing from %s, first %q",
				sample, len(orphans), clu.Membership, clu.RepSeqs, orphans[0]))
	}
	if err := WriteTable(ctx, dst, sample, rows); err != nil {
		return Table{}, 0, err
	}
	log.Printf("seqtable: %s: %d sequences, %d reads -> %s", sample, len(rows), total, dst)
	return Table{Sample: sample, Path: dst}, total, nil
}

func readReps(ctx context.Context, path string) (reps fasta.Fasta, err error) {
	in, err := seqio.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	if reps, err = fasta.New(in); err != nil {
		return nil, errors.E(errors.Invalid, err, path)
	}
	return reps, nil
}
