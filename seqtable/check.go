package seqtable

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/seqtab/encoding/fasta"
	"github.com/grailbio/seqtab/encoding/seqio"
)

// ReadSummary reads a merge summary.
func ReadSummary(ctx context.Context, path string) (totals []SampleTotal, err error) {
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
	for {
		var row SampleTotal
		if err := r.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.E(errors.Invalid, err, path)
		}
		totals = append(totals, row)
	}
	return totals, nil
}

// Check rereads a catalog and its summary and verifies that global IDs are
// well formed and unique, that each sample's entries are numbered 0, 1, ...
// in order, and that the summary totals equal the per-sample sums of the
// catalog counts, in the same sample order.
func Check(ctx context.Context, catalog, summary string) (err error) {
	totals, err := ReadSummary(ctx, summary)
	if err != nil {
		return err
	}
	in, err := seqio.Open(ctx, catalog)
	if err != nil {
		return err
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	var (
		sc      = fasta.NewScanner(in)
		rec     fasta.Record
		sums    []SampleTotal
		samples = map[string]bool{}
		next    int
	)
	for sc.Scan(&rec) {
		id, err := ParseGlobalID(rec.Name)
		if err != nil {
			return errors.E(err, catalog)
		}
		if len(sums) == 0 || sums[len(sums)-1].Sample != id.Sample {
			if samples[id.Sample] {
				return errors.E(errors.Integrity, fmt.Sprintf("%s: entries of sample %s are not contiguous", catalog, id.Sample))
			}
			samples[id.Sample] = true
			sums = append(sums, SampleTotal{Sample: id.Sample})
			next = 0
		}
		if id.Index != next {
			return errors.E(errors.Integrity, fmt.Sprintf("%s: entry %s out of sequence, want index %d", catalog, rec.Name, next))
		}
		next++
		sums[len(sums)-1].Total += id.Count
	}
	if err := sc.Err(); err != nil {
		return errors.E(errors.Invalid, err, catalog)
	}
	// Samples with empty tables have a summary line but no entries.
	j := 0
	for _, t := range totals {
		if j < len(sums) && sums[j].Sample == t.Sample {
			if sums[j].Total != t.Total {
				return errors.E(errors.Integrity, fmt.Sprintf("%s: sample %s total %d, catalog sums to %d", summary, t.Sample, t.Total, sums[j].Total))
			}
			j++
			continue
		}
		if t.Total != 0 || samples[t.Sample] {
			return errors.E(errors.Integrity, fmt.Sprintf("%s: sample %s (total %d) has no entries in catalog order", summary, t.Sample, t.Total))
		}
	}
	if j != len(sums) {
		return errors.E(errors.Integrity, fmt.Sprintf("%s: sample %s missing from summary", catalog, sums[j].Sample))
	}
	return nil
}
