package seqtable

import (
	"context"
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/seqtab/encoding/fasta"
	"github.com/grailbio/seqtab/encoding/seqio"
)

// SampleTotal is one line of the merge summary.
type SampleTotal struct {
	Sample string
	Total  int64
}

// MergeOpts names the merge outputs.
type MergeOpts struct {
	// Catalog is the FASTA catalog path.
	Catalog string
	// Summary is the per-sample totals TSV path.
	Summary string
	// Index, if set, receives a faidx index of the catalog. The catalog
	// must then be uncompressed.
	Index string
}

// Merge reads tables in order and writes the global catalog and the sample
// summary. Samples appear in both outputs in the order of tables, and each
// sample's entries keep their table order, so the outputs depend only on the
// table contents and their order.
//
// Any malformed row or duplicate global ID aborts the merge. On error no
// output is left behind, including outputs of an earlier run.
func Merge(ctx context.Context, tables []Table, opts MergeOpts) ([]SampleTotal, error) {
	if opts.Catalog == "" || opts.Summary == "" {
		return nil, errors.E(errors.Invalid, "merge: catalog and summary paths are required")
	}
	if opts.Index != "" && strings.HasSuffix(opts.Catalog, ".gz") {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("merge: cannot index compressed catalog %s", opts.Catalog))
	}
	for _, t := range tables {
		if err := ValidSampleName(t.Sample); err != nil {
			return nil, err
		}
	}
	catalog, err := seqio.Create(ctx, opts.Catalog)
	if err != nil {
		return nil, err
	}
	summary, err := seqio.Create(ctx, opts.Summary)
	if err != nil {
		catalog.Discard(ctx)
		return nil, err
	}
	m := merger{
		catalog: fasta.NewWriter(catalog),
		summary: tsv.NewWriter(summary),
		seen:    map[string]struct{}{},
	}
	totals, err := m.run(ctx, tables)
	if err == nil {
		err = m.catalog.Flush()
	}
	if err == nil {
		err = m.summary.Flush()
	}
	if err != nil {
		catalog.Discard(ctx)
		summary.Discard(ctx)
		return nil, errors.E(err, "merge")
	}
	once := errors.Once{}
	once.Set(catalog.Close(ctx))
	once.Set(summary.Close(ctx))
	if err := once.Err(); err != nil {
		remove(ctx, opts.Catalog, opts.Summary)
		return nil, errors.E(err, "merge")
	}
	if opts.Index != "" {
		if err := writeIndex(ctx, opts.Catalog, opts.Index); err != nil {
			remove(ctx, opts.Catalog, opts.Summary)
			return nil, errors.E(err, "merge")
		}
	}
	log.Printf("seqtable: merged %d samples, %d entries -> %s", len(totals), len(m.seen), opts.Catalog)
	return totals, nil
}

type merger struct {
	catalog *fasta.Writer
	summary *tsv.Writer
	seen    map[string]struct{}
}

func (m *merger) run(ctx context.Context, tables []Table) ([]SampleTotal, error) {
	totals := make([]SampleTotal, 0, len(tables))
	for _, t := range tables {
		total, err := m.add(ctx, t)
		if err != nil {
			return nil, err
		}
		m.summary.WriteString(t.Sample)
		m.summary.WriteInt64(total)
		if err := m.summary.EndLine(); err != nil {
			return nil, err
		}
		totals = append(totals, SampleTotal{Sample: t.Sample, Total: total})
		log.Debug.Printf("seqtable: %s: total %d", t.Sample, total)
	}
	return totals, nil
}

func (m *merger) add(ctx context.Context, t Table) (total int64, err error) {
	s, err := OpenTable(ctx, t.Path, t.Sample)
	if err != nil {
		return 0, err
	}
	defer func() {
		if e := s.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	for i := 0; s.Scan(); i++ {
		row := s.Row()
		id := GlobalID{Sample: t.Sample, Count: row.Count, Index: i}.String()
		if _, ok := m.seen[id]; ok {
			return 0, errors.E(errors.Integrity, fmt.Sprintf("%s: duplicate global ID %s", t.Path, id))
		}
		m.seen[id] = struct{}{}
		if err := m.catalog.Write(id, row.Seq); err != nil {
			return 0, err
		}
		total += row.Count
	}
	return total, s.Err()
}

func writeIndex(ctx context.Context, catalog, index string) (err error) {
	in, err := seqio.Open(ctx, catalog)
	if err != nil {
		return err
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	out, err := seqio.Create(ctx, index)
	if err != nil {
		return err
	}
	if err := fasta.GenerateIndex(out, in); err != nil {
		out.Discard(ctx)
		return errors.E(err, "index", catalog)
	}
	return out.Close(ctx)
}

func remove(ctx context.Context, paths ...string) {
	for _, path := range paths {
		if err := file.Remove(ctx, path); err != nil {
			log.Error.Printf("seqtable: remove %s: %v", path, err)
		}
	}
}
