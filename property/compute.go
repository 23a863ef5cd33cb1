package property

import (
	"context"
	"math"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/seqtab/encoding/fasta"
	"github.com/grailbio/seqtab/encoding/seqio"
)

// Func computes one sequence's property values, in Columns order.
type Func struct {
	Columns []string
	Compute func(seq string) []string
}

// Composition reports sequence length and GC fraction.
var Composition = Func{
	Columns: []string{"length", "gc_content"},
	Compute: func(seq string) []string {
		var gc int
		for i := 0; i < len(seq); i++ {
			switch seq[i] {
			case 'G', 'C', 'g', 'c':
				gc++
			}
		}
		return []string{strconv.Itoa(len(seq)), formatFraction(gc, len(seq))}
	},
}

// Complexity reports the longest homopolymer run and the Shannon entropy of
// the base distribution, in bits. Low values flag repeats and other
// low-complexity sequence.
var Complexity = Func{
	Columns: []string{"max_homopolymer", "entropy"},
	Compute: func(seq string) []string {
		var (
			counts  [256]int
			run, mx int
		)
		for i := 0; i < len(seq); i++ {
			c := seq[i] &^ 0x20 // upper case
			counts[c]++
			if i > 0 && c == seq[i-1]&^0x20 {
				run++
			} else {
				run = 1
			}
			if run > mx {
				mx = run
			}
		}
		var h float64
		for _, n := range counts {
			if n > 0 {
				p := float64(n) / float64(len(seq))
				h -= p * math.Log2(p)
			}
		}
		return []string{strconv.Itoa(mx), strconv.FormatFloat(h, 'f', 4, 64)}
	},
}

func formatFraction(n, d int) string {
	if d == 0 {
		return "0.0000"
	}
	return strconv.FormatFloat(float64(n)/float64(d), 'f', 4, 64)
}

// Write computes fn for every record of the FASTA catalog and writes the
// resulting property table to out, in catalog order.
func Write(ctx context.Context, catalog, out string, fn Func) (err error) {
	in, err := seqio.Open(ctx, catalog)
	if err != nil {
		return err
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	w, err := seqio.Create(ctx, out)
	if err != nil {
		return err
	}
	var (
		tw  = tsv.NewWriter(w)
		sc  = fasta.NewScanner(in)
		rec fasta.Record
		n   int
	)
	writeRow(tw, Row{ID: IDColumn, Values: fn.Columns})
	err = tw.EndLine()
	for err == nil && sc.Scan(&rec) {
		writeRow(tw, Row{ID: rec.Name, Values: fn.Compute(rec.Seq)})
		err = tw.EndLine()
		n++
	}
	if err == nil {
		if err = sc.Err(); err != nil {
			err = errors.E(errors.Invalid, err, catalog)
		}
	}
	if err == nil {
		err = tw.Flush()
	}
	if err != nil {
		w.Discard(ctx)
		return errors.E(err, "property", out)
	}
	if err := w.Close(ctx); err != nil {
		return err
	}
	log.Printf("property: %v for %d sequences -> %s", fn.Columns, n, out)
	return nil
}

// WriteComposition writes the composition table of catalog to out.
func WriteComposition(ctx context.Context, catalog, out string) error {
	return Write(ctx, catalog, out, Composition)
}

// WriteComplexity writes the complexity table of catalog to out.
func WriteComplexity(ctx context.Context, catalog, out string) error {
	return Write(ctx, catalog, out, Complexity)
}
