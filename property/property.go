// Package property joins per-sequence property tables. A property table is a
// TSV file whose first row is a header starting with the "id" sentinel; every
// later row is keyed by a catalog ID in column 1:
//
//	id	length	gc_content
//	S1:5:0	4	0.5000
//
// Tables joined by Annotate must cover the same set of IDs.
package property

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/seqtab/encoding/seqio"
)

// IDColumn is the header sentinel of a property table.
const IDColumn = "id"

// Row is one property table row.
type Row struct {
	ID     string
	Values []string
}

// reader streams the rows of a property table after checking its header.
type reader struct {
	path   string
	in     *seqio.Reader
	r      *tsv.Reader
	line   int
	Header []string // value column names
}

func open(ctx context.Context, path string) (*reader, error) {
	in, err := seqio.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	t := &reader{path: path, in: in, r: tsv.NewReader(in)}
	t.r.FieldsPerRecord = -1
	t.r.LazyQuotes = true
	header, err := t.read()
	if err == io.EOF {
		err = errors.E(errors.Invalid, fmt.Sprintf("%s: missing header row", path))
	} else if err == nil && header.ID != IDColumn {
		err = errors.E(errors.Invalid, fmt.Sprintf("%s:1: header must start with %q, got %q", path, IDColumn, header.ID))
	}
	if err != nil {
		_ = in.Close(ctx)
		return nil, err
	}
	t.Header = header.Values
	return t, nil
}

func (t *reader) read() (Row, error) {
	rec, err := t.r.Reader.Read()
	if err == io.EOF {
		return Row{}, err
	}
	t.line++
	if err != nil {
		return Row{}, errors.E(errors.Invalid, err, fmt.Sprintf("%s:%d", t.path, t.line))
	}
	if rec[0] == "" {
		return Row{}, errors.E(errors.Invalid, fmt.Sprintf("%s:%d: empty id", t.path, t.line))
	}
	return Row{ID: rec[0], Values: append([]string(nil), rec[1:]...)}, nil
}

// Next returns the next data row, or io.EOF at the end of the table.
func (t *reader) Next() (Row, error) {
	row, err := t.read()
	if err != nil {
		return row, err
	}
	if row.ID == IDColumn {
		return Row{}, errors.E(errors.Invalid, fmt.Sprintf("%s:%d: repeated header row", t.path, t.line))
	}
	if len(row.Values) != len(t.Header) {
		return Row{}, errors.E(errors.Invalid, fmt.Sprintf("%s:%d: row has %d values, header has %d",
			t.path, t.line, len(row.Values), len(t.Header)))
	}
	return row, nil
}

func (t *reader) Close(ctx context.Context) error { return t.in.Close(ctx) }

// Annotate joins the property tables first and second on their ID column and
// writes the result to out. Output rows follow the order of second; the
// values of first precede those of second. An ID present in only one table,
// or present twice in either, is an Integrity error, and out is not written.
func Annotate(ctx context.Context, first, second, out string) error {
	lookup, order, header, err := load(ctx, first)
	if err != nil {
		return err
	}
	t, err := open(ctx, second)
	if err != nil {
		return err
	}
	defer func() {
		if err := t.Close(ctx); err != nil {
			log.Error.Printf("property: close %s: %v", second, err)
		}
	}()
	w, err := seqio.Create(ctx, out)
	if err != nil {
		return err
	}
	tw := tsv.NewWriter(w)
	writeRow(tw, Row{ID: IDColumn, Values: append(append([]string(nil), header...), t.Header...)})
	var (
		seen = make(map[string]bool, len(lookup))
		n    int
	)
	err = tw.EndLine()
	for err == nil {
		var row Row
		if row, err = t.Next(); err != nil {
			break
		}
		values, ok := lookup[row.ID]
		switch {
		case !ok:
			err = errors.E(errors.Integrity, fmt.Sprintf("%s: id %s not in %s", second, row.ID, first))
		case seen[row.ID]:
			err = errors.E(errors.Integrity, fmt.Sprintf("%s: duplicate id %s", second, row.ID))
		default:
			seen[row.ID] = true
			writeRow(tw, Row{ID: row.ID, Values: append(append([]string(nil), values...), row.Values...)})
			err = tw.EndLine()
			n++
		}
	}
	if err == io.EOF {
		err = nil
		if len(seen) != len(lookup) {
			for _, id := range order {
				if !seen[id] {
					err = errors.E(errors.Integrity, fmt.Sprintf("%s: %d id(s) missing, first %s from %s",
						second, len(lookup)-len(seen), id, first))
					break
				}
			}
		}
	}
	if err == nil {
		err = tw.Flush()
	}
	if err != nil {
		w.Discard(ctx)
		return errors.E(err, "annotate")
	}
	if err := w.Close(ctx); err != nil {
		return err
	}
	log.Printf("property: joined %d rows of %s and %s -> %s", n, first, second, out)
	return nil
}

func load(ctx context.Context, path string) (lookup map[string][]string, order, header []string, err error) {
	t, err := open(ctx, path)
	if err != nil {
		return nil, nil, nil, err
	}
	defer func() {
		if e := t.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	lookup = map[string][]string{}
	for {
		row, err := t.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, nil, err
		}
		if _, ok := lookup[row.ID]; ok {
			return nil, nil, nil, errors.E(errors.Integrity, fmt.Sprintf("%s: duplicate id %s", path, row.ID))
		}
		lookup[row.ID] = row.Values
		order = append(order, row.ID)
	}
	return lookup, order, t.Header, nil
}

func writeRow(w *tsv.Writer, row Row) {
	w.WriteString(row.ID)
	for _, v := range row.Values {
		w.WriteString(v)
	}
}

// Read reads a whole property table and returns its value column names and
// rows.
func Read(ctx context.Context, path string) (header []string, rows []Row, err error) {
	t, err := open(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if e := t.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	for {
		row, err := t.Next()
		if err == io.EOF {
			return t.Header, rows, nil
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}
}
