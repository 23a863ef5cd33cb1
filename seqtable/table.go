package seqtable

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/seqtab/encoding/seqio"
)

// SequenceColumn is the name of the first column of a per-sample table.
const SequenceColumn = "sequence"

// Row is one per-sample table row.
type Row struct {
	Seq   string
	Count int64
}

// Table is a handle to a written per-sample table.
type Table struct {
	Sample string
	Path   string
}

// ValidSampleName checks that name can be embedded in a global identifier
// and used as a table column name.
func ValidSampleName(name string) error {
	if name == "" {
		return errors.E(errors.Invalid, "empty sample name")
	}
	if strings.ContainsRune(name, ':') {
		return errors.E(errors.Invalid, fmt.Sprintf("sample name %q contains ':'", name))
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("sample name %q contains whitespace", name))
	}
	return nil
}

// WriteTable writes rows as sample's count table at path. Nothing is left at
// path if writing fails.
func WriteTable(ctx context.Context, path, sample string, rows []Row) error {
	if err := ValidSampleName(sample); err != nil {
		return err
	}
	out, err := seqio.Create(ctx, path)
	if err != nil {
		return err
	}
	w := tsv.NewWriter(out)
	w.WriteString(SequenceColumn)
	w.WriteString(sample)
	err = w.EndLine()
	for i := 0; err == nil && i < len(rows); i++ {
		r := rows[i]
		if r.Seq == "" || r.Count < 0 {
			err = errors.E(errors.Invalid, fmt.Sprintf("%s: bad row %d: %+v", path, i, r))
			break
		}
		w.WriteString(r.Seq)
		w.WriteInt64(r.Count)
		err = w.EndLine()
	}
	if err == nil {
		err = w.Flush()
	}
	if err != nil {
		out.Discard(ctx)
		return errors.E(err, "write table", path)
	}
	return out.Close(ctx)
}

// Scanner streams the rows of a per-sample table. The header is checked when
// the table is opened.
type Scanner struct {
	path   string
	sample string
	in     *seqio.Reader
	r      *tsv.Reader
	line   int
	row    Row
	err    error
}

// OpenTable opens the table at path and checks that its header is
// "sequence<TAB>sample".
func OpenTable(ctx context.Context, path, sample string) (*Scanner, error) {
	in, err := seqio.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	s := &Scanner{path: path, sample: sample, in: in, r: tsv.NewReader(in)}
	s.r.FieldsPerRecord = -1
	s.r.LazyQuotes = true
	header, err := s.next()
	if err == io.EOF {
		err = errors.E(errors.Invalid, fmt.Sprintf("%s: missing header row", path))
	}
	if err == nil {
		err = s.checkHeader(header)
	}
	if err != nil {
		_ = in.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Scanner) checkHeader(header []string) error {
	if len(header) != 2 {
		return errors.E(errors.Invalid, fmt.Sprintf("%s:1: header has %d columns, want 2", s.path, len(header)))
	}
	if header[0] != SequenceColumn {
		return errors.E(errors.Invalid, fmt.Sprintf("%s:1: first column is %q, want %q", s.path, header[0], SequenceColumn))
	}
	if header[1] != s.sample {
		return errors.E(errors.Integrity, fmt.Sprintf("%s:1: table is for sample %q, want %q", s.path, header[1], s.sample))
	}
	return nil
}

func (s *Scanner) next() ([]string, error) {
	rec, err := s.r.Reader.Read()
	if err == io.EOF {
		return nil, err
	}
	s.line++
	if err != nil {
		return nil, errors.E(errors.Invalid, err, fmt.Sprintf("%s:%d", s.path, s.line))
	}
	return rec, nil
}

// Scan reads the next row. It returns false at the end of the table or on
// error; Err distinguishes the two.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	rec, err := s.next()
	if err != nil {
		s.err = err
		return false
	}
	if len(rec) != 2 {
		s.err = errors.E(errors.Invalid, fmt.Sprintf("%s:%d: row has %d columns, want 2", s.path, s.line, len(rec)))
		return false
	}
	if rec[0] == "" {
		s.err = errors.E(errors.Invalid, fmt.Sprintf("%s:%d: empty sequence", s.path, s.line))
		return false
	}
	count, err := strconv.ParseInt(rec[1], 10, 64)
	if err != nil || count < 0 {
		s.err = errors.E(errors.Invalid, fmt.Sprintf("%s:%d: count %q is not a non-negative integer", s.path, s.line, rec[1]))
		return false
	}
	s.row = Row{Seq: rec[0], Count: count}
	return true
}

// Row returns the row read by the last successful Scan.
func (s *Scanner) Row() Row { return s.row }

// Err returns the error that stopped scanning, if any.
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// Close releases the underlying file.
func (s *Scanner) Close(ctx context.Context) error { return s.in.Close(ctx) }

// ReadTable reads a whole per-sample table.
func ReadTable(ctx context.Context, path, sample string) (rows []Row, err error) {
	s, err := OpenTable(ctx, path, sample)
	if err != nil {
		return nil, err
	}
	defer func() {
		if e := s.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	for s.Scan() {
		rows = append(rows, s.Row())
	}
	return rows, s.Err()
}
