// Package fasta contains code for reading and writing FASTA files.
// Clustering engines emit representative sequences as FASTA, and the
// global sequence catalog is written as FASTA, one record per catalog
// entry:
//
// >S1:5:0
// ACGT
// >S1:2:1
// TTTT
//
// Note: Sequence names are defined to be the stretch of characters excluding
// spaces immediately after '>'.  Any text appear after a space are ignored.
// For example, '>rep1 size=12' becomes 'rep1'.
package fasta

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const maxLineLen = 64 << 20

// Fasta represents FASTA-formatted data, consisting of a set of named
// sequences.
type Fasta interface {
	// Get returns the full sequence of the given name.
	Get(seqName string) (string, error)

	// Len returns the length of the given sequence.
	Len(seqName string) (uint64, error)

	// SeqNames returns the names of all sequences, in the order of appearance in
	// the FASTA file.
	SeqNames() []string
}

type fasta struct {
	seqs     map[string]string
	seqNames []string
}

// New creates a new Fasta that holds all the FASTA data from the given reader
// in memory. Duplicate sequence names are rejected, since callers key on them.
func New(r io.Reader) (Fasta, error) {
	f := &fasta{seqs: make(map[string]string)}
	sc := NewScanner(r)
	var rec Record
	for sc.Scan(&rec) {
		if _, ok := f.seqs[rec.Name]; ok {
			return nil, errors.Errorf("duplicate FASTA sequence name %q", rec.Name)
		}
		f.seqs[rec.Name] = rec.Seq
		f.seqNames = append(f.seqNames, rec.Name)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

// Get implements Fasta.Get().
func (f *fasta) Get(seqName string) (string, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return "", errors.Errorf("sequence not found: %s", seqName)
	}
	return s, nil
}

// Len implements Fasta.Len().
func (f *fasta) Len(seqName string) (uint64, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return 0, errors.Errorf("sequence not found: %s", seqName)
	}
	return uint64(len(s)), nil
}

// SeqNames implements Fasta.SeqNames().
func (f *fasta) SeqNames() []string {
	return f.seqNames
}

// Record is one FASTA entry. Multi-line sequences are joined.
type Record struct {
	Name string
	Seq  string
}

// Scanner reads FASTA records one at a time. It has the same contract as
// fastq.Scanner: Scan until it returns false, then check Err.
type Scanner struct {
	b          *bufio.Scanner
	err        error
	started    bool
	header     string // header line of the next record, without '>'
	haveHeader bool
	seq        strings.Builder
}

// NewScanner creates a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	b := bufio.NewScanner(r)
	b.Buffer(nil, maxLineLen)
	return &Scanner{b: b}
}

// Scan reads the next record into rec.
func (s *Scanner) Scan(rec *Record) bool {
	if s.err != nil {
		return false
	}
	if !s.started {
		s.started = true
		if !s.firstHeader() {
			return false
		}
	}
	if !s.haveHeader {
		s.err = io.EOF
		return false
	}
	header := s.header
	s.haveHeader = false
	s.seq.Reset()
	for s.b.Scan() {
		line := strings.TrimRight(s.b.Text(), "\r")
		if line == "" {
			continue
		}
		if line[0] == '>' {
			s.header, s.haveHeader = line[1:], true
			break
		}
		s.seq.WriteString(line)
	}
	if err := s.b.Err(); err != nil {
		s.err = errors.Wrap(err, "couldn't read FASTA data")
		return false
	}
	fields := strings.Fields(header)
	if len(fields) == 0 {
		s.err = errors.Errorf("malformed FASTA file: empty sequence name")
		return false
	}
	rec.Name = fields[0]
	rec.Seq = s.seq.String()
	return true
}

func (s *Scanner) firstHeader() bool {
	for s.b.Scan() {
		line := strings.TrimRight(s.b.Text(), "\r")
		if line == "" {
			continue
		}
		if line[0] != '>' {
			s.err = errors.Errorf("malformed FASTA file: sequence data before first header")
			return false
		}
		s.header, s.haveHeader = line[1:], true
		return true
	}
	if err := s.b.Err(); err != nil {
		s.err = errors.Wrap(err, "couldn't read FASTA data")
		return false
	}
	s.err = io.EOF
	return false
}

// Err returns the scanning error, if any.
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// Writer writes single-line FASTA records.
type Writer struct {
	w   *bufio.Writer
	err error
}

// NewWriter creates a FASTA writer on top of w. Flush must be called once
// all records are written.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 1<<20)}
}

// Write emits ">name\nseq\n".
func (w *Writer) Write(name, seq string) error {
	if w.err != nil {
		return w.err
	}
	for _, s := range []string{">", name, "\n", seq, "\n"} {
		if _, w.err = w.w.WriteString(s); w.err != nil {
			return w.err
		}
	}
	return nil
}

// Flush writes out buffered data.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}
