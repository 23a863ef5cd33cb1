// Package fastq reads and writes FASTQ read streams. Records are passed
// through unmodified; the only fields interpreted are the ID (for mate
// orientation and pairing) and the sequence.
package fastq

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrShort reports a record cut off by the end of the stream.
	ErrShort = errors.New("short FASTQ file")
	// ErrInvalid reports a record that is not four well-formed lines.
	ErrInvalid = errors.New("invalid FASTQ file")
	// ErrDiscordant reports paired streams that disagree on the number or
	// the names of their reads.
	ErrDiscordant = errors.New("discordant FASTQ pairs")
)

// ParseError locates a scanning error. It wraps ErrShort or ErrInvalid.
type ParseError struct {
	// Line is the 1-based line at which the error was detected.
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %v", e.Line, e.Msg, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// maxLineLen bounds a single FASTQ line. Long-read data can exceed the
// bufio.Scanner default of 64KiB.
const maxLineLen = 64 << 20

// A Read is a FASTQ record: ID line (with '@'), sequence, separator line
// (with '+'), and quality string.
type Read struct {
	ID, Seq, Unk, Qual string
}

// Field selects the Read fields a Scanner fills in.
type Field uint

const (
	// ID causes the Read.ID field to be filled
	ID Field = 1 << iota
	// Seq causes the Read.Seq field to be filled
	Seq
	// Unk causes the Read.Unk field to be filled
	Unk
	// Qual causes the Read.Qual field to be filled
	Qual
	// All equals ID|Seq|Unk|Qual.
	All = ID | Seq | Unk | Qual
)

// Scanner reads FASTQ records one at a time. Every record is checked for an
// '@' ID line, a '+' separator and a quality string as long as the sequence,
// whichever fields are requested. Scanners are not safe for concurrent use.
type Scanner struct {
	b      *bufio.Scanner
	fields Field
	line   int
	n      int64
	err    error
	done   bool
}

// NewScanner returns a Scanner reading from r that fills the given fields.
func NewScanner(r io.Reader, fields Field) *Scanner {
	b := bufio.NewScanner(r)
	b.Buffer(nil, maxLineLen)
	return &Scanner{b: b, fields: fields}
}

// next advances to the next line, with any trailing '\r' removed.
func (s *Scanner) next() ([]byte, bool) {
	if !s.b.Scan() {
		return nil, false
	}
	s.line++
	l := s.b.Bytes()
	if n := len(l); n > 0 && l[n-1] == '\r' {
		l = l[:n-1]
	}
	return l, true
}

func (s *Scanner) fail(msg string, err error) bool {
	s.err = &ParseError{Line: s.line, Msg: msg, Err: err}
	return false
}

// Scan reads the next record into read. It returns false at the end of the
// stream or on error, and never returns true again afterwards; Err tells
// the two apart.
func (s *Scanner) Scan(read *Read) bool {
	if s.done || s.err != nil {
		return false
	}
	var lines [4][]byte
	for i := range lines {
		l, ok := s.next()
		if !ok {
			if err := s.b.Err(); err != nil {
				s.err = err
				return false
			}
			if i == 0 {
				s.done = true
				return false
			}
			return s.fail("truncated record", ErrShort)
		}
		lines[i] = l
		if i == 0 {
			if len(l) == 0 || l[0] != '@' {
				return s.fail("ID line must start with '@'", ErrInvalid)
			}
			if s.fields&ID != 0 {
				read.ID = string(l)
			}
			continue
		}
		switch i {
		case 1:
			if s.fields&Seq != 0 {
				read.Seq = string(l)
			}
		case 2:
			if len(l) == 0 || l[0] != '+' {
				return s.fail("separator line must start with '+'", ErrInvalid)
			}
			if s.fields&Unk != 0 {
				read.Unk = string(l)
			}
		case 3:
			if len(l) != len(lines[1]) {
				return s.fail(fmt.Sprintf("%d quality values for %d bases", len(l), len(lines[1])), ErrInvalid)
			}
			if s.fields&Qual != 0 {
				read.Qual = string(l)
			}
		}
	}
	s.n++
	return true
}

// N returns the number of records scanned so far.
func (s *Scanner) N() int64 { return s.n }

// Err returns the error that stopped scanning, or nil at a clean end of
// stream.
func (s *Scanner) Err() error { return s.err }

// PairScanner reads R1 and R2 streams in lockstep and checks that both hold
// the same templates in the same order.
type PairScanner struct {
	r1, r2 *Scanner
	err    error
}

// NewPairScanner returns a PairScanner over r1 and r2. The ID field is
// always read, since pairing is checked on it.
func NewPairScanner(r1, r2 io.Reader, fields Field) *PairScanner {
	return &PairScanner{
		r1: NewScanner(r1, fields|ID),
		r2: NewScanner(r2, fields|ID),
	}
}

// Scan reads the next pair into r1 and r2, with the same contract as
// Scanner.Scan.
func (p *PairScanner) Scan(r1, r2 *Read) bool {
	if p.err != nil {
		return false
	}
	ok1 := p.r1.Scan(r1)
	ok2 := p.r2.Scan(r2)
	switch {
	case ok1 != ok2:
		p.err = fmt.Errorf("R1 has %d records, R2 has %d: %w", p.r1.N(), p.r2.N(), ErrDiscordant)
		return false
	case ok1 && Template(r1.ID) != Template(r2.ID):
		p.err = fmt.Errorf("record %d: %s and %s are not mates: %w", p.r1.N(), r1.ID, r2.ID, ErrDiscordant)
		return false
	}
	return ok1
}

// N returns the number of pairs scanned so far.
func (p *PairScanner) N() int64 { return p.r1.N() }

// Err returns the first error of either stream, or the pairing error.
func (p *PairScanner) Err() error {
	if err := p.r1.Err(); err != nil {
		return err
	}
	if err := p.r2.Err(); err != nil {
		return err
	}
	return p.err
}
