package fasta

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// faiEntry is one line of a samtools faidx index.
type faiEntry struct {
	name      string
	length    int64
	offset    int64
	lineBases int64
	lineWidth int64
	// short is set once a line narrower than lineBases has been seen; only
	// the last line of a record may be short.
	short bool
}

func (e *faiEntry) write(w *tsv.Writer) error {
	w.WriteString(e.name)
	w.WriteInt64(e.length)
	w.WriteInt64(e.offset)
	w.WriteInt64(e.lineBases)
	w.WriteInt64(e.lineWidth)
	return w.EndLine()
}

// add accounts for one sequence line: bases excludes the line terminator,
// width includes it.
func (e *faiEntry) add(bases, width int64) error {
	if e.lineWidth == 0 {
		e.lineBases, e.lineWidth = bases, width
	} else if e.short || bases > e.lineBases {
		return errors.E(errors.Invalid, fmt.Sprintf("fasta index: %s: uneven line lengths", e.name))
	}
	if bases < e.lineBases {
		e.short = true
	}
	e.length += bases
	return nil
}

// GenerateIndex writes a samtools faidx index (*.fai) for the FASTA read
// from in, so that catalog entries can be fetched by ID without rescanning
// the catalog. Each line is
//
//	<name> <length> <byte offset> <bases per line> <bytes per line>
//
// tab-separated (http://www.htslib.org/doc/faidx.html). Every line of a
// record but the last must have the same width. An empty input yields an
// empty index.
func GenerateIndex(out io.Writer, in io.Reader) error {
	var (
		w   = tsv.NewWriter(out)
		r   = bufio.NewReader(in)
		cur *faiEntry
		off int64
	)
	for {
		raw, err := r.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return err
		}
		off += int64(len(raw))
		line := bytes.TrimRight(raw, "\r\n")
		switch {
		case len(line) == 0:
		case line[0] == '>':
			if cur != nil {
				if e := cur.write(w); e != nil {
					return e
				}
			}
			name := bytes.Fields(line[1:])
			if len(name) == 0 {
				return errors.E(errors.Invalid, fmt.Sprintf("fasta index: unnamed record at byte %d", off-int64(len(raw))))
			}
			cur = &faiEntry{name: string(name[0]), offset: off}
		case cur == nil:
			return errors.E(errors.Invalid, "fasta index: sequence data before the first header")
		default:
			if e := cur.add(int64(len(line)), int64(len(raw))); e != nil {
				return e
			}
		}
		if err == io.EOF {
			break
		}
	}
	if cur != nil {
		if err := cur.write(w); err != nil {
			return err
		}
	}
	return w.Flush()
}
