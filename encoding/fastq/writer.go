package fastq

import "io"

// Writer writes FASTQ records. It is not safe for concurrent use.
type Writer struct {
	w   io.Writer
	buf []byte
	n   int64
}

// NewWriter returns a Writer that writes records to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write writes r as four lines in a single call to the underlying writer.
// An empty separator line is written as "+".
func (w *Writer) Write(r *Read) error {
	unk := r.Unk
	if unk == "" {
		unk = "+"
	}
	w.buf = w.buf[:0]
	for _, l := range [...]string{r.ID, r.Seq, unk, r.Qual} {
		w.buf = append(w.buf, l...)
		w.buf = append(w.buf, '\n')
	}
	if _, err := w.w.Write(w.buf); err != nil {
		return err
	}
	w.n++
	return nil
}

// N returns the number of records written.
func (w *Writer) N() int64 { return w.n }
