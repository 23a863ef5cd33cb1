// Package seqio opens and creates the read and table files exchanged between
// pipeline stages. Paths go through grailbio/base/file, so local and remote
// locations are handled alike. Inputs are decompressed according to their
// path extension; outputs ending in ".gz" are gzip-compressed.
package seqio

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/klauspost/compress/gzip"
)

// Reader is an opened input file.
type Reader struct {
	io.Reader
	f   file.File
	dec io.ReadCloser
}

// Open opens path for reading.
func Open(ctx context.Context, path string) (*Reader, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	r := &Reader{f: f, Reader: f.Reader(ctx)}
	if u, _ := compress.NewReaderPath(r.Reader, f.Name()); u != nil {
		r.dec = u
		r.Reader = u
	}
	return r, nil
}

// Name returns the path the reader was opened with.
func (r *Reader) Name() string { return r.f.Name() }

// Close closes the file.
func (r *Reader) Close(ctx context.Context) error {
	once := errors.Once{}
	if r.dec != nil {
		once.Set(r.dec.Close())
	}
	once.Set(r.f.Close(ctx))
	return once.Err()
}

// Writer is a buffered output file. Data become visible under the path once
// Close succeeds; Discard removes whatever was written.
type Writer struct {
	io.Writer
	f  file.File
	gz *gzip.Writer
	bw *bufio.Writer
}

// Create creates (or truncates) path for writing.
func Create(ctx context.Context, path string) (*Writer, error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "create", path)
	}
	w := &Writer{f: f}
	out := f.Writer(ctx)
	if strings.HasSuffix(path, ".gz") {
		w.gz = gzip.NewWriter(out)
		out = w.gz
	}
	w.bw = bufio.NewWriterSize(out, 1<<20)
	w.Writer = w.bw
	return w, nil
}

// Name returns the path being written.
func (w *Writer) Name() string { return w.f.Name() }

// Close flushes and closes the file. If flushing fails, the file is
// discarded and the flush error returned.
func (w *Writer) Close(ctx context.Context) error {
	once := errors.Once{}
	once.Set(w.bw.Flush())
	if w.gz != nil {
		once.Set(w.gz.Close())
	}
	if err := once.Err(); err != nil {
		w.Discard(ctx)
		return errors.E(err, "write", w.f.Name())
	}
	if err := w.f.Close(ctx); err != nil {
		return errors.E(err, "close", w.f.Name())
	}
	return nil
}

// Discard abandons the file. Nothing is left at its path, including any
// output from an earlier run.
func (w *Writer) Discard(ctx context.Context) {
	name := w.f.Name()
	if err := w.f.Close(ctx); err != nil {
		log.Debug.Printf("discard %s: close: %v", name, err)
	}
	if err := file.Remove(ctx, name); err != nil {
		log.Debug.Printf("discard %s: remove: %v", name, err)
	}
}
