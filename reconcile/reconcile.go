package reconcile

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/seqtab/encoding/fastq"
	"github.com/grailbio/seqtab/encoding/seqio"
)

// Origin is the singleton class a stream came from.
type Origin int

const (
	// TrueSingleton reads lost their mate to host filtering.
	TrueSingleton Origin = iota
	// AsymmetricSingleton reads survived only one filtering path.
	AsymmetricSingleton
	numOrigins
)

// Origins lists the origin classes in combination order.
var Origins = [...]Origin{TrueSingleton, AsymmetricSingleton}

func (o Origin) String() string {
	switch o {
	case TrueSingleton:
		return "singleton"
	case AsymmetricSingleton:
		return "asymmetric"
	}
	return fmt.Sprintf("Origin(%d)", int(o))
}

// Input names the unpaired stream of each origin class. Paths ending in
// ".bam" are read as BAM, anything else as (optionally compressed) FASTQ.
type Input [numOrigins]string

// Output names the oriented files, indexed by origin then mate.
type Output [numOrigins][2]string

// Path returns the output file for the given origin and mate.
func (o Output) Path(origin Origin, mate fastq.Mate) string { return o[origin][mate] }

// Counts tallies the records read and written.
type Counts struct {
	// In is the number of records read per origin.
	In [numOrigins]int64
	// Out is the number of records written per origin and mate.
	Out [numOrigins][2]int64
	// Skipped counts secondary and supplementary BAM records per origin.
	// They repeat a primary record and are not reads in their own right.
	Skipped [numOrigins]int64
}

// TotalIn returns the total number of records read.
func (c Counts) TotalIn() int64 {
	var n int64
	for _, v := range c.In {
		n += v
	}
	return n
}

// TotalOut returns the total number of records written.
func (c Counts) TotalOut() int64 {
	var n int64
	for _, o := range c.Out {
		n += o[0] + o[1]
	}
	return n
}

// Reconcile splits both singleton streams of one sample. On error no output
// file is left behind.
func Reconcile(ctx context.Context, in Input, out Output) (Counts, error) {
	var c Counts
	for _, origin := range Origins {
		var err error
		c.In[origin], c.Out[origin], c.Skipped[origin], err = split(ctx, in[origin], out[origin])
		if err != nil {
			return c, errors.E(err, fmt.Sprintf("reconcile %s stream", origin))
		}
		log.Debug.Printf("reconcile: %s: %d records -> R1 %d, R2 %d", in[origin],
			c.In[origin], c.Out[origin][fastq.Mate1], c.Out[origin][fastq.Mate2])
	}
	if c.TotalIn() != c.TotalOut() {
		return c, errors.E(errors.Integrity,
			fmt.Sprintf("reconcile: read %d records but wrote %d", c.TotalIn(), c.TotalOut()))
	}
	return c, nil
}

// source yields the records of one singleton stream.
type source interface {
	next(r *fastq.Read) (fastq.Mate, bool, error)
	skipped() int64
}

func split(ctx context.Context, inPath string, outPaths [2]string) (in int64, out [2]int64, skipped int64, err error) {
	rd, err := seqio.Open(ctx, inPath)
	if err != nil {
		return
	}
	defer func() {
		if e := rd.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	var src source
	if strings.HasSuffix(inPath, ".bam") {
		var b *bamSource
		if b, err = newBAMSource(rd); err != nil {
			return
		}
		defer b.close()
		src = b
	} else {
		src = &fastqSource{sc: fastq.NewScanner(rd, fastq.All)}
	}

	var ws [2]*seqio.Writer
	discard := func() {
		for _, w := range ws {
			if w != nil {
				w.Discard(ctx)
			}
		}
	}
	for m := range ws {
		if ws[m], err = seqio.Create(ctx, outPaths[m]); err != nil {
			discard()
			return
		}
	}
	fw := [2]*fastq.Writer{fastq.NewWriter(ws[0]), fastq.NewWriter(ws[1])}
	var r fastq.Read
	for {
		mate, ok, e := src.next(&r)
		if e != nil {
			err = errors.E(errors.Invalid, e, fmt.Sprintf("%s: record %d", inPath, in+1))
			discard()
			return
		}
		if !ok {
			break
		}
		in++
		if err = fw[mate].Write(&r); err != nil {
			discard()
			return
		}
	}
	for m := range ws {
		out[m] = fw[m].N()
		if e := ws[m].Close(ctx); e != nil && err == nil {
			err = e
		}
	}
	skipped = src.skipped()
	return
}

type fastqSource struct {
	sc *fastq.Scanner
}

func (s *fastqSource) next(r *fastq.Read) (fastq.Mate, bool, error) {
	if !s.sc.Scan(r) {
		return 0, false, s.sc.Err()
	}
	m, err := r.Mate()
	return m, true, err
}

func (s *fastqSource) skipped() int64 { return 0 }

type bamSource struct {
	r    *bam.Reader
	nSkp int64
}

func newBAMSource(r io.Reader) (*bamSource, error) {
	br, err := bam.NewReader(r, 1)
	if err != nil {
		return nil, errors.E(errors.Invalid, err, "read BAM header")
	}
	return &bamSource{r: br}, nil
}

func (s *bamSource) next(r *fastq.Read) (fastq.Mate, bool, error) {
	for {
		rec, err := s.r.Read()
		if err == io.EOF {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
		if rec.Flags&(sam.Secondary|sam.Supplementary) != 0 {
			s.nSkp++
			continue
		}
		mate, err := bamMate(rec)
		if err != nil {
			return 0, true, err
		}
		toFASTQ(rec, mate, r)
		return mate, true, nil
	}
}

func (s *bamSource) skipped() int64 { return s.nSkp }

func (s *bamSource) close() {
	if err := s.r.Close(); err != nil {
		log.Debug.Printf("reconcile: close BAM reader: %v", err)
	}
}

func bamMate(rec *sam.Record) (fastq.Mate, error) {
	r1, r2 := rec.Flags&sam.Read1 != 0, rec.Flags&sam.Read2 != 0
	switch {
	case r1 && !r2:
		return fastq.Mate1, nil
	case r2 && !r1:
		return fastq.Mate2, nil
	}
	return 0, &fastq.ErrNoMate{ID: rec.Name}
}

// toFASTQ converts a BAM record the way "samtools fastq" does: reverse-strand
// records are reverse-complemented, and the mate is recorded as a /1 or /2
// suffix so the orientation survives downstream.
func toFASTQ(rec *sam.Record, mate fastq.Mate, r *fastq.Read) {
	seq := rec.Seq.Expand()
	qual := make([]byte, len(rec.Qual))
	for i, q := range rec.Qual {
		if q == 0xff {
			q = 0
		}
		qual[i] = q + 33
	}
	if len(qual) != len(seq) {
		qual = make([]byte, len(seq))
		for i := range qual {
			qual[i] = '!'
		}
	}
	if rec.Flags&sam.Reverse != 0 {
		revComp(seq)
		reverse(qual)
	}
	r.ID = fmt.Sprintf("@%s/%d", rec.Name, int(mate)+1)
	r.Seq = string(seq)
	r.Unk = "+"
	r.Qual = string(qual)
}

var complement = [256]byte{
	'A': 'T', 'C': 'G', 'G': 'C', 'T': 'A', 'N': 'N',
	'a': 't', 'c': 'g', 'g': 'c', 't': 'a', 'n': 'n',
	'R': 'Y', 'Y': 'R', 'K': 'M', 'M': 'K', 'S': 'S', 'W': 'W',
	'B': 'V', 'V': 'B', 'D': 'H', 'H': 'D', '=': '=',
}

func revComp(seq []byte) {
	reverse(seq)
	for i, b := range seq {
		if c := complement[b]; c != 0 {
			seq[i] = c
		}
	}
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
