package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/seqtab/cluster"
	"github.com/grailbio/seqtab/dedup"
	"github.com/grailbio/seqtab/encoding/seqio"
	"github.com/grailbio/seqtab/engine"
	"github.com/grailbio/seqtab/seqtable"
	"gopkg.in/yaml.v3"
)

// Opts is the run configuration as written by the user.
type Opts struct {
	// Samples lists the inputs. Their order is the catalog order.
	Samples []SampleOpts `yaml:"samples"`
	// WorkDir holds per-sample intermediates. It must be a local directory
	// since the external engines read and write it directly.
	WorkDir string `yaml:"work_dir"`
	// OutDir receives the catalog, summary and property tables.
	OutDir string `yaml:"out_dir"`
	// Parallelism bounds the number of samples processed at once.
	Parallelism int `yaml:"parallelism"`
	// Compress gzips the intermediate read files.
	Compress bool `yaml:"compress"`
	// Index writes a faidx index next to the catalog.
	Index bool `yaml:"index"`
	// Properties writes the composition and complexity tables and their join.
	Properties bool `yaml:"properties"`

	Dedup   DedupOpts   `yaml:"dedup"`
	Cluster ClusterOpts `yaml:"cluster"`
}

// SampleOpts names one sample's inputs.
type SampleOpts struct {
	Name string `yaml:"name"`
	// R1 and R2 are the reads whose mates both survived host filtering.
	R1 string `yaml:"r1"`
	R2 string `yaml:"r2"`
	// Singletons holds reads whose mate was removed by the host filter.
	Singletons string `yaml:"singletons"`
	// Asymmetric holds reads left unpaired by asymmetric filter decisions.
	Asymmetric string `yaml:"asymmetric"`
}

// DedupOpts selects the exact-duplicate collapser.
type DedupOpts struct {
	// Engine is "builtin" or "seqkit".
	Engine  string `yaml:"engine"`
	Path    string `yaml:"path"`
	Threads int    `yaml:"threads"`
}

// ClusterOpts configures the similarity clusterer.
type ClusterOpts struct {
	// Engine must be "mmseqs".
	Engine   string  `yaml:"engine"`
	Path     string  `yaml:"path"`
	MinSeqID float64 `yaml:"min_seq_id"`
	Coverage float64 `yaml:"coverage"`
	CovMode  int     `yaml:"cov_mode"`
	Threads  int     `yaml:"threads"`
}

// DefaultOpts are the defaults LoadOpts starts from.
var DefaultOpts = Opts{
	Parallelism: 4,
	Index:       true,
	Properties:  true,
	Dedup: DedupOpts{
		Engine:  "builtin",
		Path:    "seqkit",
		Threads: 1,
	},
	Cluster: ClusterOpts{
		Engine:   "mmseqs",
		Path:     "mmseqs",
		MinSeqID: 0.97,
		Coverage: 0.8,
		Threads:  1,
	},
}

// LoadOpts reads a YAML configuration file on top of DefaultOpts. Unknown
// keys are rejected. The result is not validated.
func LoadOpts(ctx context.Context, path string) (opts Opts, err error) {
	in, err := seqio.Open(ctx, path)
	if err != nil {
		return opts, err
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	data, err := ioutil.ReadAll(in)
	if err != nil {
		return opts, errors.E(err, "read", path)
	}
	opts = DefaultOpts
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && err != io.EOF {
		return opts, errors.E(errors.Invalid, err, path)
	}
	return opts, nil
}

// Validate checks opts for errors a run would otherwise hit midway.
func (o Opts) Validate() error {
	var msgs []string
	fail := func(format string, args ...interface{}) {
		msgs = append(msgs, fmt.Sprintf(format, args...))
	}
	if len(o.Samples) == 0 {
		fail("no samples")
	}
	names := map[string]bool{}
	for i, s := range o.Samples {
		if err := seqtable.ValidSampleName(s.Name); err != nil {
			fail("sample %d: %v", i, err)
		} else if names[s.Name] {
			fail("sample %s: duplicate name", s.Name)
		}
		names[s.Name] = true
		for _, f := range []struct{ key, val string }{
			{"r1", s.R1}, {"r2", s.R2}, {"singletons", s.Singletons}, {"asymmetric", s.Asymmetric},
		} {
			if f.val == "" {
				fail("sample %s: %s not set", s.Name, f.key)
			}
		}
	}
	if o.WorkDir == "" {
		fail("work_dir not set")
	} else if strings.Contains(o.WorkDir, "://") {
		fail("work_dir %s: must be local", o.WorkDir)
	}
	if o.OutDir == "" {
		fail("out_dir not set")
	}
	if o.Parallelism < 1 {
		fail("parallelism %d: must be at least 1", o.Parallelism)
	}
	switch o.Dedup.Engine {
	case "builtin":
	case "seqkit":
		if o.Dedup.Path == "" {
			fail("dedup.path not set")
		}
	default:
		fail("dedup.engine %q: want builtin or seqkit", o.Dedup.Engine)
	}
	if o.Dedup.Threads < 0 {
		fail("dedup.threads %d: must not be negative", o.Dedup.Threads)
	}
	if o.Cluster.Engine != "mmseqs" {
		fail("cluster.engine %q: want mmseqs", o.Cluster.Engine)
	}
	if o.Cluster.Path == "" {
		fail("cluster.path not set")
	}
	if !(o.Cluster.MinSeqID > 0 && o.Cluster.MinSeqID <= 1) {
		fail("cluster.min_seq_id %v: must be in (0, 1]", o.Cluster.MinSeqID)
	}
	if !(o.Cluster.Coverage > 0 && o.Cluster.Coverage <= 1) {
		fail("cluster.coverage %v: must be in (0, 1]", o.Cluster.Coverage)
	}
	if o.Cluster.CovMode < 0 || o.Cluster.CovMode > 5 {
		fail("cluster.cov_mode %d: must be in [0, 5]", o.Cluster.CovMode)
	}
	if o.Cluster.Threads < 0 {
		fail("cluster.threads %d: must not be negative", o.Cluster.Threads)
	}
	if len(msgs) > 0 {
		return errors.E(errors.Invalid, "invalid configuration: "+strings.Join(msgs, "; "))
	}
	return nil
}

// Engines returns the dedup and cluster engines selected by o, running
// external tools with r.
func (o Opts) Engines(r engine.Runner) Engines {
	var e Engines
	if o.Dedup.Engine == "seqkit" {
		e.Dedup = dedup.Seqkit{
			Opts:   dedup.SeqkitOpts{Path: o.Dedup.Path, Threads: o.Dedup.Threads},
			Runner: r,
		}
	} else {
		e.Dedup = dedup.Builtin{}
	}
	e.Cluster = cluster.MMseqs{
		Opts: cluster.MMseqsOpts{
			Path:     o.Cluster.Path,
			MinSeqID: o.Cluster.MinSeqID,
			Coverage: o.Cluster.Coverage,
			CovMode:  o.Cluster.CovMode,
			Threads:  o.Cluster.Threads,
		},
		Runner: r,
	}
	return e
}
