package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/grailbio/seqtab/combine"
	"github.com/grailbio/seqtab/encoding/fastq"
	"github.com/grailbio/seqtab/reconcile"
)

// Sample is one sample's inputs and the paths of its intermediates.
type Sample struct {
	Name string
	// Paired are the paired host-filter survivors.
	Paired combine.Pair
	// Singletons are the unoriented singleton streams, by origin.
	Singletons reconcile.Input
	Work       SamplePaths
}

// SamplePaths names the files each per-sample stage writes.
type SamplePaths struct {
	Dir        string
	Reconciled reconcile.Output
	Combined   combine.Output
	Dedup      string
	// ClusterPrefix is passed to the clusterer.
	ClusterPrefix string
	Table         string
}

// Outputs names the files of the merge and annotation stages.
type Outputs struct {
	Catalog     string
	Summary     string
	Index       string // empty if no index is written
	Composition string // empty if no properties are written
	Complexity  string
	Properties  string
}

// Config is a validated run configuration. It is built once by NewConfig and
// read by every stage; nothing modifies it afterwards.
type Config struct {
	outDir      string
	samples     []Sample
	outputs     Outputs
	parallelism int
}

// NewConfig validates opts and derives every stage path from them.
func NewConfig(opts Opts) (Config, error) {
	if err := opts.Validate(); err != nil {
		return Config{}, err
	}
	ext := ".fastq"
	if opts.Compress {
		ext += ".gz"
	}
	c := Config{outDir: opts.OutDir, parallelism: opts.Parallelism}
	for _, s := range opts.Samples {
		dir := filepath.Join(opts.WorkDir, s.Name)
		path := func(name string) string { return filepath.Join(dir, s.Name+"."+name) }
		sample := Sample{
			Name:   s.Name,
			Paired: combine.Pair{s.R1, s.R2},
			Work: SamplePaths{
				Dir:           dir,
				Dedup:         path("dedup" + ext),
				ClusterPrefix: path("clu"),
				Table:         path("seqtab.tsv"),
			},
		}
		sample.Singletons[reconcile.TrueSingleton] = s.Singletons
		sample.Singletons[reconcile.AsymmetricSingleton] = s.Asymmetric
		for _, o := range reconcile.Origins {
			for _, m := range []fastq.Mate{fastq.Mate1, fastq.Mate2} {
				sample.Work.Reconciled[o][m] = path(o.String() + "." + m.String() + ext)
			}
		}
		for _, m := range []fastq.Mate{fastq.Mate1, fastq.Mate2} {
			sample.Work.Combined.Unified[m] = path("unified." + m.String() + ext)
			sample.Work.Combined.Singletons[m] = path("singletons." + m.String() + ext)
		}
		c.samples = append(c.samples, sample)
	}
	c.outputs = Outputs{
		Catalog: join(opts.OutDir, "catalog.fasta"),
		Summary: join(opts.OutDir, "summary.tsv"),
	}
	if opts.Index {
		c.outputs.Index = c.outputs.Catalog + ".fai"
	}
	if opts.Properties {
		c.outputs.Composition = join(opts.OutDir, "composition.tsv")
		c.outputs.Complexity = join(opts.OutDir, "complexity.tsv")
		c.outputs.Properties = join(opts.OutDir, "properties.tsv")
	}
	return c, nil
}

// Samples returns the samples in catalog order.
func (c Config) Samples() []Sample { return append([]Sample(nil), c.samples...) }

// Outputs returns the run outputs.
func (c Config) Outputs() Outputs { return c.outputs }

// Parallelism returns the number of samples processed at once.
func (c Config) Parallelism() int { return c.parallelism }

// join appends name to dir, which may be a local path or a URL.
func join(dir, name string) string {
	if strings.Contains(dir, "://") {
		return strings.TrimSuffix(dir, "/") + "/" + name
	}
	return filepath.Join(dir, name)
}
