package cmd

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/seqtab/cluster"
	"github.com/grailbio/seqtab/combine"
	"github.com/grailbio/seqtab/dedup"
	"github.com/grailbio/seqtab/encoding/fasta"
	"github.com/grailbio/seqtab/encoding/fastq"
	"github.com/grailbio/seqtab/encoding/seqio"
	"github.com/grailbio/seqtab/engine"
	"github.com/grailbio/seqtab/property"
	"github.com/grailbio/seqtab/reconcile"
	"github.com/grailbio/seqtab/seqtable"
	"v.io/x/lib/cmdline"
)

// reconciledPaths names the reconcile outputs under prefix, e.g.
// prefix.singleton.R1.fastq.gz.
func reconciledPaths(prefix, ext string) reconcile.Output {
	var out reconcile.Output
	for _, o := range reconcile.Origins {
		for _, m := range []fastq.Mate{fastq.Mate1, fastq.Mate2} {
			out[o][m] = prefix + "." + o.String() + "." + m.String() + ext
		}
	}
	return out
}

func newCmdReconcile() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "reconcile",
		Short:    "Split singleton reads by mate orientation",
		ArgsName: "singletons asymmetric outprefix",
		Long: `
Reconcile reads the true-singleton and asymmetric-singleton streams (FASTQ or
BAM) and writes four files, outprefix.{singleton,asymmetric}.{R1,R2}.fastq.gz.`,
	}
	ext := cmd.Flags.String("ext", ".fastq.gz", "Output file extension")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 3 {
			return fmt.Errorf("reconcile takes singletons asymmetric outprefix, but got %v", argv)
		}
		ctx := vcontext.Background()
		c, err := reconcile.Reconcile(ctx, reconcile.Input{argv[0], argv[1]}, reconciledPaths(argv[2], *ext))
		if err != nil {
			return err
		}
		log.Printf("reconcile: %d reads, %d skipped", c.TotalOut(), c.Skipped[0]+c.Skipped[1])
		return nil
	})
	return cmd
}

func newCmdCombine() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "combine",
		Short:    "Concatenate paired survivors with reconciled singletons",
		ArgsName: "r1 r2 reconciledprefix outprefix",
		Long: `
Combine writes outprefix.unified.{R1,R2} and outprefix.singletons.{R1,R2} from
the paired survivors and the files "reconcile" wrote under reconciledprefix.`,
	}
	ext := cmd.Flags.String("ext", ".fastq.gz", "Extension of the reconciled and output files")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 4 {
			return fmt.Errorf("combine takes r1 r2 reconciledprefix outprefix, but got %v", argv)
		}
		ctx := vcontext.Background()
		prefix := argv[3]
		in := combine.Input{Paired: combine.Pair{argv[0], argv[1]}, Reconciled: reconciledPaths(argv[2], *ext)}
		out := combine.Output{
			Unified:    combine.Pair{prefix + ".unified.R1" + *ext, prefix + ".unified.R2" + *ext},
			Singletons: combine.Pair{prefix + ".singletons.R1" + *ext, prefix + ".singletons.R2" + *ext},
		}
		c, err := combine.Combine(ctx, in, out)
		if err != nil {
			return err
		}
		log.Printf("combine: R1 %d, R2 %d reads", c.Unified[0], c.Unified[1])
		return nil
	})
	return cmd
}

func newCmdDedup() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "dedup",
		Short:    "Collapse reads with identical sequences",
		ArgsName: "in out",
	}
	engineFlag := cmd.Flags.String("engine", "builtin", "Collapser, builtin or seqkit")
	path := cmd.Flags.String("seqkit", "seqkit", "seqkit executable")
	threads := cmd.Flags.Int("threads", 1, "seqkit threads")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("dedup takes in out, but got %v", argv)
		}
		var c dedup.Collapser
		switch *engineFlag {
		case "builtin":
			c = dedup.Builtin{}
		case "seqkit":
			c = dedup.Seqkit{Opts: dedup.SeqkitOpts{Path: *path, Threads: *threads}, Runner: engine.ExecRunner{}}
		default:
			return fmt.Errorf("dedup: unknown engine %q", *engineFlag)
		}
		stats, err := c.Collapse(vcontext.Background(), argv[0], argv[1])
		if err != nil {
			return err
		}
		log.Printf("dedup: kept %d of %d reads", stats.Out, stats.In)
		return nil
	})
	return cmd
}

func newCmdBuildTable() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "build-table",
		Short:    "Build a per-sample count table from clustering output",
		ArgsName: "sample repseqs.fasta membership.tsv table.tsv",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 4 {
			return fmt.Errorf("build-table takes sample repseqs membership table, but got %v", argv)
		}
		_, total, err := seqtable.Build(vcontext.Background(), argv[0],
			cluster.Output{RepSeqs: argv[1], Membership: argv[2]}, argv[3])
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Stdout, "%s\t%d\n", argv[0], total)
		return nil
	})
	return cmd
}

// parseTables parses "sample=path" arguments, keeping their order.
func parseTables(args []string) ([]seqtable.Table, error) {
	tables := make([]seqtable.Table, 0, len(args))
	seen := map[string]bool{}
	for _, arg := range args {
		i := strings.IndexByte(arg, '=')
		if i <= 0 || i == len(arg)-1 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("table argument %q: want sample=path", arg))
		}
		t := seqtable.Table{Sample: arg[:i], Path: arg[i+1:]}
		if err := seqtable.ValidSampleName(t.Sample); err != nil {
			return nil, err
		}
		if seen[t.Sample] {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("sample %s listed twice", t.Sample))
		}
		seen[t.Sample] = true
		tables = append(tables, t)
	}
	return tables, nil
}

func newCmdMerge() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "merge",
		Short:    "Merge per-sample tables into the global catalog",
		ArgsName: "sample=table.tsv...",
		Long: `
Merge assigns every table row the global ID sample:count:localIndex and writes
the catalog FASTA and the per-sample summary. Samples are merged in argument
order.`,
	}
	catalog := cmd.Flags.String("catalog", "catalog.fasta", "Output catalog path")
	summary := cmd.Flags.String("summary", "summary.tsv", "Output summary path")
	index := cmd.Flags.Bool("index", false, "Also write catalog.fai")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 {
			return fmt.Errorf("merge takes at least one sample=path argument")
		}
		tables, err := parseTables(argv)
		if err != nil {
			return err
		}
		opts := seqtable.MergeOpts{Catalog: *catalog, Summary: *summary}
		if *index {
			opts.Index = *catalog + ".fai"
		}
		totals, err := seqtable.Merge(vcontext.Background(), tables, opts)
		if err != nil {
			return err
		}
		log.Printf("merge: %d samples", len(totals))
		return nil
	})
	return cmd
}

func newCmdCheck() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "check",
		Short:    "Verify a catalog against its summary",
		ArgsName: "catalog.fasta summary.tsv",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("check takes catalog summary, but got %v", argv)
		}
		return seqtable.Check(vcontext.Background(), argv[0], argv[1])
	})
	return cmd
}

func newCmdIndex() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "index",
		Short:    "Write a faidx index of a FASTA file",
		ArgsName: "in.fasta",
	}
	outFlag := cmd.Flags.String("out", "", "Index path. Defaults to in.fasta.fai")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) (err error) {
		if len(argv) != 1 {
			return fmt.Errorf("index takes one FASTA path, but got %v", argv)
		}
		ctx := vcontext.Background()
		outPath := *outFlag
		if outPath == "" {
			outPath = argv[0] + ".fai"
		}
		in, err := seqio.Open(ctx, argv[0])
		if err != nil {
			return err
		}
		defer func() {
			if e := in.Close(ctx); e != nil && err == nil {
				err = e
			}
		}()
		out, err := seqio.Create(ctx, outPath)
		if err != nil {
			return err
		}
		if err := fasta.GenerateIndex(out, in); err != nil {
			out.Discard(ctx)
			return err
		}
		return out.Close(ctx)
	})
	return cmd
}

func newCmdProperty(name, short string) *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     name,
		Short:    short,
		ArgsName: "catalog.fasta out.tsv",
	}
	fn := property.Composition
	if name == "complexity" {
		fn = property.Complexity
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("%s takes catalog out, but got %v", name, argv)
		}
		return property.Write(vcontext.Background(), argv[0], argv[1], fn)
	})
	return cmd
}

func newCmdAnnotate() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "annotate",
		Short:    "Join two property tables on their id column",
		ArgsName: "first.tsv second.tsv out.tsv",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 3 {
			return fmt.Errorf("annotate takes first second out, but got %v", argv)
		}
		return property.Annotate(vcontext.Background(), argv[0], argv[1], argv[2])
	})
	return cmd
}
