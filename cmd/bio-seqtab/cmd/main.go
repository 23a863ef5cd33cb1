// Package cmd implements the bio-seqtab command tree.
package cmd

import (
	"fmt"
	golog "log"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/seqtab/engine"
	"github.com/grailbio/seqtab/pipeline"
	"v.io/x/lib/cmdline"
)

func newCmdRun() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "run",
		Short:    "Run the whole pipeline from a YAML configuration",
		ArgsName: "config.yaml",
		Long: `
Run reconciles, combines, deduplicates and clusters the reads of every sample
in the configuration, builds per-sample count tables, and merges them into the
global catalog and summary in configured sample order.`,
	}
	parallelism := cmd.Flags.Int("parallelism", 0, "Number of samples processed at once. Overrides the configuration if positive.")
	workDir := cmd.Flags.String("work-dir", "", "Directory for per-sample intermediates. Overrides the configuration if set.")
	outDir := cmd.Flags.String("out-dir", "", "Directory for the catalog and tables. Overrides the configuration if set.")
	check := cmd.Flags.Bool("check", false, "Validate the configuration and print the sample plan without running.")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("run takes one configuration path, but got %v", argv)
		}
		ctx := vcontext.Background()
		opts, err := pipeline.LoadOpts(ctx, argv[0])
		if err != nil {
			return err
		}
		if *parallelism > 0 {
			opts.Parallelism = *parallelism
		}
		if *workDir != "" {
			opts.WorkDir = *workDir
		}
		if *outDir != "" {
			opts.OutDir = *outDir
		}
		cfg, err := pipeline.NewConfig(opts)
		if err != nil {
			return err
		}
		if *check {
			for _, s := range cfg.Samples() {
				fmt.Fprintf(env.Stdout, "%s\t%s\t%s\t%s\t%s\n", s.Name, s.Paired.R1(), s.Paired.R2(), s.Work.Dir, s.Work.Table)
			}
			return nil
		}
		for _, tool := range requiredTools(opts) {
			if !engine.Available(tool) {
				return fmt.Errorf("run: %s not found", tool)
			}
		}
		res, err := pipeline.Run(ctx, cfg, opts.Engines(engine.ExecRunner{}))
		if err != nil {
			log.Error.Printf("run: %v", err)
			return err
		}
		for _, t := range res.Totals {
			log.Printf("%s: %d", t.Sample, t.Total)
		}
		log.Printf("catalog: %s", res.Outputs.Catalog)
		return nil
	})
	return cmd
}

func requiredTools(opts pipeline.Opts) []string {
	tools := []string{opts.Cluster.Path}
	if opts.Dedup.Engine == "seqkit" {
		tools = append(tools, opts.Dedup.Path)
	}
	return tools
}

// Run runs the command named by os.Args.
func Run() {
	golog.SetFlags(golog.Ldate | golog.Ltime | golog.Lmicroseconds | golog.Lshortfile)
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "bio-seqtab",
			Short:    "Build sequence count tables and the global sequence catalog",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdRun(),
				newCmdReconcile(),
				newCmdCombine(),
				newCmdDedup(),
				newCmdBuildTable(),
				newCmdMerge(),
				newCmdCheck(),
				newCmdIndex(),
				newCmdProperty("composition", "Compute length and GC content of catalog sequences"),
				newCmdProperty("complexity", "Compute homopolymer and entropy measures of catalog sequences"),
				newCmdAnnotate(),
			},
		})
}
