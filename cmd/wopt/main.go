package main

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/woptproject/wopt/binary"
	"github.com/woptproject/wopt/ir"
	"github.com/woptproject/wopt/passes"
	"github.com/woptproject/wopt/validate"
)

var version = "<unknown>"

var optLevels = []string{"O0", "O1", "O2", "O3", "O4", "Os", "Oz"}

// translateArgs maps the conventional single-dash optimization flags
// (-O2, -Os) onto the double-dash flags cobra understands.
func translateArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		translated := a
		for _, lvl := range optLevels {
			if a == "-"+lvl {
				translated = "--" + lvl
				break
			}
		}
		out = append(out, translated)
	}
	return out
}

type options struct {
	output        string
	validateEach  bool
	printAfter    bool
	timings       string
	verbose       bool
	levelFlags    map[string]*bool
	passFlags     map[string]*bool
	orderedPasses []string
	level         string
}

// resolveOrder recovers the command-line order of --<pass> flags and
// the last optimization level, which cobra's flag set does not
// preserve.
func (o *options) resolveOrder(args []string) {
	for _, a := range args {
		name := a
		for len(name) > 0 && name[0] == '-' {
			name = name[1:]
		}
		if _, ok := o.passFlags[name]; ok {
			o.orderedPasses = append(o.orderedPasses, name)
			continue
		}
		for _, lvl := range optLevels {
			if name == lvl {
				o.level = lvl
			}
		}
	}
}

func newRootCommand(fs afero.Fs, args []string) *cobra.Command {
	opts := &options{
		levelFlags: make(map[string]*bool),
		passFlags:  make(map[string]*bool),
	}
	args = translateArgs(args)

	cmd := &cobra.Command{
		Use:           "wopt INPUT",
		Short:         "wopt WebAssembly optimizer",
		Long:          "wopt - read a WebAssembly module, optimize it, write it back out",
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, positional []string) error {
			opts.resolveOrder(args)
			return run(fs, opts, positional[0])
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the optimized module to this path")
	cmd.Flags().BoolVar(&opts.validateEach, "validate", false, "validate the module after every pass")
	cmd.Flags().BoolVar(&opts.printAfter, "print-after-each", false, "log module statistics after every pass")
	cmd.Flags().StringVar(&opts.timings, "timings", "", "write a per-pass timing report (CSV) to this path")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	for _, lvl := range optLevels {
		opts.levelFlags[lvl] = cmd.Flags().Bool(lvl, false, fmt.Sprintf("run the %s pass bundle", lvl))
	}
	for _, name := range passes.Names() {
		opts.passFlags[name] = cmd.Flags().Bool(name, false, "run the "+name+" pass")
	}

	cmd.SetArgs(args)
	return cmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func run(fs afero.Fs, opts *options, input string) error {
	log, err := newLogger(opts.verbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	data, err := afero.ReadFile(fs, input)
	if err != nil {
		return err
	}

	var readOpts []binary.Option
	if opts.verbose {
		readOpts = append(readOpts, binary.WithLogger(log))
	}
	m, err := binary.ReadModule(data, readOpts...)
	if err != nil {
		return fmt.Errorf("reading %s: %w", input, err)
	}
	defer m.Dispose()

	if err := validate.ValidateModule(m); err != nil {
		return fmt.Errorf("validating %s: %w", input, err)
	}

	runner := passes.NewRunner()
	runner.Logger = log
	runner.ValidateAfterEach = opts.validateEach
	if opts.printAfter {
		runner.AfterPass = func(name string, m *ir.Module) {
			log.Info("pass applied",
				zap.String("pass", name),
				zap.Int("functions", len(m.Functions)),
				zap.Int("nodes", ir.CountNodes(m)))
		}
	}

	if opts.level != "" {
		if err := runner.AddBundle(opts.level); err != nil {
			return err
		}
	}
	for _, name := range opts.orderedPasses {
		if err := runner.AddByName(name); err != nil {
			return err
		}
	}

	if err := runner.Run(m); err != nil {
		return err
	}

	out, err := binary.WriteModule(m)
	if err != nil {
		return err
	}
	log.Info("optimized",
		zap.String("input", input),
		zap.Int("size_in", len(data)),
		zap.Int("size_out", len(out)))

	if opts.output != "" {
		if err := afero.WriteFile(fs, opts.output, out, 0o644); err != nil {
			return err
		}
	}

	if opts.timings != "" {
		f, err := fs.Create(opts.timings)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := runner.WriteTimings(f); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	cmd := newRootCommand(afero.NewOsFs(), os.Args[1:])
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
