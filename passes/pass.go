// Package passes holds the optimization passes and the runner that
// sequences them over a module.
package passes

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jszwec/csvutil"
	"go.uber.org/zap"

	"github.com/woptproject/wopt/ir"
	"github.com/woptproject/wopt/validate"
)

// Pass is a semantics-preserving transformation over a module. A pass
// that finds nothing to do leaves the module unchanged; impossibility
// is not an error.
type Pass interface {
	Name() string
	Run(m *ir.Module)
}

// NewPassFunc constructs a fresh pass instance.
type NewPassFunc func() Pass

var registry = map[string]NewPassFunc{}

// Register adds a pass constructor under its name. Called from init
// functions; duplicate names panic.
func Register(name string, f NewPassFunc) {
	if _, ok := registry[name]; ok {
		panic("passes: duplicate pass name " + name)
	}
	registry[name] = f
}

// Lookup returns the constructor for a registered pass.
func Lookup(name string) (NewPassFunc, bool) {
	f, ok := registry[name]
	return f, ok
}

// Names lists all registered passes, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Bundle expands an optimization level into its pass sequence.
func Bundle(level string) ([]string, bool) {
	o1 := []string{"simplify-identity", "precompute", "vacuum", "dce"}
	o2 := append(append([]string{}, o1...),
		"untee", "rse", "local-cse", "code-pushing",
		"remove-unused-names", "merge-blocks", "simplify-control-flow")
	o3 := append(append([]string{}, o2...),
		"licm", "memory-optimization", "precompute", "vacuum")

	switch level {
	case "O0":
		return []string{}, true
	case "O1":
		return o1, true
	case "O2":
		return o2, true
	case "O3":
		return o3, true
	case "O4":
		return append(append([]string{}, o3...), "coalesce-locals"), true
	case "Os":
		return append(append([]string{}, o2...), "coalesce-locals", "dce", "vacuum"), true
	case "Oz":
		return append(append([]string{}, o3...), "coalesce-locals", "dce", "vacuum"), true
	}
	return nil, false
}

// PassError names the pass that broke the module when the runner
// validates between passes.
type PassError struct {
	Pass string
	Err  error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("pass %q broke the module: %v", e.Pass, e.Err)
}

func (e *PassError) Unwrap() error {
	return e.Err
}

// TimingRecord is one row of the runner's timing report.
type TimingRecord struct {
	Pass     string        `csv:"pass"`
	Duration time.Duration `csv:"duration_ns"`
	Nodes    int           `csv:"nodes"`
}

// Runner executes an ordered list of passes sequentially on one
// module. It never reorders passes and never re-enters a pass
// concurrently.
type Runner struct {
	// ValidateAfterEach runs the validator between passes and reports
	// the first pass that causes a regression.
	ValidateAfterEach bool

	// Logger receives per-pass progress at debug level. Defaults to a
	// no-op logger.
	Logger *zap.Logger

	// AfterPass, if set, is called after every pass with the current
	// module state.
	AfterPass func(name string, m *ir.Module)

	passes  []Pass
	records []TimingRecord
}

// NewRunner returns an empty runner.
func NewRunner() *Runner {
	return &Runner{Logger: zap.NewNop()}
}

// Add appends a pass.
func (r *Runner) Add(p Pass) {
	r.passes = append(r.passes, p)
}

// AddByName appends a registered pass.
func (r *Runner) AddByName(name string) error {
	f, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("passes: unknown pass %q", name)
	}
	r.Add(f())
	return nil
}

// AddBundle appends an optimization level's pass sequence.
func (r *Runner) AddBundle(level string) error {
	names, ok := Bundle(level)
	if !ok {
		return fmt.Errorf("passes: unknown optimization level %q", level)
	}
	for _, name := range names {
		if err := r.AddByName(name); err != nil {
			return err
		}
	}
	return nil
}

// Run executes the installed passes in order. With ValidateAfterEach
// set, the module is checked before the first pass and after every
// pass; a post-pass failure is reported as a PassError naming the
// offender.
func (r *Runner) Run(m *ir.Module) error {
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if r.ValidateAfterEach {
		if err := validate.ValidateModule(m); err != nil {
			return fmt.Errorf("module invalid before passes: %w", err)
		}
	}

	for _, p := range r.passes {
		start := time.Now()
		p.Run(m)
		elapsed := time.Since(start)

		nodes := ir.CountNodes(m)
		r.records = append(r.records, TimingRecord{
			Pass:     p.Name(),
			Duration: elapsed,
			Nodes:    nodes,
		})
		log.Debug("pass finished",
			zap.String("pass", p.Name()),
			zap.Duration("elapsed", elapsed),
			zap.Int("nodes", nodes))

		if r.ValidateAfterEach {
			if err := validate.ValidateModule(m); err != nil {
				return &PassError{Pass: p.Name(), Err: err}
			}
		}
		if r.AfterPass != nil {
			r.AfterPass(p.Name(), m)
		}
	}
	return nil
}

// Timings returns the per-pass timing records collected so far.
func (r *Runner) Timings() []TimingRecord {
	return r.records
}

// WriteTimings serializes the timing records as CSV.
func (r *Runner) WriteTimings(w io.Writer) error {
	data, err := csvutil.Marshal(r.records)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// RunNames is a convenience wrapper: build a runner for the given
// pass names and execute it.
func RunNames(m *ir.Module, names ...string) error {
	r := NewRunner()
	for _, name := range names {
		if err := r.AddByName(name); err != nil {
			return err
		}
	}
	return r.Run(m)
}
