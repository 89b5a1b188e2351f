package solver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ohowland/cgc_energymodel/internal/pkg/lp"
)

// Solver is an adapter to an external LP/MIP solver.
type Solver interface {
	Name() string
	Solve(ctx context.Context, p *lp.Problem, opts Options) (*lp.Solution, error)
}

// Options configure a single solve.
type Options struct {
	TimeLimit  time.Duration
	Tolerance  float64
	Executable string
	KeepDir    string
}

// Option sets a field of Options.
type Option func(*Options)

func defaultOptions() Options {
	return Options{Tolerance: 1e-9}
}

// WithTimeLimit bounds the wall time of the solve.
func WithTimeLimit(d time.Duration) Option {
	return func(o *Options) {
		o.TimeLimit = d
	}
}

// WithTolerance sets the numeric tolerance of in-process solvers.
func WithTolerance(tol float64) Option {
	return func(o *Options) {
		o.Tolerance = tol
	}
}

// WithExecutable overrides the binary used by command-line solvers.
func WithExecutable(path string) Option {
	return func(o *Options) {
		o.Executable = path
	}
}

// WithKeepFiles keeps the files exchanged with command-line solvers in dir.
func WithKeepFiles(dir string) Option {
	return func(o *Options) {
		o.KeepDir = dir
	}
}

// SolverUnavailableError reports a solver that is not registered or cannot
// be started.
type SolverUnavailableError struct {
	Solver string
	Err    error
}

func (e SolverUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("solver %q unavailable: %v", e.Solver, e.Err)
	}
	return fmt.Sprintf("solver %q unavailable", e.Solver)
}

func (e SolverUnavailableError) Unwrap() error {
	return e.Err
}

// InfeasibleError reports that no point satisfies every constraint.
type InfeasibleError struct {
	Solver string
}

func (e InfeasibleError) Error() string {
	return fmt.Sprintf("solver %q: problem is infeasible", e.Solver)
}

// UnboundedError reports an objective without a finite optimum.
type UnboundedError struct {
	Solver string
}

func (e UnboundedError) Error() string {
	return fmt.Sprintf("solver %q: problem is unbounded", e.Solver)
}

var registry = struct {
	mux     sync.Mutex
	solvers map[string]Solver
}{
	solvers: map[string]Solver{
		"simplex": Simplex{},
		"cbc":     CBC{},
	},
}

// Register makes s available under s.Name(), replacing any previous solver
// of that name.
func Register(s Solver) {
	registry.mux.Lock()
	defer registry.mux.Unlock()
	registry.solvers[s.Name()] = s
}

// Lookup returns the solver registered under name.
func Lookup(name string) (Solver, error) {
	registry.mux.Lock()
	defer registry.mux.Unlock()
	s, ok := registry.solvers[name]
	if !ok {
		return nil, SolverUnavailableError{Solver: name, Err: errors.New("not registered")}
	}
	return s, nil
}

// Names returns the registered solver names.
func Names() []string {
	registry.mux.Lock()
	defer registry.mux.Unlock()
	names := make([]string, 0, len(registry.solvers))
	for name := range registry.solvers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run dispatches p to the named solver. A solution that is not optimal is
// returned together with an error describing its status; nothing is retried.
func Run(ctx context.Context, name string, p *lp.Problem, opts ...Option) (*lp.Solution, error) {
	s, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if e, ok := p.InconsistentEmptyRow(); ok {
		log.Printf("[Solver] %s: %v\n", name, e)
		return &lp.Solution{Status: lp.Infeasible}, InfeasibleError{Solver: name}
	}

	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.TimeLimit)
		defer cancel()
	}

	log.Printf("[Solver] %s: %d columns, %d rows\n", name, p.NumCols(), p.NumRows())
	start := time.Now()
	sol, err := s.Solve(ctx, p, cfg)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &lp.Solution{Status: lp.TimeLimit}, fmt.Errorf("solver %q: %w", name, err)
		}
		return nil, err
	}
	log.Printf("[Solver] %s: %v after %v\n", name, sol.Status, time.Since(start))

	switch sol.Status {
	case lp.Optimal:
		if len(sol.X) != p.NumCols() {
			return nil, fmt.Errorf("solver %q returned %d values for %d columns", name, len(sol.X), p.NumCols())
		}
		return sol, nil
	case lp.Infeasible:
		return sol, InfeasibleError{Solver: name}
	case lp.Unbounded:
		return sol, UnboundedError{Solver: name}
	case lp.TimeLimit:
		return sol, fmt.Errorf("solver %q: %w", name, context.DeadlineExceeded)
	default:
		return sol, fmt.Errorf("solver %q: terminated with status %v", name, sol.Status)
	}
}
