package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ohowland/cgc_energymodel/internal/pkg/solver"
)

// Datastreams holds the config file paths of the enabled result exporters.
// An empty path disables the exporter.
type Datastreams struct {
	MongoDB    string `json:"MongoDB"`
	NATS       string `json:"NATS"`
	SQL        string `json:"SQL"`
	Webservice string `json:"Webservice"`
}

// Run configures one model run.
type Run struct {
	Solver        string      `json:"Solver"`
	Executable    string      `json:"Executable"`
	TimeLimit     Duration    `json:"TimeLimit"`
	Tolerance     float64     `json:"Tolerance"`
	EmissionLimit float64     `json:"EmissionLimit"`
	Weighting     *bool       `json:"Weighting"`
	WriteLP       string      `json:"WriteLP"`
	Datastreams   Datastreams `json:"Datastreams"`
}

// DefaultRun solves with the in-process simplex and the emission limit of
// the power plant example.
func DefaultRun() Run {
	return Run{
		Solver:        "simplex",
		EmissionLimit: 75,
	}
}

// LoadRun reads a run file. Fields the file omits keep their defaults.
func LoadRun(path string) (Run, error) {
	jsonConfig, err := os.ReadFile(path)
	if err != nil {
		return Run{}, err
	}
	r := DefaultRun()
	if err := json.Unmarshal(jsonConfig, &r); err != nil {
		return Run{}, fmt.Errorf("config: %s: %w", path, err)
	}
	if r.Solver == "" {
		return Run{}, fmt.Errorf("config: %s: no solver", path)
	}
	if r.TimeLimit < 0 || r.Tolerance < 0 {
		return Run{}, fmt.Errorf("config: %s: negative time limit or tolerance", path)
	}
	return r, nil
}

// SolverOptions translates the run settings into solver options.
func (r Run) SolverOptions() []solver.Option {
	var opts []solver.Option
	if r.TimeLimit > 0 {
		opts = append(opts, solver.WithTimeLimit(time.Duration(r.TimeLimit)))
	}
	if r.Tolerance > 0 {
		opts = append(opts, solver.WithTolerance(r.Tolerance))
	}
	if r.Executable != "" {
		opts = append(opts, solver.WithExecutable(r.Executable))
	}
	return opts
}

// ObjectiveWeighting reports whether costs are weighted by step length.
func (r Run) ObjectiveWeighting() bool {
	return r.Weighting == nil || *r.Weighting
}
