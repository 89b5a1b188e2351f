package main

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ohowland/cgc_energymodel/internal/pkg/config"
	"github.com/ohowland/cgc_energymodel/internal/pkg/results"
	"github.com/ohowland/cgc_energymodel/internal/pkg/solver"
	"gotest.tools/v3/assert"
)

func noOverrides() options {
	return options{limit: math.NaN()}
}

func solveDefault(t *testing.T, limit float64) results.Result {
	sc, err := loadScenario("")
	assert.NilError(t, err)
	run := config.DefaultRun()
	run.EmissionLimit = limit

	m, err := buildModel(sc, run)
	assert.NilError(t, err)
	_, err = m.Solve(context.Background(), run.Solver)
	assert.NilError(t, err)

	res, err := results.Extract(m)
	assert.NilError(t, err)
	return res
}

func TestLoadRunOverrides(t *testing.T) {
	opts := noOverrides()
	run, err := loadRun(opts)
	assert.NilError(t, err)
	assert.Equal(t, run.Solver, "simplex")
	assert.Equal(t, run.EmissionLimit, 75.0)

	opts.solver = "cbc"
	opts.limit = 60
	opts.lp = "out.lp"
	run, err = loadRun(opts)
	assert.NilError(t, err)
	assert.Equal(t, run.Solver, "cbc")
	assert.Equal(t, run.EmissionLimit, 60.0)
	assert.Equal(t, run.WriteLP, "out.lp")
}

func TestEmissionLimitBinds(t *testing.T) {
	res := solveDefault(t, 75)

	oil := res.Emissions(emissionFactor, "oil")
	lignite := res.Emissions(emissionFactor, "lignite")
	assert.Assert(t, math.Abs(oil+lignite-75) < 1e-6, "oil %v lignite %v", oil, lignite)
	assert.Assert(t, oil > 0)
	assert.DeepEqual(t, emitters(res, emissionFactor), []string{"lignite", "oil"})
}

func TestLooseLimitIsMeritOrder(t *testing.T) {
	res := solveDefault(t, 1000)
	assert.Assert(t, math.Abs(res.Objective-880) < 1e-6, "objective %v", res.Objective)
	assert.Assert(t, res.Emissions(emissionFactor, "oil") < 1e-6)
}

func TestPrintEmissions(t *testing.T) {
	res := solveDefault(t, 1000)
	var out bytes.Buffer
	printEmissions(&out, res)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, len(lines), 6)
	assert.Equal(t, lines[0], "emissions through lignite consumption")
	assert.Equal(t, lines[2], "emissions through oil consumption")
	assert.Equal(t, lines[4], "total emissions")
}

func TestExecute(t *testing.T) {
	dir := t.TempDir()
	lpPath := filepath.Join(dir, "model.lp")

	opts := noOverrides()
	opts.run = "./testdata/run.json"
	opts.lp = lpPath

	var out bytes.Buffer
	assert.NilError(t, execute(context.Background(), opts, &out))
	assert.Assert(t, strings.Contains(out.String(), "total emissions"))

	lpFile, err := os.ReadFile(lpPath)
	assert.NilError(t, err)
	assert.Assert(t, strings.Contains(string(lpFile), "MyBlock.emission_constr"))
}

func TestExecuteUnknownSolver(t *testing.T) {
	opts := noOverrides()
	opts.solver = "glpk"
	err := execute(context.Background(), opts, &bytes.Buffer{})
	var unavailable solver.SolverUnavailableError
	assert.Assert(t, errors.As(err, &unavailable))
}

func TestExecuteInfeasible(t *testing.T) {
	opts := noOverrides()
	opts.limit = 10
	err := execute(context.Background(), opts, &bytes.Buffer{})
	var infeasible solver.InfeasibleError
	assert.Assert(t, errors.As(err, &infeasible))
}
