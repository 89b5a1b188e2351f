package solver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ohowland/cgc_energymodel/internal/pkg/lp"
)

// CBC runs the COIN-OR CBC command-line solver. The problem is exchanged as
// an LP file and read back from CBC's solution file.
type CBC struct{}

func (CBC) Name() string { return "cbc" }

// Solve implements Solver.
func (c CBC) Solve(ctx context.Context, p *lp.Problem, opts Options) (*lp.Solution, error) {
	exe := opts.Executable
	if exe == "" {
		exe = "cbc"
	}
	path, err := exec.LookPath(exe)
	if err != nil {
		return nil, SolverUnavailableError{Solver: c.Name(), Err: err}
	}

	dir := opts.KeepDir
	if dir == "" {
		dir, err = os.MkdirTemp("", "cbc-")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(dir)
	}
	lpFile := filepath.Join(dir, "model.lp")
	solFile := filepath.Join(dir, "model.sol")

	f, err := os.Create(lpFile)
	if err != nil {
		return nil, err
	}
	if err := lp.WriteLP(f, p, lp.GenericNames); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	args := []string{lpFile}
	if opts.TimeLimit > 0 {
		args = append(args, "sec", strconv.FormatFloat(opts.TimeLimit.Seconds(), 'f', -1, 64))
	}
	args = append(args, "solve", "solu", solFile)

	cmd := exec.CommandContext(ctx, path, args...)
	out, err := cmd.CombinedOutput()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		log.Printf("[CBC] %s\n", out)
		return nil, fmt.Errorf("cbc: %w", err)
	}

	sol, err := os.Open(solFile)
	if err != nil {
		return nil, fmt.Errorf("cbc: reading solution: %w", err)
	}
	defer sol.Close()
	return parseSolution(sol, p)
}

// parseSolution reads a CBC solution file. Columns are named x<j>; columns
// CBC leaves out are zero.
func parseSolution(r io.Reader, p *lp.Problem) (*lp.Solution, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return nil, fmt.Errorf("cbc: empty solution file")
	}
	header := strings.TrimSpace(scanner.Text())
	sol := &lp.Solution{Status: parseStatus(header), X: make([]float64, p.NumCols())}

	if i := strings.Index(header, "objective value"); i >= 0 {
		v, err := strconv.ParseFloat(strings.TrimSpace(header[i+len("objective value"):]), 64)
		if err == nil {
			sol.Objective = v
		}
	}

	for scanner.Scan() {
		fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(scanner.Text()), "**"))
		if len(fields) < 3 {
			continue
		}
		name := fields[1]
		if !strings.HasPrefix(name, "x") {
			continue
		}
		j, err := strconv.Atoi(name[1:])
		if err != nil || j < 0 || j >= p.NumCols() {
			return nil, fmt.Errorf("cbc: unknown column %q", name)
		}
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("cbc: column %s: %w", name, err)
		}
		sol.X[j] = v
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for j := range sol.X {
		if p.ColLower[j] == p.ColUpper[j] {
			sol.X[j] = p.ColLower[j]
		}
		sol.X[j] = math.Max(p.ColLower[j], math.Min(p.ColUpper[j], sol.X[j]))
	}
	return sol, nil
}

func parseStatus(header string) lp.Status {
	h := strings.ToLower(header)
	switch {
	case strings.HasPrefix(h, "optimal"):
		return lp.Optimal
	case strings.Contains(h, "infeasible"):
		return lp.Infeasible
	case strings.Contains(h, "unbounded"):
		return lp.Unbounded
	case strings.HasPrefix(h, "stopped on time"):
		return lp.TimeLimit
	default:
		return lp.Error
	}
}
