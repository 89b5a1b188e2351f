package lp

// Status is the terminal state reported by a solver.
type Status int

const (
	NotSolved Status = iota
	Optimal
	Infeasible
	Unbounded
	TimeLimit
	Error
)

func (s Status) String() string {
	switch s {
	case NotSolved:
		return "not solved"
	case Optimal:
		return "optimal"
	case Infeasible:
		return "infeasible"
	case Unbounded:
		return "unbounded"
	case TimeLimit:
		return "time limit"
	default:
		return "error"
	}
}

// Solution is a per-column solution vector together with the solve status.
type Solution struct {
	Status    Status
	Objective float64
	X         []float64
}
