package lp

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Naming selects how WriteLP names columns and rows.
type Naming int

const (
	// GenericNames writes x<j> and c<i>, which every LP reader accepts and
	// which map back to indices.
	GenericNames Naming = iota
	// ProblemNames writes the problem's own names, sanitised for the LP
	// format.
	ProblemNames
)

// WriteLP writes p in CPLEX LP format. Ranged rows are written as two rows.
// Rows without entries are left out; if one of them excludes 0, WriteLP
// fails with EmptyRowError instead.
func WriteLP(w io.Writer, p *Problem, naming Naming) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if e, ok := p.InconsistentEmptyRow(); ok {
		return e
	}
	cols, rows := names(p, naming)
	bw := bufio.NewWriter(w)

	if p.Maximize {
		fmt.Fprintln(bw, "Maximize")
	} else {
		fmt.Fprintln(bw, "Minimize")
	}
	fmt.Fprint(bw, " obj:")
	wrote := false
	for j, c := range p.ColCosts {
		if c != 0 {
			writeTerm(bw, c, cols[j])
			wrote = true
		}
	}
	if !wrote && len(cols) > 0 {
		writeTerm(bw, 0, cols[0])
	}
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "Subject To")
	for i, entries := range p.Rows() {
		lo, up := p.RowLower[i], p.RowUpper[i]
		if len(entries) == 0 || (math.IsInf(lo, -1) && math.IsInf(up, 1)) {
			continue
		}
		writeRow := func(name, sense string, rhs float64) {
			fmt.Fprintf(bw, " %s:", name)
			for _, nz := range entries {
				writeTerm(bw, nz.Val, cols[nz.Col])
			}
			fmt.Fprintf(bw, " %s %s\n", sense, formatFloat(rhs))
		}
		switch {
		case lo == up:
			writeRow(rows[i], "=", lo)
		case math.IsInf(lo, -1):
			writeRow(rows[i], "<=", up)
		case math.IsInf(up, 1):
			writeRow(rows[i], ">=", lo)
		default:
			writeRow(rows[i]+"_lo", ">=", lo)
			writeRow(rows[i]+"_up", "<=", up)
		}
	}

	// LP readers reject bounds on columns that appear nowhere else.
	appears := make([]bool, p.NumCols())
	for j, c := range p.ColCosts {
		appears[j] = c != 0 || (!wrote && j == 0)
	}
	for _, nz := range p.Nonzeros {
		if !math.IsInf(p.RowLower[nz.Row], -1) || !math.IsInf(p.RowUpper[nz.Row], 1) {
			appears[nz.Col] = true
		}
	}

	fmt.Fprintln(bw, "Bounds")
	for j := range p.ColCosts {
		if !appears[j] {
			continue
		}
		lo, up := p.ColLower[j], p.ColUpper[j]
		switch {
		case lo == up:
			fmt.Fprintf(bw, " %s = %s\n", cols[j], formatFloat(lo))
		case math.IsInf(lo, -1) && math.IsInf(up, 1):
			fmt.Fprintf(bw, " %s free\n", cols[j])
		case math.IsInf(up, 1):
			fmt.Fprintf(bw, " %s >= %s\n", cols[j], formatFloat(lo))
		default:
			fmt.Fprintf(bw, " %s <= %s <= %s\n", formatFloat(lo), cols[j], formatFloat(up))
		}
	}
	fmt.Fprintln(bw, "End")
	return bw.Flush()
}

func writeTerm(w io.Writer, coef float64, name string) {
	sign := "+"
	if coef < 0 {
		sign = "-"
		coef = -coef
	}
	fmt.Fprintf(w, " %s %s %s", sign, formatFloat(coef), name)
}

func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+inf"
	case math.IsInf(v, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
}

func names(p *Problem, naming Naming) ([]string, []string) {
	cols := make([]string, p.NumCols())
	rows := make([]string, p.NumRows())
	if naming == GenericNames {
		for j := range cols {
			cols[j] = "x" + strconv.Itoa(j)
		}
		for i := range rows {
			rows[i] = "c" + strconv.Itoa(i)
		}
		return cols, rows
	}

	used := make(map[string]bool)
	unique := func(name, fallback string) string {
		s := sanitize(name)
		if s == "" {
			s = fallback
		}
		if used[s] {
			s = s + "_" + fallback
		}
		used[s] = true
		return s
	}
	for j := range cols {
		cols[j] = unique(p.ColNames[j], "x"+strconv.Itoa(j))
	}
	for i := range rows {
		rows[i] = unique(p.RowNames[i], "c"+strconv.Itoa(i))
	}
	return cols, rows
}

// sanitize maps a name onto the LP format's identifier alphabet.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune("!\"#$%&()/,.;?@_`'{}|~", r):
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := b.String()
	if s == "" {
		return s
	}
	if c := s[0]; (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' {
		s = "_" + s
	}
	return s
}
