package model

import (
	"errors"
	"fmt"

	"github.com/ohowland/cgc_energymodel/internal/pkg/energysystem"
)

// ErrNotSolved is returned when solution values are requested before a
// successful solve.
var ErrNotSolved = errors.New("model: not solved")

// ErrAlreadySolved is returned when a solved model is changed or solved
// again.
var ErrAlreadySolved = errors.New("model: already solved")

// MissingFlowBoundsError reports a flow with no nominal value that no
// structural constraint ties to its neighbours.
type MissingFlowBoundsError struct {
	Flow energysystem.FlowKey
}

func (e MissingFlowBoundsError) Error() string {
	return fmt.Sprintf("model: flow %v has no nominal value and is not bounded by a bus or converter", e.Flow)
}

// UnknownFlowKeyError reports a flow key absent from the variable space.
// Block is empty for lookups outside of a block registration.
type UnknownFlowKeyError struct {
	Block string
	Flow  energysystem.FlowKey
}

func (e UnknownFlowKeyError) Error() string {
	if e.Block == "" {
		return fmt.Sprintf("model: unknown flow %v", e.Flow)
	}
	return fmt.Sprintf("model: block %q references unknown flow %v", e.Block, e.Flow)
}

// TimestepError reports a time step outside 0..N-1.
type TimestepError struct {
	Step int
	Len  int
}

func (e TimestepError) Error() string {
	return fmt.Sprintf("model: time step %d outside [0, %d)", e.Step, e.Len)
}

// DuplicateBlockError reports a block name that is already registered.
type DuplicateBlockError struct {
	Name string
}

func (e DuplicateBlockError) Error() string {
	return fmt.Sprintf("model: block %q already registered", e.Name)
}

// UnknownSetError reports a constraint referring to a set its block does not
// declare.
type UnknownSetError struct {
	Block string
	Set   string
}

func (e UnknownSetError) Error() string {
	return fmt.Sprintf("model: block %q has no set %q", e.Block, e.Set)
}

// UnknownVariableError reports a reference to an undeclared auxiliary
// variable.
type UnknownVariableError struct {
	Block string
	Name  string
}

func (e UnknownVariableError) Error() string {
	return fmt.Sprintf("model: block %q has no variable %q", e.Block, e.Name)
}
