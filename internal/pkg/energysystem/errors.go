package energysystem

import (
	"errors"
	"fmt"
)

// ErrEmptyLabel is returned when a node is added without a label.
var ErrEmptyLabel = errors.New("energysystem: node label is empty")

// DuplicateLabelError reports a label that is already taken.
type DuplicateLabelError struct {
	Label string
}

func (e DuplicateLabelError) Error() string {
	return fmt.Sprintf("energysystem: duplicate node label %q", e.Label)
}

// UnknownNodeError reports a flow whose peer is not part of the energy system.
type UnknownNodeError struct {
	Label string
	Flow  FlowKey
}

func (e UnknownNodeError) Error() string {
	return fmt.Sprintf("energysystem: flow %v references unknown node %q", e.Flow, e.Label)
}

// DuplicateFlowError reports a second flow between the same ordered node pair.
type DuplicateFlowError struct {
	Flow FlowKey
}

func (e DuplicateFlowError) Error() string {
	return fmt.Sprintf("energysystem: flow %v declared twice", e.Flow)
}

// InvalidFlowError reports a flow that cannot be part of any model.
type InvalidFlowError struct {
	Flow   FlowKey
	Reason string
}

func (e InvalidFlowError) Error() string {
	return fmt.Sprintf("energysystem: invalid flow %v: %s", e.Flow, e.Reason)
}

// DimensionMismatchError reports a per-step value whose length differs from
// the time index.
type DimensionMismatchError struct {
	Flow  FlowKey
	Field string
	Got   int
	Want  int
}

func (e DimensionMismatchError) Error() string {
	return fmt.Sprintf("energysystem: %s of flow %v has %d entries, time index has %d", e.Field, e.Flow, e.Got, e.Want)
}

// CheckValue returns a DimensionMismatchError when v is a series whose
// length is not n.
func CheckValue(key FlowKey, field string, v Value, n int) error {
	if v.fits(n) {
		return nil
	}
	return DimensionMismatchError{Flow: key, Field: field, Got: v.Len(), Want: n}
}
