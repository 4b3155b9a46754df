package gencomo

import (
	"fmt"
	"strconv"
)

// ValidationError reports a malformed or incomplete input graph.
type ValidationError struct {
	Element   string // "node", "edge" or "graph"
	Key       string // node identifier, or "a--b" for an edge
	Attribute string // offending attribute, empty when the element itself is invalid
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.Attribute == "" {
		return fmt.Sprintf("gencomo: invalid %s %q: %s", e.Element, e.Key, e.Reason)
	}
	return fmt.Sprintf("gencomo: %s %q attribute %q: %s", e.Element, e.Key, e.Attribute, e.Reason)
}

// UnknownParameterError is returned when overriding a parameter which does not exist.
type UnknownParameterError struct {
	Key string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("gencomo: unknown parameter %q", e.Key)
}

// ParameterRangeError is returned when a parameter value is outside of its valid range.
type ParameterRangeError struct {
	Key        string
	Value      float64
	Constraint string // e.g. ">= 0"
}

func (e *ParameterRangeError) Error() string {
	return fmt.Sprintf("gencomo: parameter %q=%s must be %s", e.Key, strconv.FormatFloat(e.Value, 'g', -1, 64), e.Constraint)
}

// UnknownCompartmentError is returned when referencing a compartment which is not in the graph.
type UnknownCompartmentError struct {
	ID string
}

func (e *UnknownCompartmentError) Error() string {
	return fmt.Sprintf("gencomo: unknown compartment %q", e.ID)
}

// InvalidStimulusError is returned for a malformed stimulus.
type InvalidStimulusError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidStimulusError) Error() string {
	return fmt.Sprintf("gencomo: invalid stimulus %s=%s: %s", e.Field, e.Value, e.Reason)
}

// AssemblyError is returned when the equation system cannot be built.
type AssemblyError struct {
	Reason string
}

func (e *AssemblyError) Error() string {
	return "gencomo: cannot assemble equations: " + e.Reason
}

// IntegrationError wraps a numerical failure with the simulation context.
// Partial holds the samples computed before the failure, if any.
type IntegrationError struct {
	Method  string
	Time    float64
	Err     error
	Partial *Trajectory
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("gencomo: %s integration failed at t=%g ms: %s", e.Method, e.Time, e.Err)
}

func (e *IntegrationError) Unwrap() error {
	return e.Err
}
