package world

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Code is the response code of an update operation.
type Code int

// Update response codes.
const (
	Success Code = iota
	DuplicateBody
	MissingBody
	CorruptShape
	UnknownBody
)

// DuplicateBodyError reports an ADD with an already-used name.
type DuplicateBodyError struct{ Name string }

func (e *DuplicateBodyError) Error() string {
	return fmt.Sprintf("body %q already exists", e.Name)
}

// MissingBodyError reports an operation on an absent body or link.
type MissingBodyError struct{ Name string }

func (e *MissingBodyError) Error() string {
	return fmt.Sprintf("body %q does not exist", e.Name)
}

// CorruptShapeError reports an undecodable or unsupported shape.
type CorruptShapeError struct {
	Name   string
	Detail string
}

func (e *CorruptShapeError) Error() string {
	return fmt.Sprintf("body %q has a corrupt shape: %s", e.Name, e.Detail)
}

// UnknownBodyError reports a body description of an unsupported kind.
type UnknownBodyError struct {
	Name   string
	Detail string
}

func (e *UnknownBodyError) Error() string {
	return fmt.Sprintf("body %q is not understood: %s", e.Name, e.Detail)
}

// CodeOf maps an operation result to its response code.
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}
	var dup *DuplicateBodyError
	if errors.As(err, &dup) {
		return DuplicateBody
	}
	var missing *MissingBodyError
	if errors.As(err, &missing) {
		return MissingBody
	}
	var corrupt *CorruptShapeError
	if errors.As(err, &corrupt) {
		return CorruptShape
	}
	return UnknownBody
}

func atan2(y, x float64) float64 { return math.Atan2(y, x) }

func asin(x float64) float64 { return math.Asin(x) }

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
