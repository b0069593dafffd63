package amc

import "errors"

// Error kinds returned by the engine and the calculator. Errors are wrapped
// as "Op: kind: detail"; test them with errors.Is.
var (
	// ErrConfiguration marks invalid engine parameters or malformed inputs.
	ErrConfiguration = errors.New("configuration error")
	// ErrModelMismatch marks a model whose composition does not fit the bond.
	ErrModelMismatch = errors.New("model mismatch")
	// ErrNumericalDegeneracy marks a singular or ill-conditioned regression.
	// Reduce the basis order or add samples.
	ErrNumericalDegeneracy = errors.New("numerical degeneracy")
	// ErrInternalConsistency marks a time missing from an expected grid.
	ErrInternalConsistency = errors.New("internal consistency error")
	// ErrIncompatibleVersion marks an encoded calculator written by a newer schema.
	ErrIncompatibleVersion = errors.New("incompatible calculator version")
)
