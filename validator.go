package uprouter

import "errors"

// Validator accumulates validation errors found while checking a frame's
// size and field invariants, so a ValidateSize-style method can report more
// than one problem without allocating on the happy path.
type Validator struct {
	accum []error
}

// ResetErr clears any accumulated errors, readying the Validator for reuse.
func (v *Validator) ResetErr() { v.accum = v.accum[:0] }

// AddError records a validation failure.
func (v *Validator) AddError(err error) { v.accum = append(v.accum, err) }

// HasError reports whether any error has been recorded.
func (v *Validator) HasError() bool { return len(v.accum) > 0 }

// Err returns nil, the sole error, or a joined error, depending on how many
// were recorded.
func (v *Validator) Err() error {
	switch len(v.accum) {
	case 0:
		return nil
	case 1:
		return v.accum[0]
	default:
		return errors.Join(v.accum...)
	}
}

// ErrPop returns the first recorded error, or nil if none, and clears all
// recorded errors.
func (v *Validator) ErrPop() error {
	if len(v.accum) == 0 {
		return nil
	}
	err := v.accum[0]
	v.accum = v.accum[:0]
	return err
}
