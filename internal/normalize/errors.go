package normalize

import (
	"errors"
	"fmt"
)

// StructuralDecodingError is returned when a payload does not have the
// top-level shape an entity requires. It is the only error this package
// returns; every other anomaly is defaulted or skipped.
type StructuralDecodingError struct {
	Entity string
	Reason string
}

func (e *StructuralDecodingError) Error() string {
	return fmt.Sprintf("cannot decode %s: %s", e.Entity, e.Reason)
}

// IsStructural reports whether err is, or wraps, a StructuralDecodingError.
func IsStructural(err error) bool {
	var se *StructuralDecodingError
	return errors.As(err, &se)
}

func structural(entity, reason string) error {
	return &StructuralDecodingError{Entity: entity, Reason: reason}
}
