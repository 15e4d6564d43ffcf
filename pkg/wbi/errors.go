package wbi

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyFetch indicates the nav endpoint did not hand out signing keys.
	ErrKeyFetch = errors.New("wbi key fetch failed")
	// ErrInvalidParameter indicates a parameter value with no string form.
	ErrInvalidParameter = errors.New("invalid wbi parameter")
)

// InvalidParameterError names the parameter that could not be stringified.
type InvalidParameterError struct {
	Key   string
	Value any
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid wbi parameter %q: unsupported value type %T", e.Key, e.Value)
}

func (e *InvalidParameterError) Unwrap() error {
	return ErrInvalidParameter
}
