package fsobject

import "fmt"

// InvalidPathError is returned when a path does not exist as the kind of
// object being constructed.
type InvalidPathError struct {
	Path string
	Want Kind
	Err  error
}

func (e *InvalidPathError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid path %q: not a %s: %v", e.Path, e.Want, e.Err)
	}
	return fmt.Sprintf("invalid path %q: not a %s", e.Path, e.Want)
}

func (e *InvalidPathError) Unwrap() error {
	return e.Err
}
