package jsvalue

import (
	"errors"
	"fmt"
)

var (
	ErrRuntimeMismatch = errors.New("value belongs to a different runtime")
	ErrDecode          = errors.New("decode error")
)

// DecodeError reports a guest value that did not have the expected shape
// or could not be converted into the requested Go type
type DecodeError struct {
	Expected string
	Got      string
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot decode %s as %s: %v", e.Got, e.Expected, e.Err)
	}
	return fmt.Sprintf("cannot decode %s as %s", e.Got, e.Expected)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}
