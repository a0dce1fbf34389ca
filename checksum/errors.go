package checksum

import (
	"errors"
	"fmt"
)

var ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")

// IOError reports a failure to stat or read a resource.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// DigestError reports a failure to compute a digest that is not an I/O failure.
type DigestError struct {
	Algorithm string
	Path      string
	Err       error
}

func (e *DigestError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("digest %q: %v", e.Algorithm, e.Err)
	}
	return fmt.Sprintf("digest %q of %s: %v", e.Algorithm, e.Path, e.Err)
}

func (e *DigestError) Unwrap() error {
	return e.Err
}
