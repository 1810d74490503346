package tester

import "errors"

// InfraError is a failure of the evaluation machinery itself, such as a
// missing toolchain or an unwritable scratch directory. It is never a
// judging verdict and is worth retrying.
type InfraError struct {
	Op  string
	Err error
}

func (e *InfraError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *InfraError) Unwrap() error {
	return e.Err
}

func IsInfraError(err error) bool {
	var ie *InfraError
	return errors.As(err, &ie)
}

func infraErr(op string, err error) error {
	return &InfraError{Op: op, Err: err}
}
