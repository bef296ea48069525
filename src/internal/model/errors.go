package model

import (
	"errors"
	"fmt"
)

var (
	ErrContractNotFound = errors.New("contract not found")
	ErrUnparsable       = errors.New("unparsable source")
	ErrMalformed        = errors.New("malformed declaration")
)

// AnalysisError is a structural failure of extraction. No partial model comes
// with it.
type AnalysisError struct {
	Contract string
	// Function is set when one declaration caused the failure.
	Function string
	Err      error
}

func (e *AnalysisError) Error() string {
	target := e.Contract
	if target == "" {
		target = "<unnamed>"
	}
	if e.Function != "" {
		return fmt.Sprintf("analysis of %s.%s failed: %v", target, e.Function, e.Err)
	}
	return fmt.Sprintf("analysis of %s failed: %v", target, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}
