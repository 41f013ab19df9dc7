package bundler

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrSubmissionRejected matches every *SubmissionError.
	ErrSubmissionRejected = errors.New("submission rejected")
	// ErrTimeout is returned when no receipt arrived in time. The operation
	// may still be included later.
	ErrTimeout = errors.New("timed out waiting for receipt")
	// ErrNotSubmitted is returned when awaiting a handle the relay never accepted.
	ErrNotSubmitted = errors.New("operation not submitted")
)

// RejectionKind classifies why a relay refused an operation.
type RejectionKind int

const (
	RejectionUnknown RejectionKind = iota
	RejectionMalformed
	RejectionInsufficientFunds
	RejectionNonceConflict
)

func (k RejectionKind) String() string {
	switch k {
	case RejectionMalformed:
		return "malformed"
	case RejectionInsufficientFunds:
		return "insufficient_funds"
	case RejectionNonceConflict:
		return "nonce_conflict"
	default:
		return "unknown"
	}
}

// SubmissionError is returned when the relay refuses an operation.
type SubmissionError struct {
	Kind   RejectionKind
	Reason string
	Code   int // JSON-RPC error code, 0 if none
	// OperationID is the local tracking id of the refused operation.
	OperationID string
	Err         error
}

func (e *SubmissionError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("submission rejected (%s, code %d): %s", e.Kind, e.Code, e.Reason)
	}
	return fmt.Sprintf("submission rejected (%s): %s", e.Kind, e.Reason)
}

func (e *SubmissionError) Is(target error) bool {
	return target == ErrSubmissionRejected
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// OperationError reports a failure after submission, carrying the last
// known state so the caller can decide whether to re-poll or resubmit.
type OperationError struct {
	ID    string
	Hash  common.Hash
	State State
	Err   error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %s (%s) %s: %v", e.ID, e.Hash.Hex(), e.State, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }
