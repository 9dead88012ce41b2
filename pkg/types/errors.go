package types

import "errors"

// Configuration-level errors abort a run before anything is submitted.
var (
	ErrInvalidCount        = errors.New("invalid transaction count")
	ErrMissingKey          = errors.New("missing signing key")
	ErrEndpointUnreachable = errors.New("rpc endpoint unreachable")
)

// Per-transaction errors are recorded on results and receipts.
var (
	ErrSigning            = errors.New("signing failed")
	ErrSubmissionRejected = errors.New("submission rejected")
	ErrTransport          = errors.New("transport error")
	ErrNotSubmitted       = errors.New("not submitted")
	ErrTimedOut           = errors.New("receipt timed out")
	ErrCancelled          = errors.New("run cancelled")
)
