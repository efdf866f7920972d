// Package relayerr classifies the error taxonomy of spec §7:
// ConnectionError, ChainError, TxError, SignatureMismatch, MissingHashError.
// All errors that cross a component boundary (Supervisor, EventIngestor,
// Signer, Relayer) should be one of these so callers can branch on
// Classification rather than string-matching messages.
package relayerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Classification drives retry/propagation policy at task boundaries.
type Classification int

const (
	// Retryable errors are transient; the Supervisor reconnects, the
	// backfiller will retry on its next sweep.
	Retryable Classification = iota
	// NonRetryable errors are permanent for the current attempt; the
	// intent is abandoned and logged.
	NonRetryable
	// SoftWarning errors are recognized-benign conditions (e.g. "already
	// known") that must not transition a RelayRecord's status.
	SoftWarning
)

func (c Classification) String() string {
	switch c {
	case Retryable:
		return "retryable"
	case NonRetryable:
		return "non-retryable"
	case SoftWarning:
		return "soft-warning"
	default:
		return "unknown"
	}
}

// Code names the spec §7 taxonomy entry.
type Code string

const (
	CodeConnection        Code = "CONNECTION_ERROR"
	CodeChain             Code = "CHAIN_ERROR"
	CodeTx                Code = "TX_ERROR"
	CodeSignatureMismatch Code = "SIGNATURE_MISMATCH"
	CodeMissingHash       Code = "MISSING_HASH_ERROR"
	CodeConfig            Code = "CONFIG_ERROR"
)

// RelayError wraps a cause with a spec-taxonomy code and retry classification.
type RelayError struct {
	Code           Code
	Classification Classification
	Message        string
	Cause          error
}

func (e *RelayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RelayError) Unwrap() error { return e.Cause }

func newErr(code Code, class Classification, msg string, cause error) *RelayError {
	return &RelayError{Code: code, Classification: class, Message: msg, Cause: errors.WithStack(cause)}
}

// NewConnectionError marks a transport/health failure. Handled by the
// Supervisor via reconnect with backoff.
func NewConnectionError(msg string, cause error) *RelayError {
	return newErr(CodeConnection, Retryable, msg, cause)
}

// NewChainError marks an RPC-returned error on a read. The intent is
// abandoned for the current pass; the backfiller will retry.
func NewChainError(msg string, cause error) *RelayError {
	return newErr(CodeChain, NonRetryable, msg, cause)
}

// NewTxError marks a rejected submission. Soft is true when the message
// contains the recognized benign substring "already known".
func NewTxError(msg string, cause error, soft bool) *RelayError {
	class := NonRetryable
	if soft {
		class = SoftWarning
	}
	return newErr(CodeTx, class, msg, cause)
}

// NewSignatureMismatchError marks a signer recovery disagreement.
func NewSignatureMismatchError(msg string, cause error) *RelayError {
	return newErr(CodeSignatureMismatch, NonRetryable, msg, cause)
}

// NewMissingHashError marks an event with no usable transactionHash field.
func NewMissingHashError(msg string) *RelayError {
	return newErr(CodeMissingHash, NonRetryable, msg, nil)
}

// NewConfigError marks a fatal configuration problem, e.g. a missing
// OWNER_PRIVATE_KEY. Raised only while components are constructed
// (configuration load, signer, relayer, chain clients), never during a relay.
func NewConfigError(msg string, cause error) *RelayError {
	return newErr(CodeConfig, NonRetryable, msg, cause)
}

// IsSoftWarning reports whether err is a RelayError classified SoftWarning
// (e.g. a resubmission that the destination node already holds).
func IsSoftWarning(err error) bool {
	var re *RelayError
	if errors.As(err, &re) {
		return re.Classification == SoftWarning
	}
	return false
}

// IsRetryable reports whether err should trigger a Supervisor reconnect.
func IsRetryable(err error) bool {
	var re *RelayError
	if errors.As(err, &re) {
		return re.Classification == Retryable
	}
	return false
}
