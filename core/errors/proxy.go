package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the caller or the emitting ledger does
	// not match the configured participant for a guarded operation.
	ErrUnauthorized = stderrors.New("unauthorized")
	// ErrIncorrectPayloadVariant is returned when a transfer-with-payload does
	// not decode to a supported hook variant.
	ErrIncorrectPayloadVariant = stderrors.New("incorrect payload variant")
	// ErrInsufficientBalance is surfaced by ledgers when a debit exceeds the
	// holder's balance.
	ErrInsufficientBalance = stderrors.New("insufficient balance")
	// ErrCollaboratorFailure marks a failed follow-up message issued to
	// another contract.
	ErrCollaboratorFailure = stderrors.New("collaborator failure")

	ErrInvalidAmount      = stderrors.New("invalid amount")
	ErrInvalidAddress     = stderrors.New("invalid address")
	ErrAlreadyInitialized = stderrors.New("contract already initialized")
	ErrNotInitialized     = stderrors.New("contract not initialized")
	ErrUnknownMessage     = stderrors.New("unknown message")
	ErrUnknownContract    = stderrors.New("unknown contract")
)

// CollaboratorError wraps the failure of a follow-up message so callers can
// match both ErrCollaboratorFailure and the underlying cause.
type CollaboratorError struct {
	Contract string
	Err      error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator %s: %v", e.Contract, e.Err)
}

func (e *CollaboratorError) Unwrap() []error {
	return []error{ErrCollaboratorFailure, e.Err}
}

// Collaborator wraps err as a CollaboratorError for the named contract. A nil
// err yields nil.
func Collaborator(contract string, err error) error {
	if err == nil {
		return nil
	}
	return &CollaboratorError{Contract: contract, Err: err}
}
