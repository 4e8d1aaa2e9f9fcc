package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTransactionMissingCurrency is returned when creating a swap without
	// the source or the destination currency.
	ErrTransactionMissingCurrency = errors.New("missing source or destination currency")
	// ErrTransactionSameCurrency is returned when source and destination
	// currencies of a swap are the same.
	ErrTransactionSameCurrency = errors.New("source and destination currencies must differ")
	// ErrTransactionZeroAmount is returned when one of the amounts of a swap is
	// zero.
	ErrTransactionZeroAmount = errors.New("amounts must be greater than zero")
	// ErrTransactionMissingAddress is returned when source or destination
	// address of a local swap are missing.
	ErrTransactionMissingAddress = errors.New("missing source or destination address")
	// ErrTransactionTermsChanged is returned when trying to update a swap with
	// a copy whose economic terms differ.
	ErrTransactionTermsChanged = errors.New("amounts and currencies of a swap cannot change")
	// ErrTransactionTerminal is returned when trying to change the state of a
	// swap that already reached a terminal state.
	ErrTransactionTerminal = errors.New("swap is in a terminal state")
	// ErrRollbackRequired is returned when trying to cancel a swap whose funds
	// are already deposited.
	ErrRollbackRequired = errors.New("funds already deposited, swap must be rolled back")
	// ErrNotDeposited is returned when trying to roll back a swap that never
	// deposited.
	ErrNotDeposited = errors.New("swap has no deposit to roll back")
	// ErrSecretRevealed is returned when trying to cancel or roll back a swap
	// whose initiator already disclosed the exchange secret.
	ErrSecretRevealed = errors.New("exchange secret already revealed, swap must complete")

	// ErrTransactionNotJoinable is returned by TryJoin when the orders are not
	// the exact inverse of each other.
	ErrTransactionNotJoinable = errors.New("orders are not the inverse of each other")
	// ErrUnknownMember is returned when a report comes from an address that is
	// not a member of the swap.
	ErrUnknownMember = errors.New("sender is not a member of the swap")
	// ErrStateMismatch is returned when a report doesn't match the current
	// state of the swap.
	ErrStateMismatch = errors.New("report does not match the state of the swap")
	// ErrInvalidPubKey is returned when a reported public key is malformed.
	ErrInvalidPubKey = errors.New("invalid public key")
	// ErrInvalidSecretHash is returned when the reported hash of the exchange
	// secret is malformed or doesn't match.
	ErrInvalidSecretHash = errors.New("invalid exchange secret hash")
	// ErrMissingDeposit is returned when a deposit report lacks the txid or
	// the redeem script.
	ErrMissingDeposit = errors.New("missing deposit txid or script")

	// ErrTransactionNotFound is returned by repositories.
	ErrTransactionNotFound = errors.New("swap not found")
	// ErrTransactionAlreadyExists is returned by repositories.
	ErrTransactionAlreadyExists = errors.New("swap already exists")
)

// InvalidTransitionError is returned when a state change is not allowed by
// the transition graph.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}
