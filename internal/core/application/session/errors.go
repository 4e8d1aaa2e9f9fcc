package session

import (
	"errors"
	"fmt"

	"github.com/tdex-network/xbridge/internal/core/ports"
)

var (
	// ErrWrongAddress is returned for packets addressed to another session.
	ErrWrongAddress = errors.New("packet not addressed to this session")
	// ErrNotHub is returned when a hub only packet reaches a session without
	// exchange.
	ErrNotHub = errors.New("session is not a hub")
	// ErrNotFromHub is returned when a packet about a local swap doesn't come
	// from the hub of the swap.
	ErrNotFromHub = errors.New("packet not sent by the hub of the swap")
	// ErrNotLocal is returned when a packet refers to a swap this node is not
	// a party of.
	ErrNotLocal = errors.New("swap is not a local order")
	// ErrUnexpectedRole is returned when a packet is meant for the other
	// party of a swap.
	ErrUnexpectedRole = errors.New("packet not meant for the role of this party")
	// ErrUnknownCurrency is returned when no wallet connector serves a
	// currency.
	ErrUnknownCurrency = errors.New("no wallet for currency")
	// ErrInvalidAddress is returned for addresses the wallet of their
	// currency can't decode.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrNestedXChat is returned for xchat messages wrapping other xchat
	// messages.
	ErrNestedXChat = errors.New("nested xchat message")
	// ErrNotPending is returned when accepting a swap that is not an open
	// order of somebody else.
	ErrNotPending = errors.New("swap is not an open order")
	// ErrMissingHub is returned when a swap has no known hub yet.
	ErrMissingHub = errors.New("hub of the swap not known yet")
)

var (
	errScriptMismatch = fmt.Errorf("%w: unexpected deposit script", ports.ErrBadDeposit)
	errBadLockTime    = fmt.Errorf("%w: unacceptable lock time", ports.ErrBadDeposit)
	errBadPubKey      = fmt.Errorf("%w: unexpected counterparty key", ports.ErrBadDeposit)
	errNotConfirmed   = errors.New("deposit not confirmed yet")
)
