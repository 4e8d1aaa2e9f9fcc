package domain

import "time"

const (
	// PendingTTL is how long an unmatched order stays in the pending tables
	// before being expired.
	PendingTTL = 72 * time.Hour
	// TransactionTTL is the time a matched swap has to reach Finished before
	// being cancelled or rolled back.
	TransactionTTL = time.Hour
	// LockTimeBase is the base refund window of a deposit. The initiator gets
	// twice this window, the acceptor once.
	LockTimeBase = 600 * time.Second

	// XAddrLength is the length of the canonical binary form of an address,
	// its hash160.
	XAddrLength = 20
	// PubKeyLength is the length of a compressed secp256k1 public key.
	PubKeyLength = 33
	// SessionAddressLength is the length of the address of a protocol session.
	SessionAddressLength = 20
)
