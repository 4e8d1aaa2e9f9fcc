package domain

// CancelReason is the code attached to a swap that didn't finish.
type CancelReason int

const (
	ReasonUnknown CancelReason = iota
	ReasonBadSettings
	ReasonUserRequest
	ReasonNoMoney
	ReasonBadUtxo
	ReasonDust
	ReasonRPCError
	ReasonNotSigned
	ReasonNotAccepted
	ReasonRollback
	ReasonRPCRequest
	ReasonRejected
	ReasonInvalidAddress
	ReasonNodeError
	ReasonBadADepositTx
	ReasonBadBDepositTx
	ReasonTimeout
)

var reasonNames = map[CancelReason]string{
	ReasonUnknown:        "unknown reason",
	ReasonBadSettings:    "bad wallet settings",
	ReasonUserRequest:    "cancelled by user",
	ReasonNoMoney:        "insufficient funds",
	ReasonBadUtxo:        "bad or already spent utxo",
	ReasonDust:           "amount is dust",
	ReasonRPCError:       "wallet rpc error",
	ReasonNotSigned:      "transaction not signed",
	ReasonNotAccepted:    "transaction not accepted",
	ReasonRollback:       "rolled back",
	ReasonRPCRequest:     "cancelled by rpc request",
	ReasonRejected:       "rejected by the exchange",
	ReasonInvalidAddress: "invalid address",
	ReasonNodeError:      "node error",
	ReasonBadADepositTx:  "bad deposit transaction of the initiator",
	ReasonBadBDepositTx:  "bad deposit transaction of the acceptor",
	ReasonTimeout:        "timeout",
}

func (r CancelReason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return reasonNames[ReasonUnknown]
}
