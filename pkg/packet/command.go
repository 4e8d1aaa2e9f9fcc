package packet

// Command is the type tag of a packet.
type Command uint16

const (
	CommandInvalid Command = iota
	CommandAnnounceAddresses
	CommandXChatMessage
	CommandTransaction
	CommandPendingTransaction
	CommandTransactionAccepting
	CommandTransactionCancel
	CommandTransactionHold
	CommandTransactionHoldApply
	CommandTransactionInit
	CommandTransactionInitialized
	CommandTransactionCreateA
	CommandTransactionCreatedA
	CommandTransactionCreateB
	CommandTransactionCreatedB
	CommandTransactionConfirmA
	CommandTransactionConfirmedA
	CommandTransactionConfirmB
	CommandTransactionConfirmedB
	CommandTransactionFinished
	CommandTransactionRollback
	CommandTransactionDropped
)

var commandNames = map[Command]string{
	CommandInvalid:                "Invalid",
	CommandAnnounceAddresses:      "AnnounceAddresses",
	CommandXChatMessage:           "XChatMessage",
	CommandTransaction:            "Transaction",
	CommandPendingTransaction:     "PendingTransaction",
	CommandTransactionAccepting:   "TransactionAccepting",
	CommandTransactionCancel:      "TransactionCancel",
	CommandTransactionHold:        "TransactionHold",
	CommandTransactionHoldApply:   "TransactionHoldApply",
	CommandTransactionInit:        "TransactionInit",
	CommandTransactionInitialized: "TransactionInitialized",
	CommandTransactionCreateA:     "TransactionCreateA",
	CommandTransactionCreatedA:    "TransactionCreatedA",
	CommandTransactionCreateB:     "TransactionCreateB",
	CommandTransactionCreatedB:    "TransactionCreatedB",
	CommandTransactionConfirmA:    "TransactionConfirmA",
	CommandTransactionConfirmedA:  "TransactionConfirmedA",
	CommandTransactionConfirmB:    "TransactionConfirmB",
	CommandTransactionConfirmedB:  "TransactionConfirmedB",
	CommandTransactionFinished:    "TransactionFinished",
	CommandTransactionRollback:    "TransactionRollback",
	CommandTransactionDropped:     "TransactionDropped",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "Unknown"
}

// newPayload returns an empty payload for the given command.
func newPayload(c Command) (Payload, error) {
	switch c {
	case CommandAnnounceAddresses:
		return &AnnounceAddresses{}, nil
	case CommandXChatMessage:
		return &XChatMessage{}, nil
	case CommandTransaction:
		return &Transaction{}, nil
	case CommandPendingTransaction:
		return &PendingTransaction{}, nil
	case CommandTransactionAccepting:
		return &TransactionAccepting{}, nil
	case CommandTransactionCancel:
		return &TransactionCancel{}, nil
	case CommandTransactionHold:
		return &TransactionHold{}, nil
	case CommandTransactionHoldApply:
		return &TransactionHoldApply{}, nil
	case CommandTransactionInit:
		return &TransactionInit{}, nil
	case CommandTransactionInitialized:
		return &TransactionInitialized{}, nil
	case CommandTransactionCreateA:
		return &TransactionCreateA{}, nil
	case CommandTransactionCreatedA:
		return &TransactionCreatedA{}, nil
	case CommandTransactionCreateB:
		return &TransactionCreateB{}, nil
	case CommandTransactionCreatedB:
		return &TransactionCreatedB{}, nil
	case CommandTransactionConfirmA:
		return &TransactionConfirmA{}, nil
	case CommandTransactionConfirmedA:
		return &TransactionConfirmedA{}, nil
	case CommandTransactionConfirmB:
		return &TransactionConfirmB{}, nil
	case CommandTransactionConfirmedB:
		return &TransactionConfirmedB{}, nil
	case CommandTransactionFinished:
		return &TransactionFinished{}, nil
	case CommandTransactionRollback:
		return &TransactionRollback{}, nil
	case CommandTransactionDropped:
		return &TransactionDropped{}, nil
	}
	return nil, ErrUnknownCommand
}
