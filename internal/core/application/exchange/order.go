package exchange

import (
	"time"

	"github.com/tdex-network/xbridge/internal/core/domain"
)

// Order is one side of a swap as announced to the hub.
type Order struct {
	ID      string
	Session []byte

	Source         string
	SourceXAddr    []byte
	SourceCurrency string
	SourceAmount   uint64
	Dest           string
	DestXAddr      []byte
	DestCurrency   string
	DestAmount     uint64

	Created time.Time
}

func (o Order) validate() error {
	if len(o.Session) == 0 {
		return ErrMissingSession
	}
	if o.Source == "" || o.Dest == "" {
		return domain.ErrTransactionMissingAddress
	}
	if o.SourceCurrency == "" || o.DestCurrency == "" {
		return domain.ErrTransactionMissingCurrency
	}
	if o.SourceCurrency == o.DestCurrency {
		return domain.ErrTransactionSameCurrency
	}
	if o.SourceAmount == 0 || o.DestAmount == 0 {
		return domain.ErrTransactionZeroAmount
	}
	return nil
}

func (o Order) member() domain.TransactionMember {
	return domain.TransactionMember{
		Session:        o.Session,
		Source:         o.Source,
		SourceXAddr:    o.SourceXAddr,
		SourceCurrency: o.SourceCurrency,
		SourceAmount:   o.SourceAmount,
		Dest:           o.Dest,
		DestXAddr:      o.DestXAddr,
		DestCurrency:   o.DestCurrency,
		DestAmount:     o.DestAmount,
	}
}
