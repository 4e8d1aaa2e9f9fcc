package httpinterface

import (
	"errors"
	"net/http"

	"github.com/tdex-network/xbridge/internal/core/application/session"
	"github.com/tdex-network/xbridge/internal/core/application/xbridge"
	"github.com/tdex-network/xbridge/internal/core/domain"
)

var badRequestErrors = []error{
	domain.ErrTransactionMissingCurrency,
	domain.ErrTransactionSameCurrency,
	domain.ErrTransactionZeroAmount,
	domain.ErrTransactionMissingAddress,
	domain.ErrTransactionTerminal,
	domain.ErrRollbackRequired,
	domain.ErrNotDeposited,
	domain.ErrTransactionNotJoinable,
	session.ErrUnknownCurrency,
	session.ErrInvalidAddress,
	session.ErrNotLocal,
	session.ErrNotPending,
	session.ErrMissingHub,
	xbridge.ErrNotHub,
}

var notFoundErrors = []error{
	domain.ErrTransactionNotFound,
	xbridge.ErrUnknownSession,
}

func errorStatus(err error) int {
	for _, e := range notFoundErrors {
		if errors.Is(err, e) {
			return http.StatusNotFound
		}
	}
	for _, e := range badRequestErrors {
		if errors.Is(err, e) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}
