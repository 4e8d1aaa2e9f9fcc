package rpc

import (
	"errors"

	"github.com/btcsuite/btcd/btcjson"
)

// Error codes returned by bitcoin-like wallet daemons.
const (
	ErrCodeMethodNotFound      btcjson.RPCErrorCode = -32601
	ErrCodeMisc                btcjson.RPCErrorCode = -1
	ErrCodeInvalidAddressOrKey btcjson.RPCErrorCode = -5
	ErrCodeWalletError         btcjson.RPCErrorCode = -4
	ErrCodeVerifyError         btcjson.RPCErrorCode = -25
	ErrCodeVerifyRejected      btcjson.RPCErrorCode = -26
	ErrCodeAlreadyInChain      btcjson.RPCErrorCode = -27
)

// ErrorCode returns the code of an error returned by the daemon, if err is
// one.
func ErrorCode(err error) (btcjson.RPCErrorCode, bool) {
	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code, true
	}
	return 0, false
}

// isDaemonError returns whether err was returned by a daemon that processed
// the request, such errors don't count as failures of the connection.
func isDaemonError(err error) bool {
	_, ok := ErrorCode(err)
	return ok
}
