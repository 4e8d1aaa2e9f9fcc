package rpc

import (
	"context"
	"fmt"
	"math/big"
	"strings"
)

// Account-model chains speak the eth JSON-RPC dialect, amounts are hex
// encoded quantities of the smallest unit.

func parseQuantity(q string) (uint64, error) {
	v, ok := new(big.Int).SetString(strings.TrimPrefix(q, "0x"), 16)
	if !ok || !v.IsUint64() {
		return 0, fmt.Errorf("invalid quantity %q", q)
	}
	return v.Uint64(), nil
}

func formatQuantity(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}

func (c *Client) GasPrice(ctx context.Context) (uint64, error) {
	var price string
	if err := c.callFor(ctx, &price, "eth_gasPrice"); err != nil {
		return 0, err
	}
	return parseQuantity(price)
}

func (c *Client) AccountBalance(ctx context.Context, address string) (uint64, error) {
	var balance string
	if err := c.callFor(ctx, &balance, "eth_getBalance", address, "latest"); err != nil {
		return 0, err
	}
	return parseQuantity(balance)
}

type accountTransaction struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
}

func (c *Client) SendAccountTransaction(
	ctx context.Context, from, to string, amount uint64,
) (string, error) {
	var txHash string
	tx := accountTransaction{from, to, formatQuantity(amount)}
	if err := c.callFor(ctx, &txHash, "eth_sendTransaction", tx); err != nil {
		return "", err
	}
	return txHash, nil
}
