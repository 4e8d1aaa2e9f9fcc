package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/tdex-network/xbridge/internal/infrastructure/wallet/connector"
	"github.com/urfave/cli/v2"
)

var currencyFlag = &cli.StringFlag{
	Name:     "currency",
	Usage:    "the currency of the chain: BTC, BCH, DCR, LTC or BLOCK",
	Required: true,
}

var (
	addressCmd = cli.Command{
		Name:  "address",
		Usage: "address utilities",
		Subcommands: []*cli.Command{
			{
				Name:  "convert",
				Usage: "convert an address into the hash160 it pays to, or the opposite",
				Flags: []cli.Flag{
					currencyFlag,
					&cli.StringFlag{Name: "address", Usage: "the address to decode"},
					&cli.StringFlag{Name: "xaddr", Usage: "the hex encoded hash160 to encode"},
				},
				Action: addressConvertAction,
			},
		},
	}

	scriptCmd = cli.Command{
		Name:  "script",
		Usage: "deposit script utilities",
		Subcommands: []*cli.Command{
			{
				Name:  "decode",
				Usage: "print the terms of a hex encoded deposit redeem script",
				Flags: []cli.Flag{
					currencyFlag,
					&cli.StringFlag{Name: "script", Usage: "the hex encoded script", Required: true},
				},
				Action: scriptDecodeAction,
			},
		},
	}

	keygenCmd = cli.Command{
		Name:   "keygen",
		Usage:  "generate a new key pair with its address and WIF",
		Flags:  []cli.Flag{currencyFlag},
		Action: keygenAction,
	}
)

func getParams(ctx *cli.Context) (connector.ChainParams, error) {
	currency := strings.ToUpper(ctx.String("currency"))
	params, ok := connector.ParamsByCurrency(currency)
	if !ok {
		return connector.ChainParams{}, fmt.Errorf("unknown currency %s", currency)
	}
	return params, nil
}

func addressConvertAction(ctx *cli.Context) error {
	params, err := getParams(ctx)
	if err != nil {
		return err
	}

	address, xaddr := ctx.String("address"), ctx.String("xaddr")
	if (address == "") == (xaddr == "") {
		return &invalidUsageError{ctx, "convert"}
	}

	if address != "" {
		hash, err := params.ToXAddr(address)
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(hash))
		return nil
	}

	hash, err := hex.DecodeString(xaddr)
	if err != nil {
		return fmt.Errorf("invalid xaddr: %w", err)
	}
	encoded, err := params.FromXAddr(hash)
	if err != nil {
		return err
	}
	fmt.Println(encoded)
	return nil
}

func scriptDecodeAction(ctx *cli.Context) error {
	params, err := getParams(ctx)
	if err != nil {
		return err
	}
	script, err := hex.DecodeString(ctx.String("script"))
	if err != nil {
		return fmt.Errorf("invalid script: %w", err)
	}

	decoded, err := connector.DecodeDepositScript(script)
	if err != nil {
		return err
	}
	refundAddress, err := params.FromXAddr(decoded.RefundKeyID)
	if err != nil {
		return err
	}
	claimAddress, err := params.FromXAddr(decoded.ClaimKeyID)
	if err != nil {
		return err
	}
	depositAddress, err := params.ScriptIDToString(btcutil.Hash160(script))
	if err != nil {
		return err
	}
	disasm, err := txscript.DisasmString(script)
	if err != nil {
		return err
	}

	printJSON(map[string]interface{}{
		"deposit_address": depositAddress,
		"lock_time":       decoded.LockTime,
		"refund_address":  refundAddress,
		"claim_address":   claimAddress,
		"secret_hash":     hex.EncodeToString(decoded.XHash),
		"asm":             disasm,
	})
	return nil
}

func keygenAction(ctx *cli.Context) error {
	params, err := getParams(ctx)
	if err != nil {
		return err
	}

	key, err := btcec.NewPrivateKey()
	if err != nil {
		return err
	}
	pubKey := key.PubKey().SerializeCompressed()

	address, err := params.FromXAddr(btcutil.Hash160(pubKey))
	if err != nil {
		return err
	}
	wif, err := params.PrivKeyToWIF(key.Serialize())
	if err != nil {
		return err
	}

	printJSON(map[string]string{
		"address": address,
		"pubkey":  hex.EncodeToString(pubKey),
		"wif":     wif,
	})
	return nil
}
