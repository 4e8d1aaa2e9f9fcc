package connector

import (
	"fmt"
	"strings"
	"time"
)

// Dialect tells how a chain diverges from plain bitcoin.
type Dialect int

const (
	// DialectBTC signs with the legacy sighash and encodes addresses with a
	// 1-byte prefix and a double sha256 checksum.
	DialectBTC Dialect = iota
	// DialectForkID signs the BIP143 digest committing to the input amount,
	// with SIGHASH_ALL|FORKID.
	DialectForkID
	// DialectBlake builds and signs transactions like DialectBTC but encodes
	// addresses and keys with a 2-byte prefix and a double blake256 checksum.
	// Chains whose transaction format or signature hash differ from bitcoin,
	// Decred among them, are not covered.
	DialectBlake
)

var dialectNames = map[Dialect]string{
	DialectBTC:    "btc",
	DialectForkID: "forkid",
	DialectBlake:  "blake",
}

func (d Dialect) String() string {
	return dialectNames[d]
}

// ParseDialect returns the dialect with the given name.
func ParseDialect(name string) (Dialect, error) {
	for d, n := range dialectNames {
		if strings.EqualFold(n, name) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown chain dialect %q", name)
}

// ChainParams collects everything that differs between the supported chains.
type ChainParams struct {
	Currency     string
	Dialect      Dialect
	AddrPrefix   []byte
	ScriptPrefix []byte
	SecretPrefix []byte
	// Coin is the number of units per whole coin.
	Coin                  uint64
	FeePerByte            uint64
	MinTxFee              uint64
	DustAmount            uint64
	BlockTime             time.Duration
	RequiredConfirmations int64
	TxVersion             int32
}

var (
	BTCParams = ChainParams{
		Currency:              "BTC",
		Dialect:               DialectBTC,
		AddrPrefix:            []byte{0x00},
		ScriptPrefix:          []byte{0x05},
		SecretPrefix:          []byte{0x80},
		Coin:                  100000000,
		FeePerByte:            20,
		MinTxFee:              1000,
		DustAmount:            546,
		BlockTime:             600 * time.Second,
		RequiredConfirmations: 1,
		TxVersion:             2,
	}
	BCHParams = ChainParams{
		Currency:              "BCH",
		Dialect:               DialectForkID,
		AddrPrefix:            []byte{0x00},
		ScriptPrefix:          []byte{0x05},
		SecretPrefix:          []byte{0x80},
		Coin:                  100000000,
		FeePerByte:            2,
		MinTxFee:              1000,
		DustAmount:            546,
		BlockTime:             600 * time.Second,
		RequiredConfirmations: 1,
		TxVersion:             2,
	}
	// DCRParams uses the Decred address and key encoding. Decred nodes reject
	// the bitcoin formatted transactions of DialectBlake, so these params only
	// serve address tooling and chains sharing the encoding.
	DCRParams = ChainParams{
		Currency:              "DCR",
		Dialect:               DialectBlake,
		AddrPrefix:            []byte{0x07, 0x3f},
		ScriptPrefix:          []byte{0x07, 0x1a},
		SecretPrefix:          []byte{0x22, 0xde},
		Coin:                  100000000,
		FeePerByte:            10,
		MinTxFee:              10000,
		DustAmount:            6030,
		BlockTime:             300 * time.Second,
		RequiredConfirmations: 2,
		TxVersion:             1,
	}
	LTCParams = ChainParams{
		Currency:              "LTC",
		Dialect:               DialectBTC,
		AddrPrefix:            []byte{0x30},
		ScriptPrefix:          []byte{0x32},
		SecretPrefix:          []byte{0xb0},
		Coin:                  100000000,
		FeePerByte:            10,
		MinTxFee:              10000,
		DustAmount:            5460,
		BlockTime:             150 * time.Second,
		RequiredConfirmations: 2,
		TxVersion:             2,
	}
	BLOCKParams = ChainParams{
		Currency:              "BLOCK",
		Dialect:               DialectBTC,
		AddrPrefix:            []byte{0x1a},
		ScriptPrefix:          []byte{0x1c},
		SecretPrefix:          []byte{0x9a},
		Coin:                  100000000,
		FeePerByte:            20,
		MinTxFee:              10000,
		DustAmount:            5460,
		BlockTime:             60 * time.Second,
		RequiredConfirmations: 3,
		TxVersion:             1,
	}
)

var builtinParams = map[string]ChainParams{
	"BTC":   BTCParams,
	"BCH":   BCHParams,
	"DCR":   DCRParams,
	"LTC":   LTCParams,
	"BLOCK": BLOCKParams,
}

// ParamsByCurrency returns a copy of the built-in params of a currency.
func ParamsByCurrency(currency string) (ChainParams, bool) {
	p, ok := builtinParams[strings.ToUpper(currency)]
	if !ok {
		return ChainParams{}, false
	}
	return p.copy(), true
}

func (p ChainParams) copy() ChainParams {
	c := p
	c.AddrPrefix = append([]byte(nil), p.AddrPrefix...)
	c.ScriptPrefix = append([]byte(nil), p.ScriptPrefix...)
	c.SecretPrefix = append([]byte(nil), p.SecretPrefix...)
	return c
}

func (p ChainParams) validate() error {
	if p.Currency == "" {
		return fmt.Errorf("missing currency")
	}
	prefixLen := 1
	if p.Dialect == DialectBlake {
		prefixLen = 2
	}
	if len(p.AddrPrefix) != prefixLen || len(p.ScriptPrefix) != prefixLen {
		return fmt.Errorf(
			"%s: address prefixes must be %d bytes long", p.Currency, prefixLen,
		)
	}
	if p.Coin == 0 {
		return fmt.Errorf("%s: coin must be greater than zero", p.Currency)
	}
	if p.BlockTime <= 0 {
		return fmt.Errorf("%s: block time must be greater than zero", p.Currency)
	}
	return nil
}
