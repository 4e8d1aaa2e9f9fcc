package main

import (
	"context"
	"encoding/hex"
	"path/filepath"
	"time"

	"github.com/tdex-network/xbridge/internal/core/domain"
	dbbadger "github.com/tdex-network/xbridge/internal/infrastructure/storage/db/badger"
	"github.com/urfave/cli/v2"
)

var historyCmd = cli.Command{
	Name:  "history",
	Usage: "list the terminated swaps stored in the db of a stopped daemon",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "datadir",
			Usage: "the datadir of xbridged, defaults to the one in the local state",
		},
		&cli.StringFlag{
			Name:  "id",
			Usage: "show only the swap with the given id",
		},
	},
	Action: historyAction,
}

type historyEntry struct {
	ID          string    `json:"id"`
	Role        string    `json:"role"`
	State       string    `json:"state"`
	Reason      string    `json:"reason,omitempty"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Hub         string    `json:"hub,omitempty"`
	Updated     time.Time `json:"updated"`
	DepositTxID string    `json:"deposit_txid,omitempty"`
	PaymentTxID string    `json:"payment_txid,omitempty"`
	RefundTxID  string    `json:"refund_txid,omitempty"`
}

func newHistoryEntry(d *domain.TransactionDescr) historyEntry {
	entry := historyEntry{
		ID:          d.ID,
		Role:        d.Role.String(),
		State:       d.State.String(),
		From:        formatLeg(d.FromAmount, d.FromCurrency, d.From),
		To:          formatLeg(d.ToAmount, d.ToCurrency, d.To),
		Hub:         hex.EncodeToString(d.HubAddress),
		Updated:     d.Updated,
		DepositTxID: d.BinTxID,
		PaymentTxID: d.PayTxID,
		RefundTxID:  d.RefTxID,
	}
	if d.Reason != domain.ReasonUnknown {
		entry.Reason = d.Reason.String()
	}
	return entry
}

func historyAction(ctx *cli.Context) error {
	datadir := ctx.String("datadir")
	if datadir == "" {
		datadir = stateValue(daemonDatadirKey, defaultDaemonDatadir)
	}
	dbDir := filepath.Join(datadir, "db")
	repo, err := dbbadger.NewSwapHistoryRepositoryImpl(dbDir, nil)
	if err != nil {
		return err
	}
	defer repo.Close()

	if id := ctx.String("id"); id != "" {
		d, err := repo.GetTransaction(context.Background(), id)
		if err != nil {
			return err
		}
		printJSON(newHistoryEntry(d))
		return nil
	}

	swaps, err := repo.ListTransactions(context.Background())
	if err != nil {
		return err
	}
	entries := make([]historyEntry, 0, len(swaps))
	for _, d := range swaps {
		entries = append(entries, newHistoryEntry(d))
	}
	printJSON(entries)
	return nil
}
