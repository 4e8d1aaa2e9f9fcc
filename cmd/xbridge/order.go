package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/urfave/cli/v2"
)

var idFlag = &cli.StringFlag{
	Name:     "id",
	Usage:    "the id of the order",
	Required: true,
}

var orderCmd = cli.Command{
	Name:  "order",
	Usage: "create, take and manage swap orders",
	Subcommands: []*cli.Command{
		orderSendCmd, orderAcceptCmd, orderCancelCmd, orderRollbackCmd,
		orderListCmd, orderShowCmd,
	},
}

var (
	orderSendCmd = &cli.Command{
		Name:  "send",
		Usage: "create an order selling from_amount of from_currency for to_amount of to_currency",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Usage: "the address paying the deposit", Required: true},
			&cli.StringFlag{Name: "from_currency", Usage: "the currency to sell", Required: true},
			&cli.StringFlag{Name: "from_amount", Usage: "the amount to sell", Required: true},
			&cli.StringFlag{Name: "to", Usage: "the address receiving the payment", Required: true},
			&cli.StringFlag{Name: "to_currency", Usage: "the currency to buy", Required: true},
			&cli.StringFlag{Name: "to_amount", Usage: "the amount to buy", Required: true},
			&cli.BoolFlag{Name: "units", Usage: "amounts are given in the smallest units of the currencies"},
		},
		Action: orderSendAction,
	}
	orderAcceptCmd = &cli.Command{
		Name:  "accept",
		Usage: "take an open order of another node",
		Flags: []cli.Flag{
			idFlag,
			&cli.StringFlag{Name: "from", Usage: "the address paying the deposit", Required: true},
			&cli.StringFlag{Name: "to", Usage: "the address receiving the payment", Required: true},
		},
		Action: orderAcceptAction,
	}
	orderCancelCmd = &cli.Command{
		Name:  "cancel",
		Usage: "cancel an own order, or roll it back if funds were already deposited",
		Flags: []cli.Flag{
			idFlag,
			&cli.IntFlag{Name: "reason", Usage: "the numeric cancel reason to attach"},
		},
		Action: orderCancelAction,
	}
	orderRollbackCmd = &cli.Command{
		Name:   "rollback",
		Usage:  "broadcast the refund of the deposit of an own order",
		Flags:  []cli.Flag{idFlag},
		Action: orderRollbackAction,
	}
	orderListCmd = &cli.Command{
		Name:  "list",
		Usage: "list orders",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "table",
				Usage: "pending, active or history",
				Value: "pending",
			},
		},
		Action: orderListAction,
	}
	orderShowCmd = &cli.Command{
		Name:   "show",
		Usage:  "show an order",
		Flags:  []cli.Flag{idFlag},
		Action: orderShowAction,
	}
)

func orderSendAction(ctx *cli.Context) error {
	fromCurrency := strings.ToUpper(ctx.String("from_currency"))
	toCurrency := strings.ToUpper(ctx.String("to_currency"))

	convert := toUnits
	if ctx.Bool("units") {
		convert = func(_, amount string) (uint64, error) { return parseUnits(amount) }
	}
	fromAmount, err := convert(fromCurrency, ctx.String("from_amount"))
	if err != nil {
		return err
	}
	toAmount, err := convert(toCurrency, ctx.String("to_amount"))
	if err != nil {
		return err
	}

	client, err := getOperatorClient()
	if err != nil {
		return err
	}
	resp, err := client.call(http.MethodPost, "/v1/orders", map[string]interface{}{
		"from":          ctx.String("from"),
		"from_currency": fromCurrency,
		"from_amount":   fromAmount,
		"to":            ctx.String("to"),
		"to_currency":   toCurrency,
		"to_amount":     toAmount,
	})
	if err != nil {
		return err
	}

	printJSON(resp)
	return nil
}

func orderAcceptAction(ctx *cli.Context) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}
	id := ctx.String("id")
	if _, err := client.call(
		http.MethodPost, "/v1/orders/"+id+"/accept",
		map[string]string{"from": ctx.String("from"), "to": ctx.String("to")},
	); err != nil {
		return err
	}

	fmt.Printf("order %s accepted\n", id)
	return nil
}

func orderCancelAction(ctx *cli.Context) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}

	var body interface{}
	if ctx.IsSet("reason") {
		body = map[string]int{"reason": ctx.Int("reason")}
	}
	id := ctx.String("id")
	if _, err := client.call(http.MethodPost, "/v1/orders/"+id+"/cancel", body); err != nil {
		return err
	}

	fmt.Printf("order %s cancelled\n", id)
	return nil
}

func orderRollbackAction(ctx *cli.Context) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}
	id := ctx.String("id")
	if _, err := client.call(http.MethodPost, "/v1/orders/"+id+"/rollback", nil); err != nil {
		return err
	}

	fmt.Printf("order %s rolled back\n", id)
	return nil
}

func orderListAction(ctx *cli.Context) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}
	resp, err := client.call(http.MethodGet, "/v1/orders?table="+ctx.String("table"), nil)
	if err != nil {
		return err
	}

	printJSON(resp)
	return nil
}

func orderShowAction(ctx *cli.Context) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}
	resp, err := client.call(http.MethodGet, "/v1/orders/"+ctx.String("id"), nil)
	if err != nil {
		return err
	}

	printJSON(resp)
	return nil
}
