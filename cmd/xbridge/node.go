package main

import (
	"net/http"

	"github.com/urfave/cli/v2"
)

var addressBookCmd = cli.Command{
	Name:   "addressbook",
	Usage:  "list the addresses of the local wallets and of the other nodes",
	Action: addressBookAction,
}

var hubCmd = cli.Command{
	Name:   "hub",
	Usage:  "list the swaps matched by the node, if it runs as a hub",
	Action: hubAction,
}

func addressBookAction(_ *cli.Context) error {
	return getAndPrint("/v1/addressbook")
}

func hubAction(_ *cli.Context) error {
	return getAndPrint("/v1/hub/transactions")
}

func getAndPrint(path string) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}
	resp, err := client.call(http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	printJSON(resp)
	return nil
}
