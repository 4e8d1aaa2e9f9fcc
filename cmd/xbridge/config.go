package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/urfave/cli/v2"
)

const (
	operatorURLKey   = "operator_url"
	daemonDatadirKey = "daemon_datadir"

	defaultOperatorURL = "http://localhost:9090"
)

var (
	defaultDaemonDatadir = btcutil.AppDataDir("xbridged", false)

	// keys accepted by 'config set'.
	stateKeys = []string{operatorURLKey, daemonDatadirKey}
)

var configCmd = cli.Command{
	Name:   "config",
	Usage:  "print the local state of the CLI",
	Action: configAction,
	Subcommands: []*cli.Command{
		{
			Name:      "set",
			Usage:     "set a single entry of the local state",
			ArgsUsage: "<key> <value>",
			Action:    configSetAction,
		},
		{
			Name:   "init",
			Usage:  "reset the local state with the given flags",
			Action: configInitAction,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  operatorURLKey,
					Usage: "url of the xbridged operator interface",
					Value: defaultOperatorURL,
				},
				&cli.StringFlag{
					Name:  daemonDatadirKey,
					Usage: "datadir of the local xbridged, read by 'history'",
					Value: defaultDaemonDatadir,
				},
			},
		},
	},
}

func configAction(ctx *cli.Context) error {
	state, err := getState()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s: %s\n", k, state[k])
	}
	return nil
}

func configInitAction(ctx *cli.Context) error {
	state := make(map[string]string, len(stateKeys))
	for _, k := range stateKeys {
		state[k] = ctx.String(k)
	}
	return setState(state)
}

func configSetAction(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return &invalidUsageError{ctx, "set"}
	}
	key, value := ctx.Args().Get(0), ctx.Args().Get(1)

	if !isStateKey(key) {
		return fmt.Errorf(
			"unknown key %q, must be one of %s", key, strings.Join(stateKeys, ", "),
		)
	}
	if err := setState(map[string]string{key: value}); err != nil {
		return err
	}

	fmt.Printf("%s set to %s\n", key, value)
	return nil
}

func isStateKey(key string) bool {
	for _, k := range stateKeys {
		if k == key {
			return true
		}
	}
	return false
}

// stateValue returns the value stored for key, or def if the state is not
// initialized or doesn't contain it.
func stateValue(key, def string) string {
	state, err := getState()
	if err != nil {
		return def
	}
	if v, ok := state[key]; ok && v != "" {
		return v
	}
	return def
}
