package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/urfave/cli/v2"
)

var (
	version = "dev"

	xbridgeDataDir = btcutil.AppDataDir("xbridge-cli", false)
	statePath      = filepath.Join(xbridgeDataDir, "state.json")
)

func main() {
	app := cli.NewApp()

	app.Version = version
	app.Name = "xbridge"
	app.Usage = "Command line interface for xbridged operators"
	app.Commands = append(
		app.Commands,
		&configCmd,
		&orderCmd,
		&addressBookCmd,
		&hubCmd,
		&webhookCmd,
		&historyCmd,
		&addressCmd,
		&scriptCmd,
		&keygenCmd,
	)

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func getState() (map[string]string, error) {
	data := map[string]string{}

	file, err := os.ReadFile(statePath)
	if err != nil {
		return nil, errors.New("get config state error: try 'config init'")
	}
	if err := json.Unmarshal(file, &data); err != nil {
		return nil, fmt.Errorf("invalid config state: %w", err)
	}

	return data, nil
}

func setState(data map[string]string) error {
	if err := os.MkdirAll(xbridgeDataDir, os.ModeDir|0755); err != nil {
		return err
	}

	currentData, err := getState()
	if err != nil {
		currentData = map[string]string{}
	}

	jsonString, err := json.Marshal(merge(currentData, data))
	if err != nil {
		return err
	}
	if err := os.WriteFile(statePath, jsonString, 0644); err != nil {
		return fmt.Errorf("writing to file: %w", err)
	}

	return nil
}

func merge(maps ...map[string]string) map[string]string {
	merge := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			merge[k] = v
		}
	}
	return merge
}

func printJSON(resp interface{}) {
	var out []byte
	switch v := resp.(type) {
	case []byte:
		var buf bytes.Buffer
		if err := json.Indent(&buf, v, "", "\t"); err != nil {
			fmt.Println(string(v))
			return
		}
		out = buf.Bytes()
	default:
		b, err := json.MarshalIndent(v, "", "\t")
		if err != nil {
			fmt.Println("unable to decode response: ", err)
			return
		}
		out = b
	}
	fmt.Println(string(out))
}

type invalidUsageError struct {
	ctx     *cli.Context
	command string
}

func (e *invalidUsageError) Error() string {
	return fmt.Sprintf("invalid usage of command %s", e.command)
}

func fatal(err error) {
	var e *invalidUsageError
	if errors.As(err, &e) {
		_ = cli.ShowCommandHelp(e.ctx, e.command)
	} else {
		_, _ = fmt.Fprintf(os.Stderr, "[xbridge] %v\n", err)
	}
	os.Exit(1)
}
