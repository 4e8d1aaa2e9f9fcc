package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const requestTimeout = 30 * time.Second

type operatorClient struct {
	url  string
	http *http.Client
}

func getOperatorClient() (*operatorClient, error) {
	state, err := getState()
	if err != nil {
		return nil, err
	}
	url, ok := state[operatorURLKey]
	if !ok || url == "" {
		return nil, errors.New("set operator url with `config set operator_url`")
	}
	return newOperatorClient(url, &http.Client{Timeout: requestTimeout}), nil
}

func newOperatorClient(url string, client *http.Client) *operatorClient {
	return &operatorClient{strings.TrimSuffix(url, "/"), client}
}

// call sends body as JSON and returns the raw JSON response.
func (c *operatorClient) call(method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.url+path, reqBody)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to operator interface: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(respBody, &e); err != nil || e.Error == "" {
			return nil, fmt.Errorf("operator interface: %s", resp.Status)
		}
		return nil, errors.New(e.Error)
	}
	return respBody, nil
}
