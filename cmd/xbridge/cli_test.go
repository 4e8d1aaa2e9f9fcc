package main

import (
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

func TestToUnits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		currency string
		amount   string
		want     uint64
		wantErr  bool
	}{
		{"whole", "BTC", "1", 100000000, false},
		{"fraction", "LTC", "0.015", 1500000, false},
		{"smallest_unit", "DCR", "0.00000001", 1, false},
		{"lowercase", "btc", "2.5", 250000000, false},
		{"too_many_decimals", "BTC", "0.000000001", 0, true},
		{"zero", "BTC", "0", 0, true},
		{"negative", "BTC", "-1", 0, true},
		{"not_a_number", "BTC", "one", 0, true},
		{"unknown_currency", "XMR", "1", 0, true},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := toUnits(tt.currency, tt.amount)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestOperatorClient(t *testing.T) {
	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	defer httpmock.DeactivateAndReset()

	const url = "http://localhost:9090"
	httpmock.RegisterResponder(http.MethodPost, url+"/v1/orders",
		func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "application/json", req.Header.Get("Content-Type"))
			return httpmock.NewJsonResponse(http.StatusCreated, map[string]string{"id": "0011"})
		},
	)
	httpmock.RegisterResponder(http.MethodGet, url+"/v1/orders/ff",
		httpmock.NewStringResponder(http.StatusNotFound, `{"error":"swap not found"}`),
	)
	httpmock.RegisterResponder(http.MethodGet, url+"/v1/addressbook",
		httpmock.NewStringResponder(http.StatusBadGateway, "bad gateway"),
	)

	client := newOperatorClient(url+"/", httpClient)

	resp, err := client.call(http.MethodPost, "/v1/orders", map[string]interface{}{
		"from_amount": 1,
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"0011"}`, string(resp))

	_, err = client.call(http.MethodGet, "/v1/orders/ff", nil)
	require.EqualError(t, err, "swap not found")

	_, err = client.call(http.MethodGet, "/v1/addressbook", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestFormatLeg(t *testing.T) {
	t.Parallel()

	require.Equal(t, "0.015 LTC (addr)", formatLeg(1500000, "LTC", "addr"))
	require.Equal(t, "42 XMR (addr)", formatLeg(42, "XMR", "addr"))
}

func TestMerge(t *testing.T) {
	t.Parallel()

	merged := merge(
		map[string]string{operatorURLKey: "http://a", daemonDatadirKey: "/tmp/x"},
		map[string]string{operatorURLKey: "http://b"},
	)
	require.Equal(t, map[string]string{
		operatorURLKey:   "http://b",
		daemonDatadirKey: "/tmp/x",
	}, merged)

	require.True(t, isStateKey(operatorURLKey))
	require.False(t, isStateKey("network"))
}
