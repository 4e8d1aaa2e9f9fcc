package main

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalAddr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr net.Addr
		want string
	}{
		{&net.TCPAddr{IP: net.IPv4zero, Port: 9091}, "127.0.0.1:9091"},
		{&net.TCPAddr{IP: net.IPv6unspecified, Port: 9091}, "127.0.0.1:9091"},
		{&net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 80}, "10.0.0.1:80"},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, localAddr(tt.addr))
		})
	}
}
