package packet_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/xbridge/pkg/packet"
)

var (
	from  = []byte("from-session-address")
	to    = []byte("to-session-address00")
	terms = packet.Terms{
		Source:         "mzBc4XEFSdzCDcTxAgf6EZXgsZWpztRhef",
		SourceCurrency: "BTC",
		SourceAmount:   100000000,
		Dest:           "mkHS9ne12qx9pS9VojpwU5xtRd4T7X7ZUt",
		DestCurrency:   "LTC",
		DestAmount:     200000000,
	}
	deposit = packet.Deposit{
		BinTxID:     "7d8b1e0c0f8e6b0ad5c08a2b4c1bcd2c95e1e28f9e1d6bd9a5d3f3fb3cbe2d01",
		InnerScript: []byte{0x63, 0x51, 0x67, 0x52, 0x68},
		LockTime:    1200,
	}
	pubKey = append([]byte{0x02}, make([]byte, 32)...)
)

func TestPacketSerialization(t *testing.T) {
	tests := []struct {
		name    string
		to      []byte
		payload packet.Payload
	}{
		{"announce_addresses", nil, &packet.AnnounceAddresses{
			Entries: []packet.AddressEntry{
				{Currency: "BTC", Name: "main", Address: terms.Source},
				{Currency: "LTC", Name: "", Address: terms.Dest},
			},
		}},
		{"xchat", to, &packet.XChatMessage{Packet: []byte{1, 2, 3}}},
		{"transaction", nil, &packet.Transaction{ID: "id", Terms: terms, Created: 1600000000}},
		{"pending_transaction", nil, &packet.PendingTransaction{
			ID: "id", SourceCurrency: "BTC", SourceAmount: 1,
			DestCurrency: "LTC", DestAmount: 2, Created: 1600000000,
		}},
		{"accepting", to, &packet.TransactionAccepting{ID: "id", Terms: terms}},
		{"cancel", to, &packet.TransactionCancel{ID: "id", Reason: 16}},
		{"hold", to, &packet.TransactionHold{ID: "id"}},
		{"hold_apply", to, &packet.TransactionHoldApply{ID: "id"}},
		{"init", to, &packet.TransactionInit{ID: "id", Role: 'A', Terms: terms}},
		{"initialized", to, &packet.TransactionInitialized{
			ID: "id", MPubKey: pubKey, XHash: make([]byte, 20),
		}},
		{"create_a", to, &packet.TransactionCreateA{ID: "id", OtherMPubKey: pubKey}},
		{"created_a", to, &packet.TransactionCreatedA{ID: "id", Deposit: deposit}},
		{"create_b", to, &packet.TransactionCreateB{
			ID: "id", OtherDeposit: deposit, OtherMPubKey: pubKey, XHash: []byte{1},
		}},
		{"created_b", to, &packet.TransactionCreatedB{ID: "id", Deposit: deposit}},
		{"confirm_a", to, &packet.TransactionConfirmA{
			ID: "id", OtherDeposit: deposit, OtherMPubKey: pubKey,
		}},
		{"confirmed_a", to, &packet.TransactionConfirmedA{
			ID: "id", PayTxID: "paytxid", XPubKey: pubKey,
		}},
		{"confirm_b", to, &packet.TransactionConfirmB{ID: "id", XPubKey: pubKey}},
		{"confirmed_b", to, &packet.TransactionConfirmedB{ID: "id", PayTxID: "paytxid"}},
		{"finished", to, &packet.TransactionFinished{ID: "id"}},
		{"rollback", to, &packet.TransactionRollback{ID: "id", Reason: 1}},
		{"dropped", nil, &packet.TransactionDropped{ID: "id", Reason: 16}},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := packet.New(from, tt.to, tt.payload)
			raw, err := p.Serialize()
			require.NoError(t, err)

			decoded, err := packet.Deserialize(raw)
			require.NoError(t, err)
			require.Equal(t, p, decoded)
			require.Equal(t, tt.to == nil, decoded.IsBroadcast())
			require.Equal(t, tt.payload.Command(), decoded.Command())

			if tt.payload.Command() != packet.CommandAnnounceAddresses &&
				tt.payload.Command() != packet.CommandXChatMessage {
				require.Equal(t, "id", packet.TransactionID(decoded.Payload))
			}
		})
	}
}

func TestFailingPacketDeserialization(t *testing.T) {
	valid, err := packet.New(from, nil, &packet.TransactionHold{ID: "id"}).Serialize()
	require.NoError(t, err)

	badVersion := append([]byte{}, valid...)
	binary.LittleEndian.PutUint32(badVersion, packet.Version+1)

	unknownCommand := append([]byte{}, valid...)
	binary.LittleEndian.PutUint16(unknownCommand[4:], 0xffff)

	tests := []struct {
		name        string
		raw         []byte
		expectedErr error
	}{
		{"bad_version", badVersion, packet.ErrBadVersion},
		{"unknown_command", unknownCommand, packet.ErrUnknownCommand},
		{"too_large", make([]byte, packet.MaxPacketSize+1), packet.ErrPacketTooLarge},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := packet.Deserialize(tt.raw)
			require.ErrorIs(t, err, tt.expectedErr)
		})
	}

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()

		_, err := packet.Deserialize(valid[:len(valid)-1])
		require.Error(t, err)
		_, err = packet.Deserialize(valid[:2])
		require.Error(t, err)
	})
}

func TestPacketHash(t *testing.T) {
	t.Parallel()

	p := packet.New(from, nil, &packet.Transaction{ID: "id", Terms: terms})
	h1, err := p.Hash()
	require.NoError(t, err)
	h2, err := p.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	raw, err := p.Serialize()
	require.NoError(t, err)
	require.Equal(t, h1, packet.Hash(raw))

	p.Timestamp++
	h3, err := p.Hash()
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)

	_, err = (&packet.Packet{Version: packet.Version}).Serialize()
	require.ErrorIs(t, err, packet.ErrMissingPayload)
}
