// Package packet implements the wire format of the messages exchanged by
// xbridge sessions.
//
// A serialized packet is the protocol version (uint32 LE), the command
// (uint16 LE), the sender and target addresses (var bytes, an empty target
// meaning broadcast), the creation timestamp (int64 LE, unix seconds) and the
// command specific payload. Variable length fields use the bitcoin varint
// encoding.
package packet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// Version is the protocol version of the packets produced by this
	// package. Packets of any other version are dropped.
	Version uint32 = 0xff000002
	// MaxPacketSize bounds the size of a serialized packet.
	MaxPacketSize = 1 << 20
)

// Packet is a protocol message.
type Packet struct {
	Version   uint32
	From      []byte
	To        []byte
	Timestamp int64
	Payload   Payload
}

// New returns a packet of the current version created now.
func New(from, to []byte, payload Payload) *Packet {
	return &Packet{
		Version:   Version,
		From:      from,
		To:        to,
		Timestamp: time.Now().Unix(),
		Payload:   payload,
	}
}

// Command returns the type tag of the packet.
func (p *Packet) Command() Command {
	if p.Payload == nil {
		return CommandInvalid
	}
	return p.Payload.Command()
}

// IsBroadcast returns whether the packet is addressed to every node.
func (p *Packet) IsBroadcast() bool {
	return len(p.To) == 0
}

// Serialize returns the wire representation of the packet.
func (p *Packet) Serialize() ([]byte, error) {
	if p.Payload == nil {
		return nil, ErrMissingPayload
	}

	buf := &bytes.Buffer{}
	w := &writer{w: buf}
	w.uint32(p.Version)
	if w.err == nil {
		w.err = binary.Write(buf, binary.LittleEndian, uint16(p.Payload.Command()))
	}
	w.bytes(p.From)
	w.bytes(p.To)
	w.int64(p.Timestamp)
	p.Payload.encode(w)
	if w.err != nil {
		return nil, w.err
	}
	if buf.Len() > MaxPacketSize {
		return nil, ErrPacketTooLarge
	}
	return buf.Bytes(), nil
}

// Deserialize decodes a packet. Packets of another version fail with
// ErrBadVersion, unknown commands with ErrUnknownCommand.
func Deserialize(raw []byte) (*Packet, error) {
	if len(raw) > MaxPacketSize {
		return nil, ErrPacketTooLarge
	}

	r := &reader{r: bytes.NewReader(raw)}
	version := r.uint32()
	if r.err != nil {
		return nil, fmt.Errorf("failed to read packet header: %w", r.err)
	}
	if version != Version {
		return nil, ErrBadVersion
	}

	var cmd uint16
	if err := binary.Read(r.r, binary.LittleEndian, &cmd); err != nil {
		return nil, fmt.Errorf("failed to read packet header: %w", err)
	}
	payload, err := newPayload(Command(cmd))
	if err != nil {
		return nil, err
	}

	p := &Packet{Version: version, Payload: payload}
	p.From = r.bytes("from")
	p.To = r.bytes("to")
	p.Timestamp = r.int64()
	payload.decode(r)
	if r.err != nil {
		return nil, fmt.Errorf("failed to decode %s packet: %w", Command(cmd), r.err)
	}
	return p, nil
}

// Hash returns the content hash used to de-duplicate packets.
func (p *Packet) Hash() (chainhash.Hash, error) {
	raw, err := p.Serialize()
	if err != nil {
		return chainhash.Hash{}, err
	}
	return Hash(raw), nil
}

// Hash returns the content hash of a serialized packet.
func Hash(raw []byte) chainhash.Hash {
	return chainhash.DoubleHashH(raw)
}
