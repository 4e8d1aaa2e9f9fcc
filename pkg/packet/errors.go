package packet

import "errors"

var (
	// ErrBadVersion is returned when decoding a packet of another protocol
	// version.
	ErrBadVersion = errors.New("unsupported packet version")
	// ErrUnknownCommand is returned when decoding a packet with an unknown
	// type tag.
	ErrUnknownCommand = errors.New("unknown packet command")
	// ErrPacketTooLarge is returned when a serialized packet exceeds
	// MaxPacketSize.
	ErrPacketTooLarge = errors.New("packet too large")
	// ErrMissingPayload is returned when serializing a packet without payload.
	ErrMissingPayload = errors.New("missing packet payload")
)
