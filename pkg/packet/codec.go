package packet

import (
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/wire"
)

const (
	pver          = 0
	maxFieldBytes = 64 * 1024
)

// writer and reader keep the first error so that encoders and decoders can
// be written as a flat list of fields.
type writer struct {
	w   io.Writer
	err error
}

func (w *writer) bytes(b []byte) {
	if w.err == nil {
		w.err = wire.WriteVarBytes(w.w, pver, b)
	}
}

func (w *writer) string(s string) {
	if w.err == nil {
		w.err = wire.WriteVarString(w.w, pver, s)
	}
}

func (w *writer) varint(v uint64) {
	if w.err == nil {
		w.err = wire.WriteVarInt(w.w, pver, v)
	}
}

func (w *writer) uint64(v uint64) {
	if w.err == nil {
		w.err = binary.Write(w.w, binary.LittleEndian, v)
	}
}

func (w *writer) uint32(v uint32) {
	if w.err == nil {
		w.err = binary.Write(w.w, binary.LittleEndian, v)
	}
}

func (w *writer) int64(v int64) {
	w.uint64(uint64(v))
}

type reader struct {
	r   io.Reader
	err error
}

func (r *reader) bytes(field string) []byte {
	if r.err != nil {
		return nil
	}
	var b []byte
	b, r.err = wire.ReadVarBytes(r.r, pver, maxFieldBytes, field)
	if len(b) == 0 {
		return nil
	}
	return b
}

func (r *reader) string() string {
	if r.err != nil {
		return ""
	}
	var s string
	s, r.err = wire.ReadVarString(r.r, pver)
	return s
}

func (r *reader) varint() uint64 {
	if r.err != nil {
		return 0
	}
	var v uint64
	v, r.err = wire.ReadVarInt(r.r, pver)
	return v
}

func (r *reader) uint64() uint64 {
	if r.err != nil {
		return 0
	}
	var v uint64
	r.err = binary.Read(r.r, binary.LittleEndian, &v)
	return v
}

func (r *reader) uint32() uint32 {
	if r.err != nil {
		return 0
	}
	var v uint32
	r.err = binary.Read(r.r, binary.LittleEndian, &v)
	return v
}

func (r *reader) int64() int64 {
	return int64(r.uint64())
}
