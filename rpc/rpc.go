// Package pantryrpc carries Kitchen calls over any stream connection.
//
// Each frame is a little-endian uint32 length followed by a msgpack encoded
// Packet. Requests name the function in Body["function"] and carry a msgpack
// argument in Body["arg"]; responses answer with the same packet ID.
package pantryrpc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	TypeRequest  int16 = 1
	TypeResponse int16 = 2
)

// Body keys.
const (
	KeyFunction = "function"
	KeyArg      = "arg"
	KeyStatus   = "status"
	KeyMessage  = "message"
	KeyResult   = "result"
)

// MaxFrameSize bounds a single frame so a corrupt length cannot make the
// buffer grow without limit.
const MaxFrameSize = 16 << 20

var ErrFrameTooLarge = errors.New("rpc: frame exceeds MaxFrameSize")

type Packet struct {
	ID   uuid.UUID         `msgpack:"id"`
	Type int16             `msgpack:"type"`
	Meta map[string][]byte `msgpack:"meta,omitempty"`
	Body map[string][]byte `msgpack:"body,omitempty"`
}

// NewRequest builds a request for function with arg encoded as msgpack. A
// nil arg sends no argument.
func NewRequest(function string, arg any) (*Packet, error) {
	pkt := &Packet{
		ID:   uuid.New(),
		Type: TypeRequest,
		Body: map[string][]byte{KeyFunction: []byte(function)},
	}
	if arg != nil {
		b, err := msgpack.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("encode %s arg: %w", function, err)
		}
		pkt.Body[KeyArg] = b
	}
	return pkt, nil
}

func (p *Packet) Function() string { return string(p.Body[KeyFunction]) }

// Status reads the response status; 0 is success.
func (p *Packet) Status() int32 {
	b := p.Body[KeyStatus]
	if len(b) != 4 {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(b))
}

func encodeStatus(code int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(code))
	return b
}

// WriteFrame writes pkt with its length prefix in a single Write call.
func WriteFrame(w io.Writer, pkt *Packet) error {
	data, err := msgpack.Marshal(pkt)
	if err != nil {
		return err
	}
	if len(data) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	var buf bytes.Buffer
	buf.Grow(4 + len(data))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
	_, err = w.Write(buf.Bytes())
	return err
}

// PacketBuffer reassembles frames from arbitrarily split reads.
type PacketBuffer struct {
	buf bytes.Buffer
}

// Feed appends data and returns every complete packet. Bytes of an
// incomplete frame stay buffered for the next call.
func (pb *PacketBuffer) Feed(data []byte) ([]*Packet, error) {
	pb.buf.Write(data)

	var results []*Packet
	for {
		if pb.buf.Len() < 4 {
			break
		}
		length := binary.LittleEndian.Uint32(pb.buf.Bytes()[:4])
		if length > MaxFrameSize {
			pb.buf.Reset()
			return results, ErrFrameTooLarge
		}
		if pb.buf.Len() < 4+int(length) {
			// not enough data yet
			break
		}
		pb.buf.Next(4)
		frame := pb.buf.Next(int(length))

		v := new(Packet)
		if err := msgpack.Unmarshal(frame, v); err != nil {
			return results, fmt.Errorf("decode packet: %w", err)
		}
		results = append(results, v)
	}
	return results, nil
}

// Buffered is the number of bytes waiting for the rest of their frame.
func (pb *PacketBuffer) Buffered() int { return pb.buf.Len() }
