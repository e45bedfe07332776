package msg

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pkg/errors"
)

type Type uint8

const (
	Get          Type = iota // 0
	Put          Type = iota
	Sync         Type = iota
	Update       Type = iota
	SyncRequest  Type = iota
	SyncResponse Type = iota
	Stop         Type = iota
	Data         Type = iota
	Connect      Type = iota
)

func (t Type) String() string {
	switch t {
	case Get:
		return "Get"
	case Put:
		return "Put"
	case Sync:
		return "Sync"
	case Update:
		return "Update"
	case SyncRequest:
		return "SyncRequest"
	case SyncResponse:
		return "SyncResponse"
	case Stop:
		return "Stop"
	case Data:
		return "Data"
	case Connect:
		return "Connect"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

var endian = binary.LittleEndian

var errNoMoreFrames = errors.New("no more frames")

// Message is a routed envelope carrying zero or more opaque frames.
// Ownership moves with Send: the sender must not touch it afterwards.
type Message struct {
	Src    Addr
	Dst    Addr
	Type   Type
	Target int

	frames [][]byte
	cursor int
}

func New(src, dst Addr, t Type, target int) *Message {
	return &Message{
		Src:    src,
		Dst:    dst,
		Type:   t,
		Target: target,
	}
}

// Reply creates a message of type t addressed back to the sender of m.
func (m *Message) Reply(t Type) *Message {
	return New(m.Dst, m.Src, t, m.Target)
}

// SwapAddr exchanges source and destination in place.
func (m *Message) SwapAddr() {
	m.Src, m.Dst = m.Dst, m.Src
}

func (m *Message) AddFrame(bs []byte) {
	m.frames = append(m.frames, bs)
}

func (m *Message) AddString(s string) {
	m.AddFrame([]byte(s))
}

func (m *Message) AddFloats(xs []float32) {
	m.AddFrame(EncodeFloats(xs))
}

func (m *Message) AddUint32(x uint32) {
	bs := make([]byte, 4)
	endian.PutUint32(bs, x)
	m.AddFrame(bs)
}

func (m *Message) NumFrames() int {
	return len(m.frames)
}

func (m *Message) Frames() [][]byte {
	return m.frames
}

func (m *Message) Frame(i int) []byte {
	return m.frames[i]
}

// Size is the total payload size in bytes.
func (m *Message) Size() int {
	var n int
	for _, f := range m.frames {
		n += len(f)
	}
	return n
}

// Next returns the frame under the read cursor and advances it.
func (m *Message) Next() ([]byte, error) {
	if m.cursor >= len(m.frames) {
		return nil, errors.Wrapf(errNoMoreFrames, "%s reading frame %d", m, m.cursor)
	}
	f := m.frames[m.cursor]
	m.cursor++
	return f, nil
}

func (m *Message) NextString() (string, error) {
	f, err := m.Next()
	if err != nil {
		return "", err
	}
	return string(f), nil
}

func (m *Message) NextFloats() ([]float32, error) {
	f, err := m.Next()
	if err != nil {
		return nil, err
	}
	return DecodeFloats(f)
}

func (m *Message) NextUint32() (uint32, error) {
	f, err := m.Next()
	if err != nil {
		return 0, err
	}
	if len(f) != 4 {
		return 0, errors.Errorf("%s: uint32 frame has %d bytes", m, len(f))
	}
	return endian.Uint32(f), nil
}

// Rewind resets the read cursor.
func (m *Message) Rewind() {
	m.cursor = 0
}

func (m *Message) String() string {
	return fmt.Sprintf("%s{%s -> %s, target=%d, frames=%d}", m.Type, m.Src, m.Dst, m.Target, len(m.frames))
}

func EncodeFloats(xs []float32) []byte {
	bs := make([]byte, 4*len(xs))
	for i, x := range xs {
		endian.PutUint32(bs[4*i:], math.Float32bits(x))
	}
	return bs
}

func DecodeFloats(bs []byte) ([]float32, error) {
	if len(bs)%4 != 0 {
		return nil, errors.Errorf("float frame of %d bytes", len(bs))
	}
	xs := make([]float32, len(bs)/4)
	for i := range xs {
		xs[i] = math.Float32frombits(endian.Uint32(bs[4*i:]))
	}
	return xs, nil
}
