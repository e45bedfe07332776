package msg

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	MaxFrameSize = 64 << 20
	MaxFrames    = 1 << 16
)

var (
	ErrFrameTooLarge = errors.New("frame too large")
	ErrTooManyFrames = errors.New("too many frames")
)

type wireHeader struct {
	Src     uint32
	Dst     uint32
	Control uint32
	NFrames uint32
}

func (m *Message) header() (*wireHeader, error) {
	src, err := PackAddr(m.Src)
	if err != nil {
		return nil, err
	}
	dst, err := PackAddr(m.Dst)
	if err != nil {
		return nil, err
	}
	ctrl, err := PackControl(m.Type, m.Target)
	if err != nil {
		return nil, err
	}
	if len(m.frames) > MaxFrames {
		return nil, errors.Wrapf(ErrTooManyFrames, "%d", len(m.frames))
	}
	return &wireHeader{Src: src, Dst: dst, Control: ctrl, NFrames: uint32(len(m.frames))}, nil
}

// Validate checks that the header fits the wire layout.
func (m *Message) Validate() error {
	_, err := m.header()
	return err
}

func (m *Message) Encode(w io.Writer) error {
	h, err := m.header()
	if err != nil {
		return err
	}
	if err := binary.Write(w, endian, h); err != nil {
		return err
	}
	for _, f := range m.frames {
		if len(f) > MaxFrameSize {
			return errors.Wrapf(ErrFrameTooLarge, "%d bytes", len(f))
		}
		if err := binary.Write(w, endian, uint32(len(f))); err != nil {
			return err
		}
		if _, err := w.Write(f); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads a message into m, replacing its content.
func (m *Message) Decode(r io.Reader) error {
	var h wireHeader
	if err := binary.Read(r, endian, &h); err != nil {
		return err
	}
	if h.NFrames > MaxFrames {
		return errors.Wrapf(ErrTooManyFrames, "%d", h.NFrames)
	}
	m.Src = UnpackAddr(h.Src)
	m.Dst = UnpackAddr(h.Dst)
	m.Type, m.Target = UnpackControl(h.Control)
	m.frames = make([][]byte, h.NFrames)
	m.cursor = 0
	for i := range m.frames {
		var n uint32
		if err := binary.Read(r, endian, &n); err != nil {
			return err
		}
		if n > MaxFrameSize {
			return errors.Wrapf(ErrFrameTooLarge, "%d bytes", n)
		}
		m.frames[i] = make([]byte, n)
		if _, err := io.ReadFull(r, m.frames[i]); err != nil {
			return err
		}
	}
	return nil
}
