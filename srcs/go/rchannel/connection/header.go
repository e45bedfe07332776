package connection

import (
	"encoding/binary"
	"errors"
	"io"
)

type ConnType uint16

const (
	ConnPing    ConnType = iota // 0
	ConnMessage ConnType = iota
)

var (
	ErrInvalidConnectionType = errors.New("invalid connection type")
)

func (t ConnType) String() string {
	switch t {
	case ConnPing:
		return "Ping"
	case ConnMessage:
		return "Message"
	default:
		return ""
	}
}

var endian = binary.LittleEndian

type connectionHeader struct {
	Type    uint16
	SrcPort uint16
	SrcIPv4 uint32
}

func (h connectionHeader) WriteTo(w io.Writer) error {
	return binary.Write(w, endian, &h)
}

func (h *connectionHeader) ReadFrom(r io.Reader) error {
	return binary.Read(r, endian, h)
}

type connectionACK struct {
	Token uint32
}

func (a connectionACK) WriteTo(w io.Writer) error {
	return binary.Write(w, endian, &a)
}

func (a *connectionACK) ReadFrom(r io.Reader) error {
	return binary.Read(r, endian, a)
}
