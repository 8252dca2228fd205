package protocol

import (
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	HeaderUser = "USER"
	HeaderJoin = "JOIN"
	HeaderMsg  = "MSG"
	HeaderFile = "FILE"
)

var (
	ErrMalformed     = errors.New("malformed message")
	ErrUnknownHeader = errors.New("unknown header")
)

// Message is a client-to-server frame payload.
type Message interface {
	encoding.BinaryMarshaler
	Header() string
}

// Join is the handshake frame.
type Join struct {
	Username string
	Room     string
}

func (m *Join) Header() string { return HeaderUser }

func (m *Join) MarshalBinary() ([]byte, error) {
	b := appendString(nil, HeaderUser)
	b = appendString(b, m.Username)
	return appendString(b, m.Room), nil
}

type ChangeRoom struct {
	Room string
}

func (m *ChangeRoom) Header() string { return HeaderJoin }

func (m *ChangeRoom) MarshalBinary() ([]byte, error) {
	b := appendString(nil, HeaderJoin)
	return appendString(b, m.Room), nil
}

type Chat struct {
	Text string
}

func (m *Chat) Header() string { return HeaderMsg }

func (m *Chat) MarshalBinary() ([]byte, error) {
	b := appendString(nil, HeaderMsg)
	return appendString(b, m.Text), nil
}

// FileAnnounce only announces a file; no payload bytes follow it.
type FileAnnounce struct {
	Filename string
	Size     uint64
}

func (m *FileAnnounce) Header() string { return HeaderFile }

func (m *FileAnnounce) MarshalBinary() ([]byte, error) {
	b := appendString(nil, HeaderFile)
	b = appendString(b, m.Filename)
	return binary.BigEndian.AppendUint64(b, m.Size), nil
}

// Notice is the only server-to-client payload: one rendered line.
type Notice struct {
	Text string
}

func (n *Notice) MarshalBinary() ([]byte, error) {
	return appendString(nil, n.Text), nil
}

func (n *Notice) UnmarshalBinary(b []byte) error {
	r := fieldReader{b: b}
	text, err := r.readString()
	if err != nil {
		return err
	}
	if err := r.done(); err != nil {
		return err
	}
	n.Text = text
	return nil
}

// Decode parses a client payload into its concrete Message.
func Decode(b []byte) (Message, error) {
	r := fieldReader{b: b}
	header, err := r.readString()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	var msg Message
	switch header {
	case HeaderUser:
		m := &Join{}
		if m.Username, err = r.readString(); err != nil {
			return nil, fmt.Errorf("username: %w", err)
		}
		if m.Room, err = r.readString(); err != nil {
			return nil, fmt.Errorf("room: %w", err)
		}
		msg = m
	case HeaderJoin:
		m := &ChangeRoom{}
		if m.Room, err = r.readString(); err != nil {
			return nil, fmt.Errorf("room: %w", err)
		}
		msg = m
	case HeaderMsg:
		m := &Chat{}
		if m.Text, err = r.readString(); err != nil {
			return nil, fmt.Errorf("text: %w", err)
		}
		msg = m
	case HeaderFile:
		m := &FileAnnounce{}
		if m.Filename, err = r.readString(); err != nil {
			return nil, fmt.Errorf("filename: %w", err)
		}
		if m.Size, err = r.readUint64(); err != nil {
			return nil, fmt.Errorf("size: %w", err)
		}
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHeader, header)
	}

	if err := r.done(); err != nil {
		return nil, fmt.Errorf("%s: %w", header, err)
	}
	return msg, nil
}

func appendString(b []byte, s string) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

type fieldReader struct {
	b []byte
}

func (r *fieldReader) readString() (string, error) {
	if len(r.b) < 4 {
		return "", fmt.Errorf("string length truncated: %w", ErrMalformed)
	}
	n := binary.BigEndian.Uint32(r.b)
	if uint64(len(r.b)-4) < uint64(n) {
		return "", fmt.Errorf("string of %d bytes truncated: %w", n, ErrMalformed)
	}
	s := r.b[4 : 4+n]
	if !utf8.Valid(s) {
		return "", fmt.Errorf("string is not valid UTF-8: %w", ErrMalformed)
	}
	r.b = r.b[4+n:]
	return string(s), nil
}

func (r *fieldReader) readUint64() (uint64, error) {
	if len(r.b) < 8 {
		return 0, fmt.Errorf("uint64 truncated: %w", ErrMalformed)
	}
	v := binary.BigEndian.Uint64(r.b)
	r.b = r.b[8:]
	return v, nil
}

func (r *fieldReader) done() error {
	if len(r.b) != 0 {
		return fmt.Errorf("%d trailing bytes: %w", len(r.b), ErrMalformed)
	}
	return nil
}
