package ctlplane

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/google/nftables/binaryutil"
)

// Type is a control message type.
type Type uint32

const (
	TypeOK Type = iota
	TypeError
	TypeFlush
	TypeBuild
	TypeReload
	TypeAddIf
	TypeDelIf
)

const (
	// PayloadSize is the fixed size of the payload field.
	PayloadSize = 256
	// MessageSize is the size of one message on the wire.
	MessageSize = 4 + PayloadSize
)

// ErrNameTooLong is returned when a network name does not fit the payload.
var ErrNameTooLong = errors.New("network name too long")

var typeNames = map[Type]string{
	TypeOK:     "ok",
	TypeError:  "error",
	TypeFlush:  "flush",
	TypeBuild:  "build",
	TypeReload: "reload",
	TypeAddIf:  "addif",
	TypeDelIf:  "delif",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

// IsRequest reports whether t is a command a server acts on.
func (t Type) IsRequest() bool {
	return t >= TypeFlush && t <= TypeDelIf
}

// ParseType maps a command name to its Type.
func ParseType(s string) (Type, bool) {
	for t, name := range typeNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

// Message is one control message. Name is only carried for addif and delif.
type Message struct {
	Type Type
	Name string
}

// MarshalBinary encodes m into MessageSize bytes.
func (m Message) MarshalBinary() ([]byte, error) {
	if len(m.Name) >= PayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(m.Name))
	}
	buf := make([]byte, MessageSize)
	copy(buf, binaryutil.NativeEndian.PutUint32(uint32(m.Type)))
	if m.Type == TypeAddIf || m.Type == TypeDelIf {
		copy(buf[4:], m.Name)
	}
	return buf, nil
}

// UnmarshalBinary decodes a MessageSize buffer. The name ends at the first
// NUL; a payload without one is truncated to PayloadSize-1 bytes.
func (m *Message) UnmarshalBinary(b []byte) error {
	if len(b) != MessageSize {
		return fmt.Errorf("short message: %d bytes", len(b))
	}
	m.Type = Type(binaryutil.NativeEndian.Uint32(b[:4]))
	m.Name = ""
	if m.Type != TypeAddIf && m.Type != TypeDelIf {
		return nil
	}
	payload := b[4 : MessageSize-1]
	if i := bytes.IndexByte(payload, 0); i >= 0 {
		payload = payload[:i]
	}
	m.Name = string(payload)
	return nil
}

// ReadMessage reads exactly one message. It returns io.EOF only when the
// peer closed the connection between messages.
func ReadMessage(r io.Reader) (Message, error) {
	buf := make([]byte, MessageSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Message{}, err
	}
	var m Message
	err := m.UnmarshalBinary(buf)
	return m, err
}

// WriteMessage writes one message.
func WriteMessage(w io.Writer, m Message) error {
	buf, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
