package ctlplane

import (
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	// ErrRequestFailed is returned when the daemon replied error.
	ErrRequestFailed = errors.New("command failed")
	// ErrUnexpectedReply is returned for any reply other than ok or error.
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// DialTimeout bounds connection setup.
const DialTimeout = 5 * time.Second

// Client sends commands to a running daemon.
type Client struct {
	conn net.Conn
}

// Dial connects to the control socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to control socket at %s: %w", path, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Do sends one command and waits for its reply.
func (c *Client) Do(t Type, name string) error {
	if err := WriteMessage(c.conn, Message{Type: t, Name: name}); err != nil {
		return fmt.Errorf("send %s: %w", t, err)
	}
	reply, err := ReadMessage(c.conn)
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	switch reply.Type {
	case TypeOK:
		return nil
	case TypeError:
		return ErrRequestFailed
	}
	return fmt.Errorf("%w: %s", ErrUnexpectedReply, reply.Type)
}
