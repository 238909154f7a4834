package uds

import (
	"fmt"
	"net"
	"time"
)

// defaultTimeout bounds the full dial/write/read exchange for one command.
const defaultTimeout = 30 * time.Second

// Client is the CLI side of the protocol. Every call dials the daemon
// socket, writes one framed request and reads back one framed response.
type Client struct {
	socket  string
	timeout time.Duration
}

func NewClient(socketPath string) *Client {
	return &Client{socket: socketPath, timeout: defaultTimeout}
}

func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// SendCommand wraps params in a request envelope and sends it.
func (c *Client) SendCommand(command string, params any) (*Response, error) {
	req, err := NewRequest(command, params)
	if err != nil {
		return nil, err
	}
	return c.Send(req)
}

// Send performs one request/response round trip over a fresh connection.
func (c *Client) Send(req *Request) (*Response, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	if err := WriteFrame(conn, req); err != nil {
		return nil, fmt.Errorf("write request frame: %w", err)
	}
	resp := new(Response)
	if err := ReadFrame(conn, resp); err != nil {
		return nil, fmt.Errorf("read response frame: %w", err)
	}
	return resp, nil
}

// dial connects to the daemon socket and arms the deadline covering the
// whole exchange.
func (c *Client) dial() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socket, c.timeout)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to connect to daemon at %s: %w\n"+
				"Is the daemon running? Start it with: steplock daemon",
			c.socket, err,
		)
	}
	_ = conn.SetDeadline(time.Now().Add(c.timeout))
	return conn, nil
}
