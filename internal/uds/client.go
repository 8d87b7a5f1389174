package uds

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"syscall"
	"time"
)

// ErrNotRunning reports that nothing accepts connections on the socket.
var ErrNotRunning = errors.New("hwgw daemon not running")

// Client issues one request per connection.
type Client struct {
	path    string
	timeout time.Duration
}

// NewClient returns a client for the socket at path. The timeout bounds the dial
// and the whole exchange.
func NewClient(path string, timeout time.Duration) *Client {
	return &Client{path: path, timeout: timeout}
}

// Call sends command and decodes the reply data into out, which may be nil.
// A failed reply is returned as its *ErrorDetail.
func (c *Client) Call(command string, params, out any) error {
	req, err := NewRequest(command, params)
	if err != nil {
		return err
	}
	resp, err := c.roundTrip(req)
	if err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}
	return resp.Decode(out)
}

func (c *Client) roundTrip(req *Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.path, c.timeout)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
		return nil, fmt.Errorf("%w (socket %s)", ErrNotRunning, c.path)
	}
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	if err := WriteFrame(conn, req); err != nil {
		return nil, err
	}
	var resp Response
	if err := ReadFrame(conn, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
