package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"
)

// Common errors
var (
	ErrDaemonNotRunning = errors.New("daemon is not running")
	ErrUnexpectedReply  = errors.New("unexpected reply")
)

// Client sends requests to a running daemon. Requests are serialized.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	nextID uint32
}

// Dial connects to the daemon's control socket.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		if errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%s: %w", socketPath, ErrDaemonNotRunning)
		}
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Request sends one message and waits for the reply. An error reply is
// returned as *ErrorResponse.
func (c *Client) Request(ctx context.Context, msgType MessageType, payload any) (*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := Encode(payload)
	if err != nil {
		return nil, err
	}

	c.nextID++
	id := c.nextID

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	c.conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { c.conn.SetDeadline(time.Now()) })
	defer stop()

	if err := NewMessage(msgType, id, data).Write(c.conn); err != nil {
		return nil, fmt.Errorf("send %s: %w", msgType, err)
	}

	reply, err := ReadMessage(c.conn)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read reply: %w", err)
	}

	if reply.Header.Type == MsgError {
		var e ErrorResponse
		if err := Decode(reply.Payload, &e); err != nil {
			return nil, err
		}
		return nil, &e
	}
	// Rejections before the first request carry ID 0.
	if reply.Header.RequestID != id {
		return nil, fmt.Errorf("%w: request id %d, want %d", ErrUnexpectedReply, reply.Header.RequestID, id)
	}
	return reply, nil
}

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	reply, err := c.Request(ctx, MsgPing, nil)
	if err != nil {
		return err
	}
	if reply.Header.Type != MsgPong {
		return fmt.Errorf("%w: %s", ErrUnexpectedReply, reply.Header.Type)
	}
	return nil
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call(ctx, MsgStatusRequest, MsgStatusResponse, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Toggle presses the trigger hotkey on the daemon's behalf.
func (c *Client) Toggle(ctx context.Context) (*ControlResponse, error) {
	var resp ControlResponse
	if err := c.call(ctx, MsgToggle, MsgToggleResp, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Quit asks the daemon to release held input and exit.
func (c *Client) Quit(ctx context.Context) (*ControlResponse, error) {
	var resp ControlResponse
	if err := c.call(ctx, MsgQuit, MsgQuitResp, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) call(ctx context.Context, req, want MessageType, out any) error {
	reply, err := c.Request(ctx, req, nil)
	if err != nil {
		return err
	}
	if reply.Header.Type != want {
		return fmt.Errorf("%w: %s", ErrUnexpectedReply, reply.Header.Type)
	}
	return Decode(reply.Payload, out)
}
