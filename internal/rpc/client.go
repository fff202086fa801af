package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"

	"github.com/teris-io/shortid"
)

// maxFrameSize bounds a single response line read from a peer.
const maxFrameSize = 1024 * 1024

// RemoteError is a failure reported by the serving side of a call.
type RemoteError struct {
	Pattern string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc %s: %s", e.Pattern, e.Message)
}

// Client issues requests to one downstream service. Every call goes through
// the service's circuit breaker; Ping bypasses it so health probing never
// trips or is blocked by the breaker.
type Client struct {
	name    string
	addr    string
	breaker *Breaker
	log     *log.Logger
}

func NewClient(name, addr string, breaker *Breaker, logger *log.Logger) *Client {
	return &Client{
		name:    name,
		addr:    addr,
		breaker: breaker,
		log:     logger,
	}
}

func (c *Client) Name() string {
	return c.name
}

// Call sends pattern with payload and decodes the response data into out
// (which may be nil). Returns ErrCircuitOpen, ErrTimeout, a *RemoteError or
// a transport error.
func (c *Client) Call(ctx context.Context, pattern string, payload, out any) error {
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.roundTrip(ctx, pattern, payload, out)
	})
	if errors.Is(err, ErrCircuitOpen) {
		c.log.Printf("%s: circuit open, failing %s fast", c.name, pattern)
	}

	return err
}

// Ping issues a bare health.check request outside the breaker.
func (c *Client) Ping(ctx context.Context) error {
	return c.roundTrip(ctx, "health.check", nil, nil)
}

func (c *Client) roundTrip(ctx context.Context, pattern string, payload, out any) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.name, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("set deadline: %w", err)
		}
	}

	req := Request{
		Id:      shortid.MustGenerate(),
		Pattern: pattern,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		req.Data = data
	}

	if err := json.NewEncoder(conn).Encode(&req); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	r := bufio.NewReaderSize(conn, 4096)
	line, err := readFrame(r)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.Err != "" {
		return &RemoteError{Pattern: pattern, Message: resp.Err}
	}

	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}

	return nil
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(line) > maxFrameSize {
		return nil, fmt.Errorf("frame exceeds %d bytes", maxFrameSize)
	}
	return line, nil
}
