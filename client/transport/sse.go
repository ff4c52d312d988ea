package transport

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// SSEConn streams server-sent events from the backend's /stream endpoint and
// posts outbound payloads back over plain HTTP. It satisfies Conn so the
// supervisor can treat it like any other socket.
type SSEConn struct {
	client  *http.Client
	sendURL string
	token   string

	body    io.ReadCloser
	scanner *bufio.Scanner
	cancel  context.CancelFunc
}

// DialSSE returns a Dialer for the given stream and send endpoints.
// token, when non-empty, is attached as a bearer credential to both.
func DialSSE(client *http.Client, streamURL, sendURL, token string) Dialer {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) (Conn, error) {
		// The stream outlives the dial call; cancellation happens via Close.
		streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

		req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, streamURL, nil)
		if err != nil {
			cancel()
			return nil, errors.Wrap(err, "build stream request")
		}
		req.Header.Set("Accept", "text/event-stream")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := client.Do(req)
		if err != nil {
			cancel()
			return nil, errors.Wrap(err, "open stream")
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			cancel()
			return nil, errors.Errorf("open stream: unexpected status %d", resp.StatusCode)
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		return &SSEConn{
			client:  client,
			sendURL: sendURL,
			token:   token,
			body:    resp.Body,
			scanner: scanner,
			cancel:  cancel,
		}, nil
	}
}

// Recv returns the next event's data payload. Multi-line data fields are
// joined with newlines per the SSE framing rules; comment and other fields
// are skipped.
func (c *SSEConn) Recv(ctx context.Context) ([]byte, error) {
	done := ctx.Done()
	var data [][]byte
	for c.scanner.Scan() {
		select {
		case <-done:
			return nil, ctx.Err()
		default:
		}

		line := c.scanner.Text()
		if line == "" {
			if len(data) > 0 {
				return bytes.Join(data, []byte("\n")), nil
			}
			continue
		}
		if value, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, []byte(strings.TrimPrefix(value, " ")))
		}
	}
	if err := c.scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read stream")
	}
	return nil, io.EOF
}

// Send posts one payload to the send endpoint.
func (c *SSEConn) Send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sendURL, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build send request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send payload")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("send payload: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Close tears down the stream.
func (c *SSEConn) Close() error {
	c.cancel()
	return c.body.Close()
}
