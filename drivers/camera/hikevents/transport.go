package hikevents

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

// Transport is an open byte stream to the camera.
type Transport interface {
	Write(p []byte) (int, error)
	// Read waits at most timeout for data. It returns 0, nil when nothing
	// arrived in time.
	Read(p []byte, timeout time.Duration) (int, error)
	Close() error
}

// ConnectResult is delivered exactly once per DialAsync call.
type ConnectResult struct {
	Transport Transport
	Err       error
}

// Dialer starts connection attempts. The returned channel has a buffer of one
// so the dialing goroutine never blocks on a reader that has gone away.
type Dialer interface {
	DialAsync(ctx context.Context, address string) <-chan ConnectResult
}

// TCPDialer dials plain TCP. Timeout of zero leaves the connect timeout to
// the operating system.
type TCPDialer struct {
	Timeout time.Duration
}

func (d TCPDialer) DialAsync(ctx context.Context, address string) <-chan ConnectResult {
	result := make(chan ConnectResult, 1)
	go func() {
		nd := net.Dialer{Timeout: d.Timeout}
		conn, err := nd.DialContext(ctx, "tcp", address)
		if err != nil {
			result <- ConnectResult{Err: err}
			return
		}
		result <- ConnectResult{Transport: &tcpTransport{conn: conn}}
	}()
	return result
}

type tcpTransport struct {
	conn net.Conn
}

func (t *tcpTransport) Write(p []byte) (int, error) {
	return t.conn.Write(p)
}

func (t *tcpTransport) Read(p []byte, timeout time.Duration) (int, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	n, err := t.conn.Read(p)
	var ne net.Error
	if err != nil && errors.As(err, &ne) && ne.Timeout() {
		return n, nil
	}
	return n, err
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}
