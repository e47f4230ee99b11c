package hikevents

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const streamHeader = "HTTP/1.1 200 OK\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Connection: keep-alive\r\n" +
	"Content-Type: multipart/mixed; boundary=boundary\r\n\r\n"

func alertXML(eventType, eventState string) string {
	return `<EventNotificationAlert version="1.0" xmlns="http://www.hikvision.com/ver20/XMLSchema">` + "\r\n" +
		"<ipAddress>192.168.1.64</ipAddress>\r\n" +
		"<portNo>80</portNo>\r\n" +
		"<protocol>HTTP</protocol>\r\n" +
		"<macAddress>44:19:b6:6d:24:85</macAddress>\r\n" +
		"<channelID>1</channelID>\r\n" +
		"<dateTime>2024-03-01T10:00:00+01:00</dateTime>\r\n" +
		"<activePostCount>1</activePostCount>\r\n" +
		"<eventType>" + eventType + "</eventType>\r\n" +
		"<eventState>" + eventState + "</eventState>\r\n" +
		"<eventDescription>" + eventType + " alarm</eventDescription>\r\n" +
		"</EventNotificationAlert>"
}

// alertPart wraps a document the way the camera frames it on the stream.
func alertPart(doc string) string {
	return fmt.Sprintf("--boundary\r\nContent-Type: application/xml; charset=\"UTF-8\"\r\nContent-Length: %d\r\n\r\n%s\r\n", len(doc), doc)
}

type recordingSink struct {
	mu       sync.Mutex
	statuses []CameraStatus
	panicOn  *CameraStatus
}

func (s *recordingSink) OnStatusChanged(status CameraStatus) {
	s.mu.Lock()
	s.statuses = append(s.statuses, status)
	s.mu.Unlock()
	if s.panicOn != nil && *s.panicOn == status {
		panic("sink rejected " + status.String())
	}
}

func (s *recordingSink) snapshot() []CameraStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CameraStatus(nil), s.statuses...)
}

type fakeTransport struct {
	reads     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	written   []byte
}

func newFakeTransport(chunks ...string) *fakeTransport {
	t := &fakeTransport{reads: make(chan []byte, len(chunks)+16), closed: make(chan struct{})}
	for _, c := range chunks {
		t.reads <- []byte(c)
	}
	return t
}

func (t *fakeTransport) Write(p []byte) (int, error) {
	select {
	case <-t.closed:
		return 0, net.ErrClosed
	default:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.written = append(t.written, p...)
	return len(p), nil
}

func (t *fakeTransport) Read(p []byte, timeout time.Duration) (int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case chunk, ok := <-t.reads:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, chunk), nil
	case <-t.closed:
		return 0, net.ErrClosed
	case <-timer.C:
		return 0, nil
	}
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

func (t *fakeTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *fakeTransport) request() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.written...)
}

// fakeDialer fails the first failFirst attempts and then hands out transports
// from newTransport.
type fakeDialer struct {
	mu           sync.Mutex
	failFirst    int
	attempts     int
	transports   []*fakeTransport
	newTransport func(attempt int) *fakeTransport
}

func (d *fakeDialer) DialAsync(ctx context.Context, address string) <-chan ConnectResult {
	result := make(chan ConnectResult, 1)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.attempts <= d.failFirst {
		result <- ConnectResult{Err: errors.New("connection refused")}
		return result
	}
	t := newFakeTransport()
	if d.newTransport != nil {
		t = d.newTransport(d.attempts)
	}
	d.transports = append(d.transports, t)
	result <- ConnectResult{Transport: t}
	return result
}

func (d *fakeDialer) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *fakeDialer) transport(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.transports) {
		return nil
	}
	return d.transports[i]
}

type transition struct {
	from, to ConnectionState
}

type transitionLog struct {
	mu   sync.Mutex
	seen []transition
}

func (l *transitionLog) observe(from, to ConnectionState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, transition{from, to})
}

func (l *transitionLog) snapshot() []transition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]transition(nil), l.seen...)
}

func (l *transitionLog) contains(from, to ConnectionState) bool {
	for _, tr := range l.snapshot() {
		if tr.from == from && tr.to == to {
			return true
		}
	}
	return false
}

// startClient runs c in the background. The returned stop cancels it and
// returns the error of Run.
func startClient(t *testing.T, c *Client) (stop func() error, done <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()
	stop = func() error {
		cancel()
		select {
		case err := <-errc:
			return err
		case <-time.After(2 * time.Second):
			require.FailNow(t, "client did not stop")
			return nil
		}
	}
	t.Cleanup(cancel)
	return stop, errc
}

func testTimings() Timings {
	return Timings{
		ReceiveWait: 10 * time.Millisecond,
		StaleAfter:  5 * time.Second,
		RetryDelay:  time.Millisecond,
	}
}
