package hikevents

import "bytes"

var (
	messageStartMarker = []byte("<EventNotification")
	messageEndMarker   = []byte("</EventNotificationAlert>")
)

// FrameExtractor accumulates bytes read from the alert stream and cuts
// complete EventNotificationAlert documents out of them.
// Bytes before off have been consumed and are never examined again.
type FrameExtractor struct {
	buf []byte
	off int
}

func NewFrameExtractor() *FrameExtractor {
	return &FrameExtractor{}
}

// Write appends stream data to the buffer. It never fails.
func (fe *FrameExtractor) Write(p []byte) (int, error) {
	fe.compact()
	fe.buf = append(fe.buf, p...)
	return len(p), nil
}

// Reset drops all buffered data.
func (fe *FrameExtractor) Reset() {
	fe.buf = fe.buf[:0]
	fe.off = 0
}

// Len returns the number of unconsumed bytes.
func (fe *FrameExtractor) Len() int {
	return len(fe.buf) - fe.off
}

// Extract looks for the next message boundary. When no end marker is buffered
// it returns ok=false and leaves the buffer untouched. Otherwise everything
// through the end marker is consumed; msg is the document from the first
// start marker preceding the boundary, or nil when there is none, in which
// case the fragment is dropped. At most one boundary is handled per call.
// msg is a copy and stays valid after further writes.
func (fe *FrameExtractor) Extract() (msg []byte, ok bool) {
	pending := fe.buf[fe.off:]
	end := bytes.Index(pending, messageEndMarker)
	if end < 0 {
		return nil, false
	}
	stop := end + len(messageEndMarker)
	if start := bytes.Index(pending[:end], messageStartMarker); start >= 0 {
		msg = make([]byte, stop-start)
		copy(msg, pending[start:stop])
	}
	fe.off += stop
	return msg, true
}

// compact moves unconsumed bytes to the front of the backing array once the
// consumed prefix dominates it.
func (fe *FrameExtractor) compact() {
	if fe.off == 0 {
		return
	}
	if fe.off == len(fe.buf) {
		fe.buf = fe.buf[:0]
		fe.off = 0
		return
	}
	if fe.off < len(fe.buf)-fe.off {
		return
	}
	n := copy(fe.buf, fe.buf[fe.off:])
	fe.buf = fe.buf[:n]
	fe.off = 0
}
