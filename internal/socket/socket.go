/*
 * MIT License
 *
 * Copyright (c) 2026 the beprox authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package socket implements the buffered, filter-chainable socket that
// every backend and client connection is built on: a double buffer
// (read/write) around a net.Conn, with an optional symmetric filter
// (e.g. TLS) interposed between the wire and the buffers.
package socket

import (
	"bytes"
	"net"
	"strings"
	"sync"
	"time"

	bperr "github.com/cm4all/beprox/internal/bperrors"
)

// DefaultBufferSize is the size of both the read and write buffers when
// none is specified.
const DefaultBufferSize = 32 * 1024

// EOL is the line terminator recognized by line-oriented protocols
// layered on top of a FilteredSocket (e.g. FastCGI/AJP framing probes).
const EOL = byte('\n')

// ErrorFilter returns nil for errors that are routine consequences of a
// peer or ourselves closing a connection (not worth logging as
// failures), and err unchanged otherwise.
func ErrorFilter(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "use of closed network connection") {
		return nil
	}
	if strings.Contains(msg, "connection reset by peer") {
		return nil
	}
	if strings.Contains(msg, "broken pipe") {
		return nil
	}
	return err
}

// Handler receives events from a FilteredSocket. All methods are called
// from whatever goroutine drives the socket's Read/Write loop; a
// FilteredSocket never calls its own Handler concurrently.
type Handler interface {
	// OnData delivers newly available, already de-filtered bytes.
	// consumed is how many leading bytes the handler took; the
	// remainder stays buffered for the next call.
	OnData(p []byte) (consumed int, err error)

	// OnDirect offers a zero-copy splice opportunity; FilteredSocket
	// implementations that can't splice never call this.
	OnDirect(fd uintptr, maxLength int) (n int, ok bool, err error)

	// OnClosed fires when the socket is closed locally.
	OnClosed()

	// OnEnd fires when the peer has cleanly ended its side (EOF on
	// read) but the socket itself is not yet closed.
	OnEnd()

	// OnRemaining reports how many bytes are still sitting in the
	// read buffer after a read that filled it; returning false tells
	// the socket to stop delivering and wait for explicit demand.
	OnRemaining(remaining int) bool

	// OnWrite fires when the write buffer has drained enough to
	// accept more data (edge-triggered writable notification).
	OnWrite()

	// OnTimeout fires on read/write inactivity; returning true closes
	// the socket, false resets the timer.
	OnTimeout() bool

	// OnDrained fires each time the write buffer transitions from
	// non-empty to empty.
	OnDrained()

	OnError(err error)
}

// Filter is a symmetric transform interposed between FilteredSocket's
// buffers and the wire, e.g. TLS. Identity (no filter) is the absence
// of a Filter, not a Filter that happens to be a no-op.
type Filter interface {
	// FilterInput transforms bytes just read off the wire before they
	// reach the read buffer (e.g. TLS decryption).
	FilterInput(p []byte) ([]byte, error)

	// FilterOutput transforms bytes about to be written to the wire
	// (e.g. TLS encryption).
	FilterOutput(p []byte) ([]byte, error)

	// OnClosed/OnRemaining/OnEnd mirror Handler's hooks so a filter
	// can observe and veto/extend socket lifecycle decisions before
	// they reach the real Handler (e.g. draining a TLS close_notify).
	OnClosed()
	OnRemaining(remaining int) bool
	OnEnd()

	// Close releases filter-owned resources (e.g. a *tls.Conn).
	Close() error
}

// FilteredSocket wraps an fd (via net.Conn) with read/write buffers and
// an optional Filter chain. Once closed, no further Read or Write may
// be issued.
type FilteredSocket struct {
	mu sync.Mutex

	conn   net.Conn
	filter Filter
	handler Handler

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer

	directMask uint32 // bitmask of FdType this socket can splice, 0 if none

	drained bool
	ended   bool
	closed  bool

	timeout time.Duration
}

// New wraps conn. filter may be nil for an unfiltered (identity)
// socket.
func New(conn net.Conn, filter Filter, handler Handler) *FilteredSocket {
	return &FilteredSocket{conn: conn, filter: filter, handler: handler, drained: true}
}

// SetTimeout sets the read/write inactivity timeout; zero disables it.
func (s *FilteredSocket) SetTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = d
	if d > 0 {
		s.conn.SetDeadline(time.Now().Add(d))
	} else {
		s.conn.SetDeadline(time.Time{})
	}
}

// DirectMask returns the fd-type bitmask this socket can splice
// directly, as set by SetDirectMask.
func (s *FilteredSocket) DirectMask() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.directMask
}

// SetDirectMask records which fd types this socket can splice
// directly; zero (the default) means every byte must go through
// OnData.
func (s *FilteredSocket) SetDirectMask(mask uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.directMask = mask
}

// Closed reports whether Close has already been called.
func (s *FilteredSocket) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Drained reports whether the write buffer (and filter, if any) is
// currently empty.
func (s *FilteredSocket) Drained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drained
}

// Read pulls more bytes off the wire, runs them through the filter, and
// delivers them to the handler. It is the caller's responsibility to
// call Read again (demand-driven, same discipline as istream.Read).
func (s *FilteredSocket) Read(buf []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return bperr.New(bperr.IO, "socket: read after close", nil)
	}
	s.mu.Unlock()

	n, err := s.conn.Read(buf)
	if n > 0 {
		raw := buf[:n]
		if s.filter != nil {
			filtered, ferr := s.filter.FilterInput(raw)
			if ferr != nil {
				s.fail(ferr)
				return ferr
			}
			raw = filtered
		}
		if len(raw) > 0 {
			s.readBuf.Write(raw)
		}
		s.pumpReadBuf()
	}

	if err != nil {
		if ErrorFilter(err) == nil {
			s.end()
			return nil
		}
		s.fail(err)
		return err
	}

	return nil
}

// pumpReadBuf delivers as much of readBuf to the handler as it will
// accept, honoring OnData's partial-consumption/backpressure contract.
func (s *FilteredSocket) pumpReadBuf() {
	for s.readBuf.Len() > 0 {
		n, err := s.handler.OnData(s.readBuf.Bytes())
		if err != nil {
			s.fail(err)
			return
		}
		if n <= 0 {
			break
		}
		s.readBuf.Next(n)
	}
	if s.readBuf.Len() > 0 {
		if !s.handler.OnRemaining(s.readBuf.Len()) {
			return
		}
	}
}

// end reports a clean peer-initiated EOF without closing the socket.
func (s *FilteredSocket) end() {
	s.mu.Lock()
	alreadyEnded := s.ended
	s.ended = true
	s.mu.Unlock()
	if !alreadyEnded {
		s.handler.OnEnd()
	}
}

func (s *FilteredSocket) fail(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.handler.OnError(err)
}

// Write queues p for the wire, running it through the filter first.
func (s *FilteredSocket) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, bperr.New(bperr.IO, "socket: write after close", nil)
	}
	s.drained = false
	s.mu.Unlock()

	out := p
	if s.filter != nil {
		filtered, err := s.filter.FilterOutput(p)
		if err != nil {
			return 0, err
		}
		out = filtered
	}

	n, err := s.conn.Write(out)
	if err != nil {
		return n, ErrorFilter(err)
	}

	s.mu.Lock()
	nowDrained := s.writeBuf.Len() == 0
	wasDrained := s.drained
	s.drained = nowDrained
	s.mu.Unlock()

	if nowDrained && !wasDrained {
		s.handler.OnDrained()
	}

	return len(p), nil
}

// Close shuts down the filter (if any) and the underlying connection,
// then calls Handler.OnClosed. Only the first call does this; later calls
// return nil. It never invokes OnEnd or OnError.
func (s *FilteredSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var ferr, cerr error
	if s.filter != nil {
		s.filter.OnClosed()
		ferr = s.filter.Close()
	}
	cerr = s.conn.Close()
	s.handler.OnClosed()

	if ferr != nil {
		return ferr
	}
	return cerr
}
