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

package resourceloader

import (
	"context"
	"net/http"
	"sync"

	"github.com/cm4all/beprox/internal/istream"
)

// spoolSink collects every OnData delivery from an upstream Istream into
// a single buffer, synchronously, the same way memoryIstream/FileIstream
// drive their Read loops.
type spoolSink struct {
	buf []byte
	err error
	eof bool
}

func (s *spoolSink) ReceiveMask() istream.FdType { return istream.FdNone }

func (s *spoolSink) OnData(p []byte) int {
	s.buf = append(s.buf, p...)
	return len(p)
}

func (s *spoolSink) OnDirect(fd uintptr, offset int64, maxLength int, thenEOF bool) (istream.DirectResult, int, error) {
	return istream.DirectBlocking, 0, nil
}

func (s *spoolSink) OnEof()            { s.eof = true }
func (s *spoolSink) OnError(err error) { s.err = err }

// spoolToMemory fully drains src into memory before returning. It is
// only ever used on request bodies, which are bounded by the proxy's
// own request size policy upstream of this layer.
func spoolToMemory(src istream.Istream) ([]byte, error) {
	sink := &spoolSink{}
	src.SetHandler(sink)
	for !sink.eof && sink.err == nil {
		src.Read()
	}
	if sink.err != nil {
		return nil, sink.err
	}
	return sink.buf, nil
}

// BufferedResourceLoader spools the request body into memory before
// forwarding, so the wrapped loader's backend-selection and connect
// logic is never blocked waiting on slow client upload bytes.
// Requests without a body pass through unchanged.
type BufferedResourceLoader struct {
	Next ResourceLoader
}

func NewBufferedResourceLoader(next ResourceLoader) *BufferedResourceLoader {
	return &BufferedResourceLoader{Next: next}
}

func (b *BufferedResourceLoader) SendRequest(
	ctx context.Context,
	params *Params,
	method string,
	addr *ResourceAddress,
	status int,
	headers http.Header,
	body istream.Istream,
	bodyETag string,
	handler HttpResponseHandler,
) Cancellable {
	if body == nil {
		return b.Next.SendRequest(ctx, params, method, addr, status, headers, body, bodyETag, handler)
	}

	g := newGuardedHandler(handler)
	c := &bufferedCancel{}
	go func() {
		buf, err := spoolToMemory(body)
		if err != nil {
			if !c.cancelledBeforeDispatch() {
				g.OnHttpError(err)
			}
			return
		}
		if c.cancelledBeforeDispatch() {
			return
		}
		inner := b.Next.SendRequest(ctx, params, method, addr, status, headers, istream.FromBytes(buf), bodyETag, g)
		c.setInner(inner)
	}()
	return c
}

// bufferedCancel bridges cancellation across the spool-then-dispatch
// gap: Cancel before the inner request exists suppresses that dispatch
// entirely; Cancel after forwards to the inner Cancellable.
type bufferedCancel struct {
	mu        sync.Mutex
	cancelled bool
	dispatched bool
	inner     Cancellable
}

func (c *bufferedCancel) cancelledBeforeDispatch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

func (c *bufferedCancel) setInner(inner Cancellable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatched = true
	if c.cancelled {
		inner.Cancel()
		return
	}
	c.inner = inner
}

func (c *bufferedCancel) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
	if c.dispatched && c.inner != nil {
		c.inner.Cancel()
	}
}
