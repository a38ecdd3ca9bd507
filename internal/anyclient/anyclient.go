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

// Package anyclient decides, per TLS origin, whether to speak HTTP/1.1 or
// HTTP/2 to a backend whose ALPN preference is not yet known. The first
// request to a new origin doubles as the probe; concurrent requests that
// arrive while the probe is in flight queue up and are dispatched once
// the outcome is known.
package anyclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/sync/semaphore"
)

// State is where an origin sits in the probe state machine.
type State int

const (
	Unknown State = iota
	Pending
	HTTP1
	HTTP2
)

func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case HTTP1:
		return "HTTP1"
	case HTTP2:
		return "HTTP2"
	default:
		return "UNKNOWN"
	}
}

// OriginKey identifies the socket-level identity a probe result is
// cached against: same name/bind/remote/filter-params means the same
// negotiated protocol applies.
type OriginKey struct {
	Name          string
	BindAddress   string
	RemoteAddress string
	FilterParams  string
}

func (k OriginKey) serialize() string {
	return fmt.Sprintf("%s|%s|%s|%s", k.Name, k.BindAddress, k.RemoteAddress, k.FilterParams)
}

// Request is what Dispatch sends; Body may be nil.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// ResultHandler receives the outcome of a dispatched request. Exactly
// one of the two is called, unless the returned Cancellable is
// cancelled first.
type ResultHandler interface {
	OnResult(resp *http.Response, err error)
}

// Prober performs the ALPN handshake attempt for the first request on an
// origin and reports which protocol the peer selected ("h2" or
// "http/1.1"). The returned conn is left open and handed off by the
// caller according to the negotiated protocol.
type Prober interface {
	Probe(ctx context.Context, key OriginKey) (conn net.Conn, protocol string, err error)
}

// Pool sends a request over a given protocol's connection pool for an
// origin, dialing fresh or reusing a pooled connection as it sees fit.
type Pool interface {
	Send(ctx context.Context, key OriginKey, req *Request, handler ResultHandler)
}

// InjectablePool is a Pool that can also be handed an already-open,
// already-negotiated connection to keep around for reuse — this is how
// the ALPN probe's own socket is folded into the HTTP/1 pool instead of
// being dropped once the probe result is known.
type InjectablePool interface {
	Pool
	Inject(key OriginKey, conn net.Conn)
}

type waiter struct {
	req     *Request
	handler ResultHandler
	isFirst bool
	removed bool
	prev, next *waiter
}

type origin struct {
	mu sync.Mutex

	state State

	head, tail *waiter
	probeCancel context.CancelFunc
}

func (o *origin) pushWaiter(w *waiter) {
	w.prev = o.tail
	if o.tail != nil {
		o.tail.next = w
	} else {
		o.head = w
	}
	o.tail = w
}

func (o *origin) unlink(w *waiter) {
	if w.removed {
		return
	}
	w.removed = true

	if w.prev != nil {
		w.prev.next = w.next
	} else {
		o.head = w.next
	}
	if w.next != nil {
		w.next.prev = w.prev
	} else {
		o.tail = w.prev
	}
	w.prev, w.next = nil, nil
}

func (o *origin) drain() []*waiter {
	var out []*waiter
	for w := o.head; w != nil; w = w.next {
		out = append(out, w)
	}
	o.head, o.tail = nil, nil
	return out
}

// Cancellable mirrors the handle every in-flight asynchronous call
// returns: Cancel is idempotent, and after it runs no completion
// callback fires for the cancelled request.
type Cancellable interface {
	Cancel()
}

type cancellable struct {
	once sync.Once
	fn   func()
}

func (c *cancellable) Cancel() {
	c.once.Do(func() {
		if c.fn != nil {
			c.fn()
		}
	})
}

// Client dispatches requests through the per-origin probe state
// machine, handing off to an HTTP/1 or HTTP/2 Pool once the protocol is
// known.
type Client struct {
	mu      sync.Mutex
	origins map[string]*origin

	prober Prober
	http1  InjectablePool
	http2  Pool

	// Schedule defers probe-result handling onto the event loop rather
	// than running it directly on the probe's own goroutine, breaking
	// the reentrancy the istream filters guard against with
	// in_handler-style flags. A nil Schedule runs synchronously and is
	// only safe in tests.
	Schedule func(func())

	// ProbeLimit, when set, bounds how many probe handshakes may run at
	// once across all origins, so a burst of first requests to many
	// cold origins cannot exhaust file descriptors. Nil means
	// unbounded.
	ProbeLimit *semaphore.Weighted
}

// New returns a Client that probes with prober and dispatches resolved
// requests to http1Pool / http2Pool.
func New(prober Prober, http1Pool InjectablePool, http2Pool Pool) *Client {
	return &Client{
		origins: make(map[string]*origin),
		prober:  prober,
		http1:   http1Pool,
		http2:   http2Pool,
	}
}

func (c *Client) originFor(key OriginKey) *origin {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key.serialize()
	o, ok := c.origins[k]
	if !ok {
		o = &origin{}
		c.origins[k] = o
	}
	return o
}

// State reports the current probe state for key (test/diagnostic use).
func (c *Client) State(key OriginKey) State {
	o := c.originFor(key)
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Dispatch sends req for origin key through the probe state machine.
func (c *Client) Dispatch(ctx context.Context, key OriginKey, req *Request, handler ResultHandler) Cancellable {
	o := c.originFor(key)

	o.mu.Lock()
	switch o.state {
	case HTTP2:
		o.mu.Unlock()
		return c.sendPooled(ctx, c.http2, key, req, handler)

	case HTTP1:
		o.mu.Unlock()
		return c.sendPooled(ctx, c.http1, key, req, handler)

	case Pending:
		w := &waiter{req: req, handler: handler}
		o.pushWaiter(w)
		o.mu.Unlock()
		return &cancellable{fn: func() {
			o.mu.Lock()
			o.unlink(w)
			o.mu.Unlock()
		}}

	default: // Unknown
		o.state = Pending
		w := &waiter{req: req, handler: handler, isFirst: true}
		o.pushWaiter(w)

		probeCtx, cancel := context.WithCancel(ctx)
		o.probeCancel = cancel
		o.mu.Unlock()

		go c.runProbe(probeCtx, cancel, key, o, w)

		return &cancellable{fn: func() {
			o.mu.Lock()
			wasFirst := !w.removed && w.isFirst
			o.unlink(w)
			if wasFirst && o.probeCancel != nil {
				o.probeCancel()
			}
			o.mu.Unlock()
		}}
	}
}

func (c *Client) sendPooled(ctx context.Context, pool Pool, key OriginKey, req *Request, handler ResultHandler) Cancellable {
	cancel := make(chan struct{})
	go func() {
		pool.Send(ctx, key, req, wrapHandler(handler, cancel))
	}()
	return &cancellable{fn: func() { close(cancel) }}
}

// wrapHandler suppresses the callback entirely once cancel has fired,
// satisfying "no invocation occurs" after Cancel().
func wrapHandler(h ResultHandler, cancel chan struct{}) ResultHandler {
	return &guardedHandler{h: h, cancel: cancel}
}

type guardedHandler struct {
	h      ResultHandler
	cancel chan struct{}
}

func (g *guardedHandler) OnResult(resp *http.Response, err error) {
	select {
	case <-g.cancel:
		return
	default:
	}
	g.h.OnResult(resp, err)
}

func (c *Client) runProbe(ctx context.Context, cancel context.CancelFunc, key OriginKey, o *origin, first *waiter) {
	defer cancel()

	var (
		conn     net.Conn
		protocol string
		err      error
	)
	if c.ProbeLimit != nil {
		err = c.ProbeLimit.Acquire(ctx, 1)
	}
	if err == nil {
		conn, protocol, err = c.prober.Probe(ctx, key)
		if c.ProbeLimit != nil {
			c.ProbeLimit.Release(1)
		}
	}

	defer func() {
		if c.Schedule != nil {
			c.Schedule(func() { c.onProbeResult(key, o, first, conn, protocol, err) })
		} else {
			c.onProbeResult(key, o, first, conn, protocol, err)
		}
	}()
}

func (c *Client) onProbeResult(key OriginKey, o *origin, first *waiter, conn net.Conn, protocol string, err error) {
	o.mu.Lock()

	if err != nil {
		o.state = Unknown
		wasRemoved := first.removed
		o.unlink(first)
		rest := o.drain()
		o.mu.Unlock()

		if !wasRemoved {
			first.handler.OnResult(nil, err)
		}
		for _, w := range rest {
			c.Dispatch(context.Background(), key, w.req, w.handler)
		}
		return
	}

	var pool Pool
	switch protocol {
	case "h2":
		o.state = HTTP2
		pool = c.http2
	default:
		o.state = HTTP1
		pool = c.http1
		if c.http1 != nil {
			c.http1.Inject(key, conn)
		}
	}

	// first sits at the head of the waiter list unless it was cancelled
	waiters := o.drain()
	o.mu.Unlock()

	for _, w := range waiters {
		if w.removed {
			continue
		}
		go pool.Send(context.Background(), key, w.req, w.handler)
	}
}
