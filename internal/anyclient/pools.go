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

package anyclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"

	tlscfg "github.com/cm4all/beprox/internal/tlspolicy"
)

// connectTimeout bounds the dial+handshake for a fresh backend
// connection.
const connectTimeout = 30 * time.Second

// HTTP1Pool is the InjectablePool backing the HTTP/1.1 leg: one
// net/http.Transport per origin key, whose TLS dialer first consumes a
// connection injected by the ALPN probe before dialing fresh.
type HTTP1Pool struct {
	Policy *tlscfg.Policy

	mu         sync.Mutex
	injected   map[string][]net.Conn
	transports map[string]*http.Transport
}

func NewHTTP1Pool(policy *tlscfg.Policy) *HTTP1Pool {
	return &HTTP1Pool{
		Policy:     policy,
		injected:   make(map[string][]net.Conn),
		transports: make(map[string]*http.Transport),
	}
}

// Inject stores an already-negotiated connection for reuse by the next
// request on key, so the probe's own handshake is not wasted.
func (p *HTTP1Pool) Inject(key OriginKey, conn net.Conn) {
	k := key.serialize()
	p.mu.Lock()
	p.injected[k] = append(p.injected[k], conn)
	p.mu.Unlock()
}

func (p *HTTP1Pool) popInjected(k string) net.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	conns := p.injected[k]
	if len(conns) == 0 {
		return nil
	}
	conn := conns[len(conns)-1]
	p.injected[k] = conns[:len(conns)-1]
	return conn
}

func (p *HTTP1Pool) transportFor(key OriginKey) *http.Transport {
	k := key.serialize()

	p.mu.Lock()
	if tr, ok := p.transports[k]; ok {
		p.mu.Unlock()
		return tr
	}
	p.mu.Unlock()

	tr := &http.Transport{
		ForceAttemptHTTP2:   false,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     30 * time.Second,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if conn := p.popInjected(k); conn != nil {
				return conn, nil
			}
			return dialTLS(ctx, p.Policy, key, "http/1.1")
		},
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, ok := p.transports[k]; ok {
		return prev
	}
	p.transports[k] = tr
	return tr
}

func (p *HTTP1Pool) Send(ctx context.Context, key OriginKey, req *Request, handler ResultHandler) {
	handler.OnResult(roundTrip(ctx, p.transportFor(key), req))
}

// HTTP2Pool is the Pool backing the HTTP/2 leg: one http2.Transport per
// origin key, relying on its own per-authority connection multiplexing.
type HTTP2Pool struct {
	Policy *tlscfg.Policy

	mu         sync.Mutex
	transports map[string]*http2.Transport
}

func NewHTTP2Pool(policy *tlscfg.Policy) *HTTP2Pool {
	return &HTTP2Pool{
		Policy:     policy,
		transports: make(map[string]*http2.Transport),
	}
}

func (p *HTTP2Pool) transportFor(key OriginKey) *http2.Transport {
	k := key.serialize()

	p.mu.Lock()
	defer p.mu.Unlock()
	if tr, ok := p.transports[k]; ok {
		return tr
	}

	tr := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			conn, err := dialTLS(ctx, p.Policy, key, "h2")
			if err != nil {
				return nil, err
			}
			if proto := conn.(*tls.Conn).ConnectionState().NegotiatedProtocol; proto != "h2" {
				_ = conn.Close()
				return nil, errors.New("anyclient: peer stopped speaking h2")
			}
			return conn, nil
		},
	}
	p.transports[k] = tr
	return tr
}

func (p *HTTP2Pool) Send(ctx context.Context, key OriginKey, req *Request, handler ResultHandler) {
	handler.OnResult(roundTrip(ctx, p.transportFor(key), req))
}

// dialTLS connects to key.RemoteAddress (optionally binding
// key.BindAddress locally) and completes a TLS handshake advertising
// only proto.
func dialTLS(ctx context.Context, policy *tlscfg.Policy, key OriginKey, proto string) (net.Conn, error) {
	d := &net.Dialer{Timeout: connectTimeout}
	if key.BindAddress != "" {
		laddr, err := net.ResolveTCPAddr("tcp", key.BindAddress)
		if err != nil {
			return nil, err
		}
		d.LocalAddr = laddr
	}

	raw, err := d.DialContext(ctx, "tcp", key.RemoteAddress)
	if err != nil {
		return nil, err
	}

	cfg := policy.TLS(key.Name)
	cfg.NextProtos = []string{proto}

	tc := tls.Client(raw, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return tc, nil
}

// roundTrip converts a Request to net/http shape, sends it through rt,
// and returns the response as-is (the caller owns resp.Body).
func roundTrip(ctx context.Context, rt http.RoundTripper, req *Request) (*http.Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	hr, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		hr.Header[k] = vs
	}
	if req.Body != nil {
		hr.ContentLength = int64(len(req.Body))
	}

	return rt.RoundTrip(hr)
}
