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
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/net/http/httpguts"

	bperr "github.com/cm4all/beprox/internal/bperrors"
	"github.com/cm4all/beprox/internal/istream"
)

// ErrPrematureClose is what an HTTPTransport reports when the backend
// closed its socket before any response header was seen.
var ErrPrematureClose = errors.New("resourceloader: backend closed connection before sending a response")

// maxRetries and blacklistDuration implement retry-on-premature-close:
// up to two retries when no request body was sent, each against
// a freshly balanced socket; exhausting retries (or a body being
// present) marks the backend protocol-faulty for this long.
const (
	maxRetries        = 2
	blacklistDuration = 20 * time.Second
)

// HTTPTransport sends one HTTP(S) request and blocks for the outcome.
// DirectResourceLoader owns retry and blacklist policy; a transport
// implementation owns balancing, connecting, and the actual AnyClient
// dispatch.
type HTTPTransport interface {
	Do(ctx context.Context, params *Params, method string, addr *ResourceAddress, headers http.Header, body istream.Istream) (status int, respHeaders http.Header, respBody io.ReadCloser, err error)
}

// BackendClient is satisfied by each external per-protocol client
// (FastCGI/CGI/AJP/WAS) this loader dispatches to by Kind; it shares
// ResourceLoader's exact shape since nothing else distinguishes them at
// this layer.
type BackendClient = ResourceLoader

// DirectResourceLoader is the bottom of the chain: it picks a concrete
// backend from addr.Kind and sends the request there directly.
type DirectResourceLoader struct {
	HTTP     HTTPTransport
	Backends map[Kind]BackendClient // FastCGI/CGI/AJP/WAS/PipeFilter, registered externally

	mu        sync.Mutex
	blacklist map[string]time.Time
}

// NewDirectResourceLoader returns a loader that sends HTTP(S) requests
// through transport and delegates every other Kind to the matching
// entry of backends.
func NewDirectResourceLoader(transport HTTPTransport, backends map[Kind]BackendClient) *DirectResourceLoader {
	return &DirectResourceLoader{
		HTTP:      transport,
		Backends:  backends,
		blacklist: make(map[string]time.Time),
	}
}

func (d *DirectResourceLoader) SendRequest(
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
	g := newGuardedHandler(handler)

	switch addr.Kind {
	case KindHTTP:
		go d.sendHTTP(ctx, params, method, addr, headers, body, g)
	case KindLocalFile, KindNFSFile:
		go d.sendFile(addr, g)
	default:
		if bc, ok := d.Backends[addr.Kind]; ok {
			return bc.SendRequest(ctx, params, method, addr, status, headers, body, bodyETag, g)
		}
		go g.OnHttpError(errUnsupportedKind(addr.Kind))
	}

	return newCancel(g.cancel)
}

func errUnsupportedKind(k Kind) error {
	return errors.New("resourceloader: no backend registered for this address kind")
}

// validateHeaders rejects field names or values that could smuggle
// framing into the backend connection, before any socket is spent on
// the request.
func validateHeaders(headers http.Header) error {
	for name, values := range headers {
		if !httpguts.ValidHeaderFieldName(name) {
			return bperr.New(bperr.Protocol, "invalid request header field name", nil)
		}
		for _, v := range values {
			if !httpguts.ValidHeaderFieldValue(v) {
				return bperr.New(bperr.Protocol, "invalid request header field value", nil)
			}
		}
	}
	return nil
}

func (d *DirectResourceLoader) backendKey(addr *ResourceAddress) string {
	if addr.URL != nil {
		return addr.URL.Host
	}
	return addr.Path
}

func (d *DirectResourceLoader) isBlacklisted(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	until, ok := d.blacklist[key]
	return ok && time.Now().Before(until)
}

func (d *DirectResourceLoader) blacklistBackend(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blacklist[key] = time.Now().Add(blacklistDuration)
}

func (d *DirectResourceLoader) sendHTTP(
	ctx context.Context,
	params *Params,
	method string,
	addr *ResourceAddress,
	headers http.Header,
	body istream.Istream,
	g *guardedHandler,
) {
	key := d.backendKey(addr)
	if d.isBlacklisted(key) {
		g.OnHttpError(errors.New("resourceloader: backend marked protocol-faulty"))
		return
	}

	if err := validateHeaders(headers); err != nil {
		g.OnHttpError(err)
		return
	}

	attempts := 0
	for {
		status, respHeaders, respBody, err := d.HTTP.Do(ctx, params, method, addr, headers, body)
		if err == nil {
			g.OnHttpResponse(status, respHeaders, istream.NewReaderIstream(respBody, 0))
			return
		}

		retryable := errors.Is(err, ErrPrematureClose) && body == nil
		attempts++
		if !retryable || attempts > maxRetries {
			d.blacklistBackend(key)
			g.OnHttpError(err)
			return
		}
	}
}

func (d *DirectResourceLoader) sendFile(addr *ResourceAddress, g *guardedHandler) {
	f, err := os.Open(addr.Path)
	if err != nil {
		g.OnHttpError(err)
		return
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		g.OnHttpError(err)
		return
	}

	body := istream.NewFileIstream(f, 0, info.Size())
	g.OnHttpResponse(http.StatusOK, http.Header{}, body)
}
