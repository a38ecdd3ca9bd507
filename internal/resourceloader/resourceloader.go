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

// Package resourceloader implements the layered, substitutable chain
// that turns a ResourceAddress into a response: DirectResourceLoader
// dispatches by address kind, BufferedResourceLoader stages request
// bodies so backend selection isn't blocked on them, FilterResourceLoader
// caches POST-as-filter results, and Mirror/Failing/Blocking provide
// test doubles for the same ResourceLoader contract.
package resourceloader

import (
	"context"
	"net/http"
	"sync"

	"github.com/cm4all/beprox/internal/istream"
)

// Kind tags which concrete backend a ResourceAddress targets. The wire
// encoders for FastCGI/CGI/AJP/WAS are external collaborators, named
// here only by the BackendClient interface they must satisfy.
type Kind int

const (
	KindHTTP Kind = iota
	KindFastCGI
	KindCGI
	KindAJP
	KindWASLocal
	KindWASMulti
	KindWASRemote
	KindLocalFile
	KindNFSFile
	KindPipeFilter
)

// ResourceAddress is a tagged union describing a backend target.
type ResourceAddress struct {
	Kind Kind

	// HTTP(S)
	URL *http.Request // Method/URL/Header carried via a template request; Body is never read from here

	// LocalFile / NFSFile / PipeFilter
	Path string
	Args []string

	// FastCGI / CGI / AJP / WAS: opaque, interpreted by the registered
	// BackendClient for Kind.
	Opaque map[string]string
}

// Params carries the per-request routing metadata threaded through the
// whole chain: sticky-hash, site, cache tag, ETag, flags.
type Params struct {
	StickyHash uint32 // 0 disables stickiness
	Site       string
	CacheTag   string
	ETag       string
	Flags      uint32
}

// HttpResponseHandler receives the outcome of SendRequest. Exactly one
// of OnHttpResponse / OnHttpError fires, unless Cancel() ran first.
type HttpResponseHandler interface {
	OnHttpResponse(status int, headers http.Header, body istream.Istream)
	OnHttpError(err error)
}

// Cancellable mirrors the handle every asynchronous call in the chain
// hands back. Cancel is idempotent; after it runs, no response or error
// callback fires for that request.
type Cancellable interface {
	Cancel()
}

type cancelFunc struct {
	once sync.Once
	fn   func()
}

func (c *cancelFunc) Cancel() {
	c.once.Do(func() {
		if c.fn != nil {
			c.fn()
		}
	})
}

func newCancel(fn func()) Cancellable { return &cancelFunc{fn: fn} }

// guardedHandler drops the callback once cancelled, centralizing the
// "no invocation occurs after Cancel" contract for every loader below.
type guardedHandler struct {
	h        HttpResponseHandler
	mu       sync.Mutex
	cancelled bool
}

func newGuardedHandler(h HttpResponseHandler) *guardedHandler {
	return &guardedHandler{h: h}
}

func (g *guardedHandler) cancel() {
	g.mu.Lock()
	g.cancelled = true
	g.mu.Unlock()
}

func (g *guardedHandler) OnHttpResponse(status int, headers http.Header, body istream.Istream) {
	g.mu.Lock()
	cancelled := g.cancelled
	g.mu.Unlock()
	if cancelled {
		if body != nil {
			body.Close()
		}
		return
	}
	g.h.OnHttpResponse(status, headers, body)
}

func (g *guardedHandler) OnHttpError(err error) {
	g.mu.Lock()
	cancelled := g.cancelled
	g.mu.Unlock()
	if cancelled {
		return
	}
	g.h.OnHttpError(err)
}

// ResourceLoader is the shared contract every layer in the chain
// implements and wraps.
type ResourceLoader interface {
	SendRequest(
		ctx context.Context,
		params *Params,
		method string,
		addr *ResourceAddress,
		status int,
		headers http.Header,
		body istream.Istream,
		bodyETag string,
		handler HttpResponseHandler,
	) Cancellable
}
