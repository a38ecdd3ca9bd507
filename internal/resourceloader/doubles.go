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

// MirrorResourceLoader echoes the request back as the response: the
// request headers become the response headers, the request body (if
// any) becomes the response body, and the status is 200 with a body or
// 204 without one. Used in tests as the simplest well-behaved backend.
type MirrorResourceLoader struct{}

func (m *MirrorResourceLoader) SendRequest(
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
	if body != nil {
		g.OnHttpResponse(http.StatusOK, headers, body)
	} else {
		g.OnHttpResponse(http.StatusNoContent, headers, nil)
	}
	return newCancel(g.cancel)
}

// FailingResourceLoader always reports Err, via Schedule if one is
// given or else from a fresh goroutine. It exists to exercise
// error-path handling in loaders above it without a real backend.
type FailingResourceLoader struct {
	Err      error
	Schedule func(func())
}

func (f *FailingResourceLoader) SendRequest(
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
	fire := func() { g.OnHttpError(f.Err) }
	if f.Schedule != nil {
		f.Schedule(fire)
	} else {
		go fire()
	}
	return newCancel(g.cancel)
}

// BlockingResourceLoader never calls back until released, to exercise
// cancellation and queueing behavior in the layers above it.
type BlockingResourceLoader struct {
	mu      sync.Mutex
	pending []func()
}

func (b *BlockingResourceLoader) SendRequest(
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
	fire := func() { g.OnHttpResponse(http.StatusOK, http.Header{}, istream.FromBytes(nil)) }

	b.mu.Lock()
	b.pending = append(b.pending, fire)
	b.mu.Unlock()

	return newCancel(g.cancel)
}

// Release fires every currently-pending callback.
func (b *BlockingResourceLoader) Release() {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, fire := range pending {
		fire()
	}
}
