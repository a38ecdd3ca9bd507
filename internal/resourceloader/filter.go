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
	"fmt"
	"net/http"
	"time"

	"github.com/cm4all/beprox/internal/cache"
	"github.com/cm4all/beprox/internal/istream"
)

// filterKey identifies one cached filter result: the backend address, the
// ETag of the body that was filtered, the response status it produced,
// and the originating source (distinguishing e.g. two sites sharing one
// filter backend).
type filterKey struct {
	address  string
	bodyETag string
	status   int
	sourceID string
}

func (k filterKey) String() string {
	return fmt.Sprintf("%s|%s|%d|%s", k.address, k.bodyETag, k.status, k.sourceID)
}

type filterEntry struct {
	status  int
	headers http.Header
	body    []byte
}

// filterClass destroys nothing beyond letting the GC reclaim the byte
// slice; filterEntry owns no external resource.
type filterClass struct{}

func (filterClass) Destroy(filterEntry) {}
func (filterClass) Validate(filterEntry) bool { return true }

// FilterResourceLoader caches the result of routing a response body
// through a filter backend, keyed on (address, body ETag, status,
// source), so an unchanged origin response is never refiltered.
type FilterResourceLoader struct {
	Next     ResourceLoader
	SourceID string
	TTL      time.Duration

	cache *cache.Cache[string, filterEntry]
}

// NewFilterResourceLoader wraps next with a cache bounded at maxSize
// bytes; ttl of zero means cached entries never expire on their own.
func NewFilterResourceLoader(next ResourceLoader, sourceID string, maxSize int64, ttl time.Duration) *FilterResourceLoader {
	return &FilterResourceLoader{
		Next:     next,
		SourceID: sourceID,
		TTL:      ttl,
		cache:    cache.New[string, filterEntry](filterClass{}, maxSize),
	}
}

// Flush drops every cached filter result, for the control protocol's
// cache-flush command.
func (f *FilterResourceLoader) Flush() {
	f.cache.Flush()
}

// CacheStats reports the cache's current item count and byte size.
func (f *FilterResourceLoader) CacheStats() (items int, size int64) {
	return f.cache.Len(), f.cache.Size()
}

func (f *FilterResourceLoader) key(addr *ResourceAddress, status int, bodyETag string) string {
	k := filterKey{status: status, bodyETag: bodyETag, sourceID: f.SourceID}
	if addr.URL != nil {
		k.address = addr.URL.URL.String()
	} else {
		k.address = addr.Path
	}
	return k.String()
}

func (f *FilterResourceLoader) SendRequest(
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
	if bodyETag == "" {
		return f.Next.SendRequest(ctx, params, method, addr, status, headers, body, bodyETag, handler)
	}

	key := f.key(addr, status, bodyETag)
	g := newGuardedHandler(handler)
	if cached, _, ok := f.cache.Get(key); ok {
		go g.OnHttpResponse(cached.status, cached.headers, istream.FromBytes(cached.body))
		return newCancel(g.cancel)
	}

	collector := &filterCollector{f: f, key: key, g: g}
	inner := f.Next.SendRequest(ctx, params, method, addr, status, headers, body, bodyETag, collector)
	return newCancel(func() {
		g.cancel()
		if inner != nil {
			inner.Cancel()
		}
	})
}

// filterCollector intercepts the filtered response, spools the whole
// body into memory, caches it, and then hands the caller a fresh memory
// istream over the same bytes.
type filterCollector struct {
	f   *FilterResourceLoader
	key string
	g   *guardedHandler
}

func (c *filterCollector) OnHttpResponse(status int, headers http.Header, body istream.Istream) {
	if body == nil {
		c.g.OnHttpResponse(status, headers, nil)
		return
	}
	go func() {
		buf, err := spoolToMemory(body)
		if err != nil {
			c.g.OnHttpError(err)
			return
		}
		c.f.cache.Put(c.key, filterEntry{status: status, headers: headers, body: buf}, int64(len(buf)), c.f.TTL)
		c.g.OnHttpResponse(status, headers, istream.FromBytes(buf))
	}()
}

func (c *filterCollector) OnHttpError(err error) {
	c.g.OnHttpError(err)
}
