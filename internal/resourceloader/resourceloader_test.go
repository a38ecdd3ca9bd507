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

package resourceloader_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cm4all/beprox/internal/istream"
	"github.com/cm4all/beprox/internal/resourceloader"
)

func TestResourceLoader(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "resourceloader suite")
}

// spoolHandler drains an Istream synchronously, the same way every real
// consumer in this tree does, so tests can assert on delivered bytes.
type spoolHandler struct {
	buf []byte
	eof bool
	err error
}

func (h *spoolHandler) ReceiveMask() istream.FdType { return istream.FdNone }
func (h *spoolHandler) OnData(p []byte) int {
	h.buf = append(h.buf, p...)
	return len(p)
}
func (h *spoolHandler) OnDirect(fd uintptr, offset int64, maxLength int, thenEOF bool) (istream.DirectResult, int, error) {
	return istream.DirectBlocking, 0, nil
}
func (h *spoolHandler) OnEof()            { h.eof = true }
func (h *spoolHandler) OnError(err error) { h.err = err }

func spoolForTest(src istream.Istream) ([]byte, error) {
	h := &spoolHandler{}
	src.SetHandler(h)
	for !h.eof && h.err == nil {
		src.Read()
	}
	return h.buf, h.err
}

type recordingHandler struct {
	mu       sync.Mutex
	status   int
	headers  http.Header
	hadBody  bool
	bodyStr  string
	err      error
	errCount int
	got      bool
}

func (h *recordingHandler) OnHttpResponse(status int, headers http.Header, body istream.Istream) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status, h.headers = status, headers
	if body != nil {
		h.hadBody = true
		buf, _ := spoolForTest(body)
		h.bodyStr = string(buf)
	}
	h.got = true
}

func (h *recordingHandler) OnHttpError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err, h.errCount, h.got = err, h.errCount+1, true
}

func (h *recordingHandler) received() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.got
}

func (h *recordingHandler) errors() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errCount
}

var fileAddr = &resourceloader.ResourceAddress{Kind: resourceloader.KindLocalFile}

type loaderFunc func(
	ctx context.Context, params *resourceloader.Params, method string,
	addr *resourceloader.ResourceAddress, status int, headers http.Header,
	body istream.Istream, bodyETag string, handler resourceloader.HttpResponseHandler,
) resourceloader.Cancellable

func (f loaderFunc) SendRequest(
	ctx context.Context, params *resourceloader.Params, method string,
	addr *resourceloader.ResourceAddress, status int, headers http.Header,
	body istream.Istream, bodyETag string, handler resourceloader.HttpResponseHandler,
) resourceloader.Cancellable {
	return f(ctx, params, method, addr, status, headers, body, bodyETag, handler)
}

var _ = Describe("MirrorResourceLoader", func() {
	It("echoes a 204 with no body when the request has none", func() {
		m := &resourceloader.MirrorResourceLoader{}
		h := &recordingHandler{}
		m.SendRequest(context.Background(), &resourceloader.Params{}, "GET", fileAddr, 0, http.Header{}, nil, "", h)

		Expect(h.received()).To(BeTrue())
		Expect(h.status).To(Equal(204))
		Expect(h.hadBody).To(BeFalse())
	})

	It("echoes request headers and body back with a 200", func() {
		m := &resourceloader.MirrorResourceLoader{}
		h := &recordingHandler{}
		hdr := http.Header{"X-Echo": []string{"yes"}}
		m.SendRequest(context.Background(), &resourceloader.Params{}, "POST", fileAddr, 0, hdr, istream.FromString("payload"), "", h)

		Expect(h.received()).To(BeTrue())
		Expect(h.status).To(Equal(200))
		Expect(h.headers.Get("X-Echo")).To(Equal("yes"))
		Expect(h.bodyStr).To(Equal("payload"))
	})

	It("never calls back after an early cancel", func() {
		// the mirror responds synchronously from SendRequest, so cancel
		// can only come first through a loader that defers dispatch
		b := &resourceloader.BlockingResourceLoader{}
		h := &recordingHandler{}
		c := b.SendRequest(context.Background(), &resourceloader.Params{}, "GET", fileAddr, 0, http.Header{}, nil, "", h)
		c.Cancel()
		b.Release()

		Consistently(h.received, "20ms").Should(BeFalse())
	})
})

var _ = Describe("Buffered→Mirror pipeline", func() {
	It("answers an empty-body request with 204 and no body, synchronously", func() {
		b := resourceloader.NewBufferedResourceLoader(&resourceloader.MirrorResourceLoader{})
		h := &recordingHandler{}
		b.SendRequest(context.Background(), &resourceloader.Params{}, "GET", fileAddr, 0, http.Header{}, nil, "", h)

		// no Eventually: with no body to spool, the echo happens on
		// this stack frame
		Expect(h.received()).To(BeTrue())
		Expect(h.status).To(Equal(204))
		Expect(h.hadBody).To(BeFalse())
	})

	It(`returns a 6-byte "foobar" body unchanged with a 200`, func() {
		b := resourceloader.NewBufferedResourceLoader(&resourceloader.MirrorResourceLoader{})
		h := &recordingHandler{}
		b.SendRequest(context.Background(), &resourceloader.Params{}, "POST", fileAddr, 0, http.Header{}, istream.FromString("foobar"), "", h)

		Eventually(h.received).Should(BeTrue())
		Expect(h.status).To(Equal(200))
		Expect(h.bodyStr).To(Equal("foobar"))
	})

	It("round-trips a 128 KiB body byte for byte", func() {
		big := strings.Repeat("X", 128*1024)
		b := resourceloader.NewBufferedResourceLoader(&resourceloader.MirrorResourceLoader{})
		h := &recordingHandler{}
		b.SendRequest(context.Background(), &resourceloader.Params{}, "POST", fileAddr, 0, http.Header{}, istream.FromString(big), "", h)

		Eventually(h.received).Should(BeTrue())
		Expect(h.status).To(Equal(200))
		Expect(h.bodyStr).To(Equal(big))
	})

	It("reports exactly one error when the downstream loader fails instead", func() {
		big := strings.Repeat("X", 128*1024)
		b := resourceloader.NewBufferedResourceLoader(&resourceloader.FailingResourceLoader{Err: errors.New("backend down")})
		h := &recordingHandler{}
		b.SendRequest(context.Background(), &resourceloader.Params{}, "POST", fileAddr, 0, http.Header{}, istream.FromString(big), "", h)

		Eventually(h.received).Should(BeTrue())
		Expect(h.err).To(MatchError("backend down"))
		Consistently(h.errors, "20ms").Should(Equal(1))
	})
})

var _ = Describe("FailingResourceLoader", func() {
	It("reports the configured error exactly once", func() {
		f := &resourceloader.FailingResourceLoader{Err: errors.New("nope")}
		h := &recordingHandler{}
		f.SendRequest(context.Background(), &resourceloader.Params{}, "GET", fileAddr, 0, http.Header{}, nil, "", h)

		Eventually(h.received).Should(BeTrue())
		Expect(h.err).To(MatchError("nope"))
	})
})

var _ = Describe("BlockingResourceLoader", func() {
	It("only calls back once Release is called", func() {
		b := &resourceloader.BlockingResourceLoader{}
		h := &recordingHandler{}
		b.SendRequest(context.Background(), &resourceloader.Params{}, "GET", fileAddr, 0, http.Header{}, nil, "", h)

		Consistently(h.received, "20ms").Should(BeFalse())
		b.Release()
		Eventually(h.received).Should(BeTrue())
	})

	It("never calls back once cancelled before Release", func() {
		b := &resourceloader.BlockingResourceLoader{}
		h := &recordingHandler{}
		c := b.SendRequest(context.Background(), &resourceloader.Params{}, "GET", fileAddr, 0, http.Header{}, nil, "", h)
		c.Cancel()
		b.Release()

		time.Sleep(20 * time.Millisecond)
		Expect(h.received()).To(BeFalse())
	})
})

var _ = Describe("FilterResourceLoader", func() {
	It("caches a filtered response and serves the second request from cache", func() {
		var callsMu sync.Mutex
		calls := 0
		base := loaderFunc(func(
			ctx context.Context, params *resourceloader.Params, method string,
			addr *resourceloader.ResourceAddress, status int, headers http.Header,
			body istream.Istream, bodyETag string, handler resourceloader.HttpResponseHandler,
		) resourceloader.Cancellable {
			callsMu.Lock()
			calls++
			callsMu.Unlock()
			handler.OnHttpResponse(200, http.Header{"X-From": []string{"backend"}}, istream.FromBytes([]byte("filtered")))
			return nil
		})

		f := resourceloader.NewFilterResourceLoader(base, "src1", 1<<20, time.Minute)

		h1 := &recordingHandler{}
		f.SendRequest(context.Background(), &resourceloader.Params{}, "POST", fileAddr, 200, http.Header{}, nil, "etag1", h1)
		Eventually(h1.received).Should(BeTrue())
		Expect(h1.bodyStr).To(Equal("filtered"))

		h2 := &recordingHandler{}
		f.SendRequest(context.Background(), &resourceloader.Params{}, "POST", fileAddr, 200, http.Header{}, nil, "etag1", h2)
		Eventually(h2.received).Should(BeTrue())
		Expect(h2.bodyStr).To(Equal("filtered"))

		callsMu.Lock()
		defer callsMu.Unlock()
		Expect(calls).To(Equal(1))
	})

	It("bypasses the cache entirely when no body ETag is given", func() {
		var callsMu sync.Mutex
		calls := 0
		base := loaderFunc(func(
			ctx context.Context, params *resourceloader.Params, method string,
			addr *resourceloader.ResourceAddress, status int, headers http.Header,
			body istream.Istream, bodyETag string, handler resourceloader.HttpResponseHandler,
		) resourceloader.Cancellable {
			callsMu.Lock()
			calls++
			callsMu.Unlock()
			handler.OnHttpResponse(200, http.Header{}, istream.FromBytes([]byte("x")))
			return nil
		})

		f := resourceloader.NewFilterResourceLoader(base, "src1", 1<<20, time.Minute)
		for i := 0; i < 2; i++ {
			h := &recordingHandler{}
			f.SendRequest(context.Background(), &resourceloader.Params{}, "POST", fileAddr, 200, http.Header{}, nil, "", h)
			Eventually(h.received).Should(BeTrue())
		}

		callsMu.Lock()
		defer callsMu.Unlock()
		Expect(calls).To(Equal(2))
	})
})

var _ = Describe("BufferedResourceLoader", func() {
	It("spools the request body before forwarding it as a plain memory istream", func() {
		var seenLen int
		base := loaderFunc(func(
			ctx context.Context, params *resourceloader.Params, method string,
			addr *resourceloader.ResourceAddress, status int, headers http.Header,
			body istream.Istream, bodyETag string, handler resourceloader.HttpResponseHandler,
		) resourceloader.Cancellable {
			buf, _ := spoolForTest(body)
			seenLen = len(buf)
			handler.OnHttpResponse(200, http.Header{}, nil)
			return nil
		})

		b := resourceloader.NewBufferedResourceLoader(base)
		h := &recordingHandler{}
		b.SendRequest(context.Background(), &resourceloader.Params{}, "POST", fileAddr, 0, http.Header{}, istream.FromBytes([]byte("hello world")), "", h)

		Eventually(h.received).Should(BeTrue())
		Expect(seenLen).To(Equal(len("hello world")))
	})

	It("passes through untouched when there is no request body", func() {
		called := false
		base := loaderFunc(func(
			ctx context.Context, params *resourceloader.Params, method string,
			addr *resourceloader.ResourceAddress, status int, headers http.Header,
			body istream.Istream, bodyETag string, handler resourceloader.HttpResponseHandler,
		) resourceloader.Cancellable {
			called = true
			Expect(body).To(BeNil())
			handler.OnHttpResponse(200, http.Header{}, nil)
			return nil
		})

		b := resourceloader.NewBufferedResourceLoader(base)
		h := &recordingHandler{}
		b.SendRequest(context.Background(), &resourceloader.Params{}, "GET", fileAddr, 0, http.Header{}, nil, "", h)

		Eventually(h.received).Should(BeTrue())
		Expect(called).To(BeTrue())
	})
})
