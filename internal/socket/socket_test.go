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

package socket_test

import (
	"fmt"
	"net"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cm4all/beprox/internal/socket"
)

func TestSocket(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "socket suite")
}

type recordingHandler struct {
	data     []byte
	closed   bool
	ended    bool
	drained  int
	err      error
}

func (h *recordingHandler) OnData(p []byte) (int, error) {
	h.data = append(h.data, p...)
	return len(p), nil
}
func (h *recordingHandler) OnDirect(fd uintptr, maxLength int) (int, bool, error) { return 0, false, nil }
func (h *recordingHandler) OnClosed()                                            { h.closed = true }
func (h *recordingHandler) OnEnd()                                               { h.ended = true }
func (h *recordingHandler) OnRemaining(remaining int) bool                       { return true }
func (h *recordingHandler) OnWrite()                                             {}
func (h *recordingHandler) OnTimeout() bool                                      { return true }
func (h *recordingHandler) OnDrained()                                           { h.drained++ }
func (h *recordingHandler) OnError(err error)                                    { h.err = err }

var _ = Describe("FilteredSocket", func() {
	It("has the expected default buffer size and EOL", func() {
		Expect(socket.DefaultBufferSize).To(Equal(32 * 1024))
		Expect(socket.EOL).To(Equal(byte('\n')))
	})

	Describe("ErrorFilter", func() {
		It("returns nil for nil input", func() {
			Expect(socket.ErrorFilter(nil)).To(BeNil())
		})

		It("filters out a closed-connection error", func() {
			err := fmt.Errorf("use of closed network connection")
			Expect(socket.ErrorFilter(err)).To(BeNil())
		})

		It("passes through an unrelated error", func() {
			err := fmt.Errorf("connection timeout")
			Expect(socket.ErrorFilter(err)).To(Equal(err))
		})
	})

	It("delivers data read off the wire to the handler unfiltered", func() {
		server, client := net.Pipe()
		defer client.Close()

		h := &recordingHandler{}
		s := socket.New(server, nil, h)

		done := make(chan struct{})
		go func() {
			buf := make([]byte, 64)
			_ = s.Read(buf)
			close(done)
		}()

		_, err := client.Write([]byte("hello"))
		Expect(err).NotTo(HaveOccurred())
		<-done

		Expect(string(h.data)).To(Equal("hello"))
	})

	It("reports OnDrained after a write empties the buffer", func() {
		server, client := net.Pipe()
		defer server.Close()
		defer client.Close()

		h := &recordingHandler{}
		s := socket.New(server, nil, h)

		go func() {
			buf := make([]byte, 64)
			client.Read(buf)
		}()

		_, err := s.Write([]byte("hi"))
		Expect(err).NotTo(HaveOccurred())
		Expect(h.drained).To(Equal(1))
		Expect(s.Drained()).To(BeTrue())
	})

	It("calls OnClosed exactly once and rejects further I/O", func() {
		server, client := net.Pipe()
		defer client.Close()

		h := &recordingHandler{}
		s := socket.New(server, nil, h)

		Expect(s.Close()).To(Succeed())
		Expect(h.closed).To(BeTrue())

		_, err := s.Write([]byte("x"))
		Expect(err).To(HaveOccurred())
	})
})

type fakePool struct {
	put, removed int
}

func (p *fakePool) Put(s *socket.FilteredSocket)    { p.put++ }
func (p *fakePool) Remove(s *socket.FilteredSocket) { p.removed++ }

var _ = Describe("Lease", func() {
	It("returns the socket to the pool on a reuse release", func() {
		server, client := net.Pipe()
		defer server.Close()
		defer client.Close()

		s := socket.New(server, nil, &recordingHandler{})
		pool := &fakePool{}
		lease := socket.NewLease(s, pool)

		lease.Release(true)

		Expect(pool.put).To(Equal(1))
		Expect(pool.removed).To(Equal(0))
		Expect(lease.Released()).To(BeTrue())
	})

	It("drops the socket on a non-reuse release", func() {
		server, client := net.Pipe()
		defer server.Close()
		defer client.Close()

		s := socket.New(server, nil, &recordingHandler{})
		pool := &fakePool{}
		lease := socket.NewLease(s, pool)

		lease.Release(false)

		Expect(pool.removed).To(Equal(1))
	})

	It("is idempotent", func() {
		server, client := net.Pipe()
		defer server.Close()
		defer client.Close()

		s := socket.New(server, nil, &recordingHandler{})
		pool := &fakePool{}
		lease := socket.NewLease(s, pool)

		lease.Release(true)
		lease.Release(true)

		Expect(pool.put).To(Equal(1))
	})
})
