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

package istream_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cm4all/beprox/internal/istream"
)

var _ = Describe("CappedIstream", func() {
	It("never delivers more than Max bytes at once", func() {
		src := istream.FromString("abcdefghij")
		f := istream.NewFour(src)
		sink := &istream.Sink{}
		var maxSeen int
		sink.OnDataFunc = func(p []byte) int {
			if len(p) > maxSeen {
				maxSeen = len(p)
			}
			sink.Data = append(sink.Data, p...)
			return len(p)
		}
		f.SetHandler(sink)

		f.Read()

		Expect(string(sink.Data)).To(Equal("abcdefghij"))
		Expect(maxSeen).To(BeNumerically("<=", 4))
	})

	It("ByteIstream delivers one byte at a time", func() {
		src := istream.FromString("ab")
		b := istream.NewByte(src)
		sink := &istream.Sink{}
		var calls int
		sink.OnDataFunc = func(p []byte) int {
			calls++
			sink.Data = append(sink.Data, p...)
			return len(p)
		}
		b.SetHandler(sink)

		b.Read()

		Expect(string(sink.Data)).To(Equal("ab"))
		Expect(calls).To(Equal(2))
	})
})

var _ = Describe("ApproveIstream", func() {
	It("only forwards bytes covered by the current quota", func() {
		src := istream.FromString("abcdefgh")
		a := istream.NewApprove(src)
		sink := &istream.Sink{}
		a.SetHandler(sink)

		a.Approve(3)
		Expect(string(sink.Data)).To(Equal("abc"))

		a.Approve(5)
		Expect(string(sink.Data)).To(Equal("abcdefgh"))
		Expect(sink.Eof).To(BeTrue())
	})
})

var _ = Describe("OptionalIstream", func() {
	It("becomes an empty EOF stream once Discard is called", func() {
		src := istream.FromString("abcdef")
		o := istream.NewOptional(src)
		sink := &istream.Sink{}
		o.SetHandler(sink)

		o.Discard()
		o.Read()

		Expect(sink.Data).To(BeEmpty())
		Expect(sink.Eof).To(BeTrue())
	})

	It("passes content through untouched when not discarded", func() {
		src := istream.FromString("abcdef")
		o := istream.NewOptional(src)
		sink := &istream.Sink{}
		o.SetHandler(sink)

		o.Read()

		Expect(string(sink.Data)).To(Equal("abcdef"))
		Expect(sink.Eof).To(BeTrue())
	})
})

var _ = Describe("InjectIstream", func() {
	It("fails the stream on demand instead of forwarding further data", func() {
		src := istream.FromString("abcdef")
		i := istream.NewInject(src)
		sink := &istream.Sink{}
		i.SetHandler(sink)

		boom := errors.New("boom")
		i.Inject(boom)

		Expect(sink.Err).To(Equal(boom))
	})
})

var _ = Describe("TimeoutIstream", func() {
	It("fails with a timeout error if no activity occurs in time", func() {
		later := istream.NewLater()
		t := istream.NewTimeout(later, 10*time.Millisecond)
		sink := &istream.Sink{}
		t.SetHandler(sink)

		t.Read()

		Eventually(func() error { return sink.Err }, time.Second, 5*time.Millisecond).Should(HaveOccurred())
	})
})

var _ = Describe("CatchIstream", func() {
	It("pads to the advertised length and reports a clean EOF on error", func() {
		src := istream.FromString("abc")
		c := istream.NewCatch(src)
		sink := &istream.Sink{}
		c.SetHandler(sink)

		Expect(c.GetAvailable(false)).To(Equal(int64(3)))

		c.OnData([]byte("ab"))
		c.OnError(errors.New("backend died"))

		Expect(string(sink.Data)).To(Equal("ab "))
		Expect(sink.Eof).To(BeTrue())
		Expect(sink.Err).To(BeNil())
	})
})
