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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cm4all/beprox/internal/istream"
)

var _ = Describe("DechunkIstream", func() {
	const wire = "5\r\nhello\r\n0\r\n\r\n"

	It("de-chunks to just the payload in default mode", func() {
		src := istream.FromString(wire)
		d := istream.NewDechunk(src, false)
		sink := &istream.Sink{}
		d.SetHandler(sink)

		d.Read()

		Expect(string(sink.Data)).To(Equal("hello"))
		Expect(sink.Eof).To(BeTrue())
	})

	It("forwards the exact wire bytes unchanged in verbatim mode", func() {
		src := istream.FromString(wire)
		d := istream.NewDechunk(src, true)
		sink := &istream.Sink{}
		d.SetHandler(sink)

		var endFiredBeforeEof bool
		d.OnEndCallback = func() {
			endFiredBeforeEof = !sink.Eof
		}

		d.Read()

		Expect(string(sink.Data)).To(Equal(wire))
		Expect(sink.Eof).To(BeTrue())
		Expect(endFiredBeforeEof).To(BeTrue())
	})

	It("errors on premature EOF inside a chunk", func() {
		src := istream.FromString("5\r\nhel")
		d := istream.NewDechunk(src, false)
		sink := &istream.Sink{}
		d.SetHandler(sink)

		d.Read()

		Expect(sink.Err).To(HaveOccurred())
	})

	It("handles chunk boundaries split across multiple wire reads", func() {
		parts := []string{"5\r\nhe", "llo\r\n0", "\r\n\r\n"}
		sink := &istream.Sink{}
		d := istream.NewDechunk(&multiPartSource{parts: parts}, false)
		d.SetHandler(sink)

		d.Read()

		Expect(string(sink.Data)).To(Equal("hello"))
		Expect(sink.Eof).To(BeTrue())
	})
})

// multiPartSource delivers each of parts as a separate OnData call,
// simulating a socket that fills its buffer across several reads.
type multiPartSource struct {
	istream.Base
	parts []string
	idx   int
}

func (m *multiPartSource) Read() {
	for m.idx < len(m.parts) {
		p := []byte(m.parts[m.idx])
		n := m.Handler().OnData(p)
		if n < len(p) {
			return
		}
		m.idx++
	}
	m.DestroyEof()
}

func (m *multiPartSource) GetAvailable(partial bool) int64        { return -1 }
func (m *multiPartSource) Skip(n int64) int64                     { return -1 }
func (m *multiPartSource) FillBucketList(list *istream.BucketList) {}
func (m *multiPartSource) ConsumeBucketList(n int) (int, bool)    { return 0, false }
func (m *multiPartSource) AsFd() (uintptr, bool)                  { return 0, false }
func (m *multiPartSource) DirectMask() istream.FdType             { return 0 }
func (m *multiPartSource) Close()                                 { m.MarkClosed() }
