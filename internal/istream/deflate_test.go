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
	"bytes"
	"io"
	"strings"

	kpgzip "github.com/klauspost/compress/gzip"
	kpzlib "github.com/klauspost/compress/zlib"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cm4all/beprox/internal/istream"
)

func inflate(compressed []byte) string {
	r, err := kpzlib.NewReader(bytes.NewReader(compressed))
	Expect(err).NotTo(HaveOccurred())
	defer r.Close()
	out, err := io.ReadAll(r)
	Expect(err).NotTo(HaveOccurred())
	return string(out)
}

var _ = Describe("DeflateIstream", func() {
	It("round-trips a short string through zlib framing", func() {
		src := istream.FromString("foobar")
		d := istream.NewDeflate(src)

		sink := &istream.Sink{}
		d.SetHandler(sink)
		for !sink.Done() {
			d.Read()
		}

		Expect(sink.Err).NotTo(HaveOccurred())
		Expect(inflate(sink.Data)).To(Equal("foobar"))
	})

	It("round-trips a large repetitive body and actually compresses it", func() {
		plain := strings.Repeat("X", 128*1024)
		src := istream.FromString(plain)
		d := istream.NewDeflate(src)

		sink := &istream.Sink{}
		d.SetHandler(sink)
		for !sink.Done() {
			d.Read()
		}

		Expect(sink.Err).NotTo(HaveOccurred())
		Expect(len(sink.Data)).To(BeNumerically("<", len(plain)/10))
		Expect(inflate(sink.Data)).To(Equal(plain))
	})

	It("emits a sync flush when downstream demands data mid-stream", func() {
		later := istream.NewLater()
		d := istream.NewDeflate(later)

		sink := &istream.Sink{}
		d.SetHandler(sink)

		// feed bytes as the (still open) upstream would, then demand
		// data downstream while upstream has nothing further yet
		d.OnData([]byte("partial"))
		d.Read()

		Expect(sink.Done()).To(BeFalse())

		// the sync flush must have made everything written so far
		// decodable even though the stream is not finished
		r, err := kpzlib.NewReader(bytes.NewReader(sink.Data))
		Expect(err).NotTo(HaveOccurred())
		buf := make([]byte, 7)
		_, err = io.ReadFull(r, buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(buf)).To(Equal("partial"))
	})

	It("propagates upstream errors unchanged", func() {
		inj := istream.NewInject(istream.NewLater())
		d := istream.NewDeflate(inj)

		sink := &istream.Sink{}
		d.SetHandler(sink)

		boom := io.ErrUnexpectedEOF
		inj.Inject(boom)

		Expect(sink.Eof).To(BeFalse())
		Expect(sink.Err).To(MatchError(boom))
	})

	It("supports gzip framing via NewGzip", func() {
		src := istream.FromString("gzip body")
		d := istream.NewGzip(src)

		sink := &istream.Sink{}
		d.SetHandler(sink)
		for !sink.Done() {
			d.Read()
		}

		r, err := kpgzip.NewReader(bytes.NewReader(sink.Data))
		Expect(err).NotTo(HaveOccurred())
		out, err := io.ReadAll(r)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal("gzip body"))
	})
})
