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

var _ = Describe("ReplaceIstream", func() {
	It("substitutes two zero-width ranges in ascending order", func() {
		src := istream.FromString("abcdefghijklmnopqrstuvwxyz")
		r := istream.NewReplace(src)
		sink := &istream.Sink{}
		r.SetHandler(sink)

		s1, err := r.Add(3, 3, []byte("foo"))
		Expect(err).NotTo(HaveOccurred())
		s2, err := r.Add(6, 6, []byte("bar"))
		Expect(err).NotTo(HaveOccurred())

		Expect(r.Settle(s1)).To(Succeed())
		Expect(r.Settle(s2)).To(Succeed())
		r.Finish()

		r.Read()

		Expect(string(sink.Data)).To(Equal("abcfoodefbarghijklmnopqrstuvwxyz"))
		Expect(sink.Eof).To(BeTrue())
	})

	It("holds back output at a pending substitution's boundary", func() {
		src := istream.FromString("abcdefghijklmnopqrstuvwxyz")
		r := istream.NewReplace(src)
		sink := &istream.Sink{}
		r.SetHandler(sink)

		sub, err := r.Add(3, 3, []byte("foo"))
		Expect(err).NotTo(HaveOccurred())

		r.Read()

		Expect(string(sink.Data)).To(Equal("abc"))
		Expect(sink.Eof).To(BeFalse())

		list := istream.NewBucketList()
		r.FillBucketList(list)
		Expect(list.HasMore()).To(BeTrue())

		Expect(r.Settle(sub)).To(Succeed())
		r.Finish()
		r.Read()

		Expect(string(sink.Data)).To(Equal("abcfoodefghijklmnopqrstuvwxyz"))
		Expect(sink.Eof).To(BeTrue())
	})

	It("allows Extend to move a pending substitution's end forward", func() {
		src := istream.FromString("abcdef")
		r := istream.NewReplace(src)
		sink := &istream.Sink{}
		r.SetHandler(sink)

		sub, err := r.Add(1, 2, []byte("X"))
		Expect(err).NotTo(HaveOccurred())

		Expect(r.Extend(sub, 4)).To(Succeed())
		Expect(r.Settle(sub)).To(Succeed())
		r.Finish()
		r.Read()

		Expect(string(sink.Data)).To(Equal("aXef"))
	})

	It("rejects Extend moving end backward", func() {
		src := istream.FromString("abcdef")
		r := istream.NewReplace(src)
		sink := &istream.Sink{}
		r.SetHandler(sink)

		sub, err := r.Add(1, 4, []byte("X"))
		Expect(err).NotTo(HaveOccurred())

		err = r.Extend(sub, 2)
		Expect(err).To(HaveOccurred())
	})

	It("rejects Extend after Settle", func() {
		src := istream.FromString("abcdef")
		r := istream.NewReplace(src)
		sink := &istream.Sink{}
		r.SetHandler(sink)

		sub, err := r.Add(1, 4, []byte("X"))
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Settle(sub)).To(Succeed())

		err = r.Extend(sub, 5)
		Expect(err).To(HaveOccurred())
	})

	It("rejects out-of-order or overlapping Add calls", func() {
		src := istream.FromString("abcdef")
		r := istream.NewReplace(src)
		sink := &istream.Sink{}
		r.SetHandler(sink)

		_, err := r.Add(3, 5, []byte("X"))
		Expect(err).NotTo(HaveOccurred())

		_, err = r.Add(4, 6, []byte("Y"))
		Expect(err).To(HaveOccurred())
	})

	It("rejects Add after Finish", func() {
		src := istream.FromString("abcdef")
		r := istream.NewReplace(src)
		sink := &istream.Sink{}
		r.SetHandler(sink)

		r.Finish()
		_, err := r.Add(0, 1, []byte("X"))
		Expect(err).To(HaveOccurred())
	})
})
