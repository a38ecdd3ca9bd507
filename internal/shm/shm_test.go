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

package shm_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cm4all/beprox/internal/shm"
)

func TestShm(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "shm")
}

var _ = Describe("Region", func() {
	It("allocates first-fit and tracks free pages", func() {
		r := shm.New(4, 128)
		Expect(r.TotalPages()).To(Equal(4))
		Expect(r.FreePageCount()).To(Equal(4))

		p, err := r.Alloc(2)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Len()).To(Equal(2))
		Expect(r.FreePageCount()).To(Equal(2))
	})

	It("fails with ErrOutOfMemory when no run is big enough", func() {
		r := shm.New(2, 128)
		_, err := r.Alloc(1)
		Expect(err).NotTo(HaveOccurred())

		_, err = r.Alloc(2)
		Expect(err).To(MatchError(shm.ErrOutOfMemory))
	})

	It("coalesces adjacent freed runs back into one", func() {
		r := shm.New(4, 128)
		a, err := r.Alloc(1)
		Expect(err).NotTo(HaveOccurred())
		b, err := r.Alloc(1)
		Expect(err).NotTo(HaveOccurred())

		r.Free(a)
		r.Free(b)
		Expect(r.FreePageCount()).To(Equal(4))

		// the coalesced run must be allocatable as one 4-page span
		whole, err := r.Alloc(4)
		Expect(err).NotTo(HaveOccurred())
		Expect(whole.Len()).To(Equal(4))
	})

	It("returns a byte slice sized to the requested pages", func() {
		r := shm.New(4, 128)
		p, err := r.Alloc(3)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Bytes(p)).To(HaveLen(3 * 128))
	})
})
