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

package bperrors_test

import (
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	bperr "github.com/cm4all/beprox/internal/bperrors"
)

func TestBperrors(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "bperrors suite")
}

var _ = Describe("Error", func() {
	It("reports its code and HTTP status", func() {
		e := bperr.New(bperr.NotFound, "no such resource", nil)
		Expect(e.Code()).To(Equal(bperr.NotFound))
		Expect(e.Code().HTTPStatus()).To(Equal(404))
	})

	It("chains parents and finds a code anywhere in the chain", func() {
		root := bperr.New(bperr.IO, "connection reset", nil)
		wrapped := bperr.New(bperr.BadGateway, "upstream failed", root)

		Expect(wrapped.IsCode(bperr.BadGateway)).To(BeTrue())
		Expect(wrapped.IsCode(bperr.IO)).To(BeTrue())
		Expect(wrapped.IsCode(bperr.Timeout)).To(BeFalse())
	})

	It("Add appends additional parents", func() {
		e := bperr.New(bperr.InternalError, "aggregate", nil)
		e.Add(bperr.New(bperr.OOM, "dpool exhausted", nil))
		Expect(e.Parents()).To(HaveLen(1))
	})

	It("Add ignores nil parents", func() {
		e := bperr.New(bperr.InternalError, "aggregate", nil)
		e.Add(nil)
		Expect(e.Parents()).To(BeEmpty())
	})

	It("Wrap classifies a stdlib error without losing its message", func() {
		base := errors.New("boom")
		w := bperr.Wrap(bperr.Resource, base)
		Expect(w.Error()).To(Equal("boom"))
		Expect(w.Code()).To(Equal(bperr.Resource))
	})

	It("Wrap of nil returns nil", func() {
		Expect(bperr.Wrap(bperr.Resource, nil)).To(BeNil())
	})

	It("IsCancelled only matches the Cancelled code", func() {
		Expect(bperr.IsCancelled(bperr.New(bperr.Cancelled, "stopped", nil))).To(BeTrue())
		Expect(bperr.IsCancelled(bperr.New(bperr.IO, "stopped", nil))).To(BeFalse())
		Expect(bperr.IsCancelled(errors.New("plain"))).To(BeFalse())
	})

	It("unwraps to its first parent for errors.Is chains", func() {
		root := errors.New("root cause")
		wrapped := bperr.New(bperr.IO, "io failed", root)
		Expect(errors.Unwrap(wrapped)).To(Equal(root))
	})
})
