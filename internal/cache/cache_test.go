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

package cache_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cm4all/beprox/internal/cache"
)

func TestCache(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "cache suite")
}

type recordingClass struct {
	destroyed []string
	valid     func(string) bool
}

func (c *recordingClass) Destroy(v string) { c.destroyed = append(c.destroyed, v) }
func (c *recordingClass) Validate(v string) bool {
	if c.valid == nil {
		return true
	}
	return c.valid(v)
}

var _ = Describe("Cache", func() {
	var class *recordingClass

	BeforeEach(func() {
		class = &recordingClass{}
	})

	It("returns the newest item for a key", func() {
		c := cache.New[string, string](class, 1024)
		c.Put("a", "v1", 1, 0)
		c.Put("a", "v2", 1, 0)

		v, _, ok := c.Get("a")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("v2"))
	})

	It("destroys the previous item when a key is replaced", func() {
		c := cache.New[string, string](class, 1024)
		c.Put("a", "v1", 1, 0)
		c.Put("a", "v2", 1, 0)

		Expect(class.destroyed).To(ConsistOf("v1"))
	})

	It("evicts the LRU tail when the size budget overflows", func() {
		c := cache.New[string, string](class, 2)
		c.Put("a", "v1", 1, 0)
		c.Put("b", "v2", 1, 0)
		c.Put("c", "v3", 1, 0)

		Expect(class.destroyed).To(ConsistOf("v1"))

		_, _, ok := c.Get("a")
		Expect(ok).To(BeFalse())

		v, _, ok := c.Get("c")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("v3"))
	})

	It("drops an item that alone exceeds the size budget", func() {
		c := cache.New[string, string](class, 2)
		h := c.Put("a", "too big", 10, 0)

		Expect(h).To(BeNil())
		Expect(class.destroyed).To(ConsistOf("too big"))

		_, _, ok := c.Get("a")
		Expect(ok).To(BeFalse())
	})

	It("removes and refuses an expired item on Get", func() {
		c := cache.New[string, string](class, 1024)
		c.Put("a", "v1", 1, time.Nanosecond)
		time.Sleep(time.Millisecond)

		_, _, ok := c.Get("a")
		Expect(ok).To(BeFalse())
		Expect(class.destroyed).To(ConsistOf("v1"))
	})

	It("removes an item that fails validation on Get", func() {
		class.valid = func(string) bool { return false }
		c := cache.New[string, string](class, 1024)
		c.Put("a", "v1", 1, 0)

		_, _, ok := c.Get("a")
		Expect(ok).To(BeFalse())
	})

	It("walks items under a key via GetMatch", func() {
		c := cache.New[string, string](class, 1024)
		c.Put("a", "v1", 1, 0)
		c.Put("a", "v2", 1, 0)
		c.Put("a", "v3", 1, 0)

		Expect(class.destroyed).To(ConsistOf("v1", "v2"))

		v, _, ok := c.GetMatch("a", func(s string) bool { return s == "v3" })
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("v3"))
	})

	It("removes only matching items with RemoveMatch", func() {
		c := cache.New[string, string](class, 1024)
		c.Put("a", "keep", 1, 0)
		c.Remove("a")
		c.Put("a", "drop-me", 1, 0)

		n := c.RemoveMatch("a", func(s string) bool { return s == "drop-me" })
		Expect(n).To(Equal(1))

		_, _, ok := c.Get("a")
		Expect(ok).To(BeFalse())
	})

	It("removes matching items across all keys with RemoveAllMatch", func() {
		c := cache.New[string, string](class, 1024)
		c.Put("a", "tagged", 1, 0)
		c.Put("b", "tagged", 1, 0)
		c.Put("c", "other", 1, 0)

		n := c.RemoveAllMatch(func(s string) bool { return s == "tagged" })
		Expect(n).To(Equal(2))
		Expect(c.Len()).To(Equal(1))
	})

	It("defers destruction of a locked item until Unlock reaches zero", func() {
		c := cache.New[string, string](class, 1024)
		h2 := c.Put("a", "locked", 1, 0)
		c.Lock(h2)
		c.Lock(h2)
		c.Remove("a")

		Expect(class.destroyed).To(BeEmpty())

		c.Unlock(h2)
		Expect(class.destroyed).To(BeEmpty())

		c.Unlock(h2)
		Expect(class.destroyed).To(ConsistOf("locked"))
	})

	It("drops everything on Flush", func() {
		c := cache.New[string, string](class, 1024)
		c.Put("a", "v1", 1, 0)
		c.Put("b", "v2", 1, 0)

		c.Flush()

		Expect(c.Len()).To(Equal(0))
		Expect(class.destroyed).To(ConsistOf("v1", "v2"))
	})

	It("reports current size and length", func() {
		c := cache.New[string, string](class, 1024)
		c.Put("a", "v1", 3, 0)
		c.Put("b", "v2", 4, 0)

		Expect(c.Len()).To(Equal(2))
		Expect(c.Size()).To(Equal(int64(7)))
	})
})
