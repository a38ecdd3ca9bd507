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

package control_test

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cm4all/beprox/internal/belog"
	"github.com/cm4all/beprox/internal/control"
)

var _ = Describe("DebugServer", func() {
	It("serves cache snapshots and truncates session ids", func() {
		caches := func() []control.CacheInfo {
			return []control.CacheInfo{{Name: "http", Items: 2, Size: 1024}}
		}
		sessions := func() []control.SessionInfo {
			return []control.SessionInfo{{
				ID:      "0123456789abcdef",
				Realm:   "shop",
				Expires: time.Now().Add(time.Hour),
				Counter: 7,
			}}
		}

		d, err := control.NewDebugServer("127.0.0.1:0", caches, sessions, nil, belog.Discard())
		Expect(err).NotTo(HaveOccurred())
		defer d.Stop()

		base := "http://" + d.Addr().String()

		resp, err := http.Get(base + "/debug/cache")
		Expect(err).NotTo(HaveOccurred())
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		var infos []control.CacheInfo
		Expect(json.Unmarshal(body, &infos)).To(Succeed())
		Expect(infos).To(HaveLen(1))
		Expect(infos[0].Name).To(Equal("http"))

		resp, err = http.Get(base + "/debug/sessions")
		Expect(err).NotTo(HaveOccurred())
		body, _ = io.ReadAll(resp.Body)
		resp.Body.Close()

		var sinfos []control.SessionInfo
		Expect(json.Unmarshal(body, &sinfos)).To(Succeed())
		Expect(sinfos).To(HaveLen(1))
		Expect(sinfos[0].ID).To(Equal("01234567..."))
		Expect(sinfos[0].Realm).To(Equal("shop"))
	})
})
