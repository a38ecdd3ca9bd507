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

package metrics_test

import (
	"net/http/httptest"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cm4all/beprox/internal/metrics"
)

func TestMetrics(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "metrics suite")
}

var _ = Describe("Metrics", func() {
	It("registers all collectors without panicking and serves a scrape", func() {
		m := metrics.New("beprox")

		m.CacheHits.WithLabelValues("http").Inc()
		m.CacheMisses.WithLabelValues("http").Inc()
		m.Sessions.Set(3)
		m.IstreamErrors.WithLabelValues("Timeout").Inc()
		m.ProbeResults.WithLabelValues("h2").Inc()

		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

		Expect(rec.Code).To(Equal(200))
		body := rec.Body.String()
		Expect(body).To(ContainSubstring(`beprox_cache_hits_total{cache="http"} 1`))
		Expect(body).To(ContainSubstring(`beprox_sessions 3`))
		Expect(body).To(ContainSubstring(`beprox_alpn_probe_results_total{protocol="h2"} 1`))
	})

	It("keeps separate instances isolated", func() {
		a := metrics.New("a")
		b := metrics.New("b")
		a.Sessions.Set(1)

		rec := httptest.NewRecorder()
		b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
		Expect(rec.Body.String()).NotTo(ContainSubstring("a_sessions"))
	})
})
