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

package tlspolicy_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cm4all/beprox/internal/tlspolicy"
)

func TestTLSPolicy(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "tlspolicy suite")
}

// selfSigned generates a throwaway key+cert PEM pair for the given DNS
// names.
func selfSigned(names ...string) (keyPEM, certPEM string) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	Expect(err).NotTo(HaveOccurred())

	tpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: names[0]},
		DNSNames:     names,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	Expect(err).NotTo(HaveOccurred())

	keyDER, err := x509.MarshalECPrivateKey(key)
	Expect(err).NotTo(HaveOccurred())

	certPEM = string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
	keyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}))
	return
}

var _ = Describe("Config", func() {
	It("rejects unknown names at validation time", func() {
		cfg := &tlspolicy.Config{
			VersionMin: "1.7",
			Ciphers:    []string{"TLS_TOTALLY_MADE_UP"},
			Curves:     []string{"p999"},
			AuthClient: "maybe",
		}
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("builds a policy from inline PEM", func() {
		keyPEM, certPEM := selfSigned("example.com", "*.example.com")
		cfg := &tlspolicy.Config{
			VersionMin: "1.2",
			VersionMax: "1.3",
			Certs:      []tlspolicy.CertPair{{KeyPEM: keyPEM, CertPEM: certPEM}},
			AuthClient: "none",
		}
		p, err := cfg.New()
		Expect(err).NotTo(HaveOccurred())

		tc := p.TLS("example.com")
		Expect(tc.MinVersion).To(Equal(uint16(tls.VersionTLS12)))
		Expect(tc.MaxVersion).To(Equal(uint16(tls.VersionTLS13)))
		Expect(tc.ServerName).To(Equal("example.com"))
		Expect(tc.Certificates).To(HaveLen(1))
	})

	It("returns caller-owned configs", func() {
		p, err := (&tlspolicy.Config{}).New()
		Expect(err).NotTo(HaveOccurred())

		a := p.TLS("a")
		a.NextProtos = []string{"h2"}

		b := p.TLS("b")
		Expect(b.NextProtos).To(BeEmpty())
	})
})

var _ = Describe("Policy", func() {
	It("matches certificates by SNI name including wildcards", func() {
		keyPEM, certPEM := selfSigned("example.com", "*.example.com")
		p, err := (&tlspolicy.Config{
			Certs: []tlspolicy.CertPair{{KeyPEM: keyPEM, CertPEM: certPEM}},
		}).New()
		Expect(err).NotTo(HaveOccurred())

		Expect(p.MatchesName("example.com")).To(BeTrue())
		Expect(p.MatchesName("www.example.com")).To(BeTrue())
		Expect(p.MatchesName("other.org")).To(BeFalse())
	})
})
