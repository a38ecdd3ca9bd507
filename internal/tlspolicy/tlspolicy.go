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

// Package tlspolicy assembles crypto/tls configurations from a declarative
// policy: cipher/curve/version allow-lists, a certificate set with
// SNI-based selection, root and client CA pools, and a client-auth mode.
// Both the listener side (FilteredSocket TLS filter) and the client side
// (ALPN probe) build their tls.Config through a Policy so the whole
// process enforces one negotiation policy.
package tlspolicy

import (
	"crypto/tls"
	"crypto/x509"
	"strings"
	"sync"
)

// Policy is an immutable, concurrency-safe TLS negotiation policy.
// Build one with Config.New, then derive per-connection tls.Configs
// with TLS.
type Policy struct {
	mu sync.RWMutex

	minVersion uint16
	maxVersion uint16
	ciphers    []uint16
	curves     []tls.CurveID

	certs    []tls.Certificate
	rootCAs  *x509.CertPool
	clientCA *x509.CertPool

	clientAuth tls.ClientAuthType

	sessionTicketsDisabled bool
	insecureSkipVerify     bool
}

// TLS returns a fresh *tls.Config for one connection. serverName is
// used both as the client-side SNI/verification name and as the
// server-side certificate-selection hint; empty means "no preference".
// The returned config is owned by the caller — mutating it (e.g.
// setting NextProtos for an ALPN probe) does not affect the Policy.
func (p *Policy) TLS(serverName string) *tls.Config {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cfg := &tls.Config{
		MinVersion:             p.minVersion,
		MaxVersion:             p.maxVersion,
		CipherSuites:           append([]uint16(nil), p.ciphers...),
		CurvePreferences:       append([]tls.CurveID(nil), p.curves...),
		RootCAs:                p.rootCAs,
		ClientCAs:              p.clientCA,
		ClientAuth:             p.clientAuth,
		SessionTicketsDisabled: p.sessionTicketsDisabled,
		InsecureSkipVerify:     p.insecureSkipVerify,
		ServerName:             serverName,
	}

	if len(p.certs) > 0 {
		cfg.Certificates = append([]tls.Certificate(nil), p.certs...)
		cfg.GetCertificate = p.getCertificate
	}

	return cfg
}

// getCertificate picks the first certificate whose leaf matches the
// ClientHello's server name, falling back to the first certificate in
// the set when nothing matches or no name was sent.
func (p *Policy) getCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if hello.ServerName != "" {
		for i := range p.certs {
			c := &p.certs[i]
			if c.Leaf == nil {
				continue
			}
			if err := c.Leaf.VerifyHostname(hello.ServerName); err == nil {
				return c, nil
			}
		}
		// wildcard second pass: VerifyHostname already handles *.x.y,
		// so anything left is a mismatch; fall through to the default.
	}
	return &p.certs[0], nil
}

// MatchesName reports whether any certificate in the set would be
// served for name, used by the listener to reject SNI values it has no
// certificate for before the handshake completes.
func (p *Policy) MatchesName(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i := range p.certs {
		if c := &p.certs[i]; c.Leaf != nil {
			if err := c.Leaf.VerifyHostname(name); err == nil {
				return true
			}
		}
	}
	return false
}

// CipherNames returns the human-readable names of the allowed suites,
// for the debug endpoint and startup log line.
func (p *Policy) CipherNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.ciphers))
	for _, id := range p.ciphers {
		out = append(out, tls.CipherSuiteName(id))
	}
	return out
}

func (p *Policy) String() string {
	return "tlspolicy{" + strings.Join(p.CipherNames(), ",") + "}"
}
