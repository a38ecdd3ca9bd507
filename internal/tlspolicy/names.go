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

package tlspolicy

import (
	"crypto/tls"
	"strings"
)

// ParseVersion maps a config string ("1.2", "tls1.2", "TLS1.3", ...) to
// a crypto/tls version constant; 0 means "not constrained".
func ParseVersion(s string) uint16 {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "tls") {
	case "1.0", "1", "10":
		return tls.VersionTLS10
	case "1.1", "11":
		return tls.VersionTLS11
	case "1.2", "12":
		return tls.VersionTLS12
	case "1.3", "13":
		return tls.VersionTLS13
	}
	return 0
}

// ParseCurve maps a config string to a tls.CurveID; 0 when unknown.
func ParseCurve(s string) tls.CurveID {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x25519":
		return tls.X25519
	case "p256", "p-256", "secp256r1", "prime256v1":
		return tls.CurveP256
	case "p384", "p-384", "secp384r1":
		return tls.CurveP384
	case "p521", "p-521", "secp521r1":
		return tls.CurveP521
	}
	return 0
}

// ParseCipher maps an IANA or OpenSSL-ish cipher-suite name to its id;
// 0 when unknown. Only suites Go actually implements are listed.
func ParseCipher(s string) uint16 {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "-", "_")
	for _, cs := range tls.CipherSuites() {
		if strings.ReplaceAll(cs.Name, "-", "_") == name {
			return cs.ID
		}
	}
	return 0
}

// ParseClientAuth maps a config string to a tls.ClientAuthType. The
// zero value (no client cert requested) is also the fallback for
// unknown strings, so a typo fails open to "no client auth" — Validate
// catches that at config-load time instead.
func ParseClientAuth(s string) (tls.ClientAuthType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "no":
		return tls.NoClientCert, true
	case "request":
		return tls.RequestClientCert, true
	case "require":
		return tls.RequireAnyClientCert, true
	case "verify":
		return tls.VerifyClientCertIfGiven, true
	case "require+verify", "strict":
		return tls.RequireAndVerifyClientCert, true
	}
	return tls.NoClientCert, false
}
