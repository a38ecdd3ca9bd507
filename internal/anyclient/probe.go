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

package anyclient

import (
	"context"
	"crypto/tls"
	"net"

	tlscfg "github.com/cm4all/beprox/internal/tlspolicy"
)

// TLSProber dials key.RemoteAddress and performs a TLS handshake
// advertising both ALPN protocols, reporting whichever the peer chose.
// It is the default Prober used outside tests.
type TLSProber struct {
	Config  *tlscfg.Policy
	Dial    func(ctx context.Context, network, addr string) (net.Conn, error)
	Network string // defaults to "tcp"
}

// NewTLSProber returns a TLSProber dialing with the stdlib's default
// dialer and cfg's certificate/cipher/curve policy.
func NewTLSProber(cfg *tlscfg.Policy) *TLSProber {
	return &TLSProber{
		Config:  cfg,
		Dial:    (&net.Dialer{}).DialContext,
		Network: "tcp",
	}
}

func (p *TLSProber) Probe(ctx context.Context, key OriginKey) (net.Conn, string, error) {
	network := p.Network
	if network == "" {
		network = "tcp"
	}

	raw, err := p.Dial(ctx, network, key.RemoteAddress)
	if err != nil {
		return nil, "", err
	}

	cfg := p.Config.TLS(key.Name)
	cfg.NextProtos = []string{"h2", "http/1.1"}

	tc := tls.Client(raw, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, "", err
	}

	proto := tc.ConnectionState().NegotiatedProtocol
	if proto == "" {
		proto = "http/1.1"
	}
	return tc, proto, nil
}
