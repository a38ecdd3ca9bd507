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
	"crypto/x509"
	"fmt"
	"os"

	libval "github.com/go-playground/validator/v10"

	bperr "github.com/cm4all/beprox/internal/bperrors"
)

// CertPair names one key+certificate pair, either by file path or as
// inline PEM. Exactly one of the two forms must be set per field.
type CertPair struct {
	KeyFile  string `mapstructure:"keyFile" json:"keyFile" yaml:"keyFile"`
	CertFile string `mapstructure:"certFile" json:"certFile" yaml:"certFile"`
	KeyPEM   string `mapstructure:"keyPem" json:"keyPem" yaml:"keyPem"`
	CertPEM  string `mapstructure:"certPem" json:"certPem" yaml:"certPem"`
}

// Config is the declarative form of a Policy, loaded from the process
// configuration. String-typed fields keep the file human-editable; New
// resolves them to crypto/tls constants and rejects unknown names.
type Config struct {
	VersionMin string   `mapstructure:"versionMin" json:"versionMin" yaml:"versionMin"`
	VersionMax string   `mapstructure:"versionMax" json:"versionMax" yaml:"versionMax"`
	Ciphers    []string `mapstructure:"ciphers" json:"ciphers" yaml:"ciphers"`
	Curves     []string `mapstructure:"curves" json:"curves" yaml:"curves"`

	Certs    []CertPair `mapstructure:"certs" json:"certs" yaml:"certs" validate:"dive"`
	RootCA   []string   `mapstructure:"rootCA" json:"rootCA" yaml:"rootCA"`
	ClientCA []string   `mapstructure:"clientCA" json:"clientCA" yaml:"clientCA"`

	AuthClient string `mapstructure:"authClient" json:"authClient" yaml:"authClient"`

	SessionTicketDisable bool `mapstructure:"sessionTicketDisable" json:"sessionTicketDisable" yaml:"sessionTicketDisable"`
	InsecureSkipVerify   bool `mapstructure:"insecureSkipVerify" json:"insecureSkipVerify" yaml:"insecureSkipVerify"`
}

// Validate checks the struct-level constraints plus every name field
// that New would reject, so a bad config fails at load time with a
// field-addressed error instead of at the first handshake.
func (c *Config) Validate() error {
	err := bperr.New(bperr.InvalidConfig, "invalid TLS policy config", nil)

	if er := libval.New().Struct(c); er != nil {
		if e, ok := er.(*libval.InvalidValidationError); ok {
			err.Add(e)
		} else {
			for _, e := range er.(libval.ValidationErrors) {
				err.Add(fmt.Errorf("config field '%s' is not validated by constraint '%s'", e.StructNamespace(), e.ActualTag()))
			}
		}
	}

	if c.VersionMin != "" && ParseVersion(c.VersionMin) == 0 {
		err.Add(fmt.Errorf("unknown TLS version %q", c.VersionMin))
	}
	if c.VersionMax != "" && ParseVersion(c.VersionMax) == 0 {
		err.Add(fmt.Errorf("unknown TLS version %q", c.VersionMax))
	}
	for _, s := range c.Ciphers {
		if ParseCipher(s) == 0 {
			err.Add(fmt.Errorf("unknown cipher suite %q", s))
		}
	}
	for _, s := range c.Curves {
		if ParseCurve(s) == 0 {
			err.Add(fmt.Errorf("unknown curve %q", s))
		}
	}
	if _, ok := ParseClientAuth(c.AuthClient); !ok {
		err.Add(fmt.Errorf("unknown client-auth mode %q", c.AuthClient))
	}

	if len(err.Parents()) > 0 {
		return err
	}
	return nil
}

// New resolves the Config into an immutable Policy, loading and parsing
// every certificate and CA so that handshakes never touch the
// filesystem.
func (c *Config) New() (*Policy, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	p := &Policy{
		minVersion:             ParseVersion(c.VersionMin),
		maxVersion:             ParseVersion(c.VersionMax),
		sessionTicketsDisabled: c.SessionTicketDisable,
		insecureSkipVerify:     c.InsecureSkipVerify,
	}
	if p.minVersion == 0 {
		p.minVersion = tls.VersionTLS12
	}

	for _, s := range c.Ciphers {
		p.ciphers = append(p.ciphers, ParseCipher(s))
	}
	for _, s := range c.Curves {
		p.curves = append(p.curves, ParseCurve(s))
	}
	p.clientAuth, _ = ParseClientAuth(c.AuthClient)

	for i, pair := range c.Certs {
		cert, err := loadPair(pair)
		if err != nil {
			return nil, bperr.New(bperr.InvalidConfig, fmt.Sprintf("certificate pair #%d", i), err)
		}
		p.certs = append(p.certs, cert)
	}

	var err error
	if p.rootCAs, err = loadPool(c.RootCA); err != nil {
		return nil, bperr.New(bperr.InvalidConfig, "root CA", err)
	}
	if p.clientCA, err = loadPool(c.ClientCA); err != nil {
		return nil, bperr.New(bperr.InvalidConfig, "client CA", err)
	}

	return p, nil
}

func loadPair(pair CertPair) (tls.Certificate, error) {
	var (
		cert tls.Certificate
		err  error
	)
	switch {
	case pair.KeyPEM != "" && pair.CertPEM != "":
		cert, err = tls.X509KeyPair([]byte(pair.CertPEM), []byte(pair.KeyPEM))
	case pair.KeyFile != "" && pair.CertFile != "":
		cert, err = tls.LoadX509KeyPair(pair.CertFile, pair.KeyFile)
	default:
		err = fmt.Errorf("pair must set keyFile+certFile or keyPem+certPem")
	}
	if err != nil {
		return tls.Certificate{}, err
	}
	// keep the parsed leaf around for SNI matching
	if cert.Leaf == nil && len(cert.Certificate) > 0 {
		cert.Leaf, err = x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return tls.Certificate{}, err
		}
	}
	return cert, nil
}

// loadPool builds a cert pool from entries that are either file paths
// or inline PEM blocks (detected by the PEM header).
func loadPool(entries []string) (*x509.CertPool, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	pool := x509.NewCertPool()
	for _, e := range entries {
		pem := []byte(e)
		if !isPEM(pem) {
			var err error
			if pem, err = os.ReadFile(e); err != nil {
				return nil, err
			}
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificate found in %q", truncate(e, 40))
		}
	}
	return pool, nil
}

func isPEM(b []byte) bool {
	return len(b) > 10 && string(b[:10]) == "-----BEGIN"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
