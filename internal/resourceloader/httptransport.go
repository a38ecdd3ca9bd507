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

package resourceloader

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/cm4all/beprox/internal/anyclient"
	"github.com/cm4all/beprox/internal/istream"
)

// AnyClientTransport adapts an anyclient.Client's callback-driven
// Dispatch into the blocking HTTPTransport shape DirectResourceLoader
// drives its retry loop against.
type AnyClientTransport struct {
	Client *anyclient.Client
}

func NewAnyClientTransport(c *anyclient.Client) *AnyClientTransport {
	return &AnyClientTransport{Client: c}
}

func (t *AnyClientTransport) Do(
	ctx context.Context,
	params *Params,
	method string,
	addr *ResourceAddress,
	headers http.Header,
	body istream.Istream,
) (int, http.Header, io.ReadCloser, error) {
	if addr.URL == nil {
		return 0, nil, nil, errors.New("resourceloader: HTTP address has no URL")
	}

	key := anyclient.OriginKey{
		Name:          addr.URL.Host,
		RemoteAddress: addr.URL.Host,
	}
	if params != nil {
		key.FilterParams = params.Site
	}

	req := &anyclient.Request{
		Method: method,
		URL:    addr.URL.URL,
		Header: headers,
	}

	ch := make(chan anyclientOutcome, 1)
	t.Client.Dispatch(ctx, key, req, &resultBridge{ch: ch})

	select {
	case out := <-ch:
		if out.err != nil {
			return 0, nil, nil, classifyHTTPError(out.err)
		}
		return out.resp.StatusCode, out.resp.Header, out.resp.Body, nil
	case <-ctx.Done():
		return 0, nil, nil, ctx.Err()
	}
}

type anyclientOutcome struct {
	resp *http.Response
	err  error
}

type resultBridge struct {
	ch chan anyclientOutcome
}

func (b *resultBridge) OnResult(resp *http.Response, err error) {
	b.ch <- anyclientOutcome{resp: resp, err: err}
}

// classifyHTTPError maps a transport-level failure to ErrPrematureClose
// when it looks like the backend closed the connection before any
// response header arrived, so DirectResourceLoader's retry policy can
// tell that apart from other failures.
func classifyHTTPError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrPrematureClose
	}
	return err
}
