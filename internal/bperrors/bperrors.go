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

// Package bperrors implements the error taxonomy of the request execution
// pipeline: a numeric Code similar to an HTTP status, an optional parent
// chain, and an automatically captured call-site frame. It is compatible
// with errors.Is and errors.As.
package bperrors

import (
	"errors"
	"fmt"
	"runtime"
)

// Code classifies an error the way the pipeline's subsystems need to react
// to it, independent of the human-readable message.
type Code uint16

const (
	// Unknown is the zero value: no classification was attempted.
	Unknown Code = iota

	// IO covers socket/file read or write failures, including ECONNRESET
	// and EPIPE, which callers should log at a demoted level.
	IO
	// Protocol covers malformed HTTP/CGI/chunked data, premature EOF, and
	// header overflow.
	Protocol
	// Timeout covers any of the configured timeouts firing.
	Timeout
	// Resource covers resolver failure, connection refused, or an
	// unreachable backend; may trigger blacklist and retry.
	Resource
	// OOM covers arena, dpool, or shm allocation failure.
	OOM
	// NotFound surfaces as HTTP 404 to the client.
	NotFound
	// Forbidden surfaces as HTTP 403 to the client.
	Forbidden
	// BadGateway surfaces as HTTP 502 to the client.
	BadGateway
	// InternalError surfaces as HTTP 500 to the client.
	InternalError
	// Cancelled is propagated silently and never reported to the client.
	Cancelled
	// InvalidConfig covers configuration that failed validation at load
	// time; it never reaches a client, only the startup log.
	InvalidConfig
)

func (c Code) String() string {
	switch c {
	case IO:
		return "IO"
	case Protocol:
		return "Protocol"
	case Timeout:
		return "Timeout"
	case Resource:
		return "Resource"
	case OOM:
		return "OOM"
	case NotFound:
		return "NotFound"
	case Forbidden:
		return "Forbidden"
	case BadGateway:
		return "BadGateway"
	case InternalError:
		return "InternalError"
	case Cancelled:
		return "Cancelled"
	case InvalidConfig:
		return "InvalidConfig"
	default:
		return "Unknown"
	}
}

// HTTPStatus maps a Code to the status the top-level request handler
// should send. Codes with no natural HTTP mapping fall back to 500.
func (c Code) HTTPStatus() int {
	switch c {
	case NotFound:
		return 404
	case Forbidden:
		return 403
	case BadGateway:
		return 502
	case Timeout:
		return 504
	case Resource:
		return 502
	default:
		return 500
	}
}

// Error is the pipeline's error type: a Code, a message, an optional
// parent chain, and the frame where it was created.
type Error interface {
	error

	// Code returns the classification of this error.
	Code() Code

	// IsCode reports whether this error or any of its parents carry code c.
	IsCode(c Code) bool

	// Add attaches additional parent errors to this error's chain.
	Add(parent ...error)

	// Parents returns the direct parent chain.
	Parents() []error

	// Frame returns the call site where the error was created.
	Frame() runtime.Frame
}

type bperr struct {
	code Code
	msg  string
	par  []error
	frm  runtime.Frame
}

// New creates an Error with the given code and message, capturing the
// caller's frame. parent, if non-nil, is recorded as the first entry in
// the parent chain.
func New(code Code, msg string, parent error) Error {
	e := &bperr{code: code, msg: msg}

	if pc, file, line, ok := runtime.Caller(1); ok {
		e.frm = runtime.Frame{PC: pc, File: file, Line: line}
		if fn := runtime.FuncForPC(pc); fn != nil {
			e.frm.Function = fn.Name()
		}
	}

	if parent != nil {
		e.par = append(e.par, parent)
	}

	return e
}

// Wrap classifies an existing error (typically from the standard library
// or a third-party package) under code without discarding it.
func Wrap(code Code, err error) Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

func (e *bperr) Error() string {
	if e.msg == "" && len(e.par) > 0 {
		return e.par[0].Error()
	}
	return e.msg
}

func (e *bperr) Code() Code {
	return e.code
}

func (e *bperr) IsCode(c Code) bool {
	if e.code == c {
		return true
	}
	for _, p := range e.par {
		var be Error
		if errors.As(p, &be) && be.IsCode(c) {
			return true
		}
	}
	return false
}

func (e *bperr) Add(parent ...error) {
	for _, p := range parent {
		if p != nil {
			e.par = append(e.par, p)
		}
	}
}

func (e *bperr) Parents() []error {
	return e.par
}

func (e *bperr) Frame() runtime.Frame {
	return e.frm
}

func (e *bperr) Unwrap() error {
	if len(e.par) == 0 {
		return nil
	}
	return e.par[0]
}

func (e *bperr) Is(target error) bool {
	var be *bperr
	if errors.As(target, &be) {
		return be.code == e.code && be.msg == e.msg
	}
	return false
}

func (e *bperr) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v':
		if f.Flag('+') {
			_, _ = fmt.Fprintf(f, "%s (code=%s, at %s:%d)", e.msg, e.code, e.frm.File, e.frm.Line)
			return
		}
		fallthrough
	default:
		_, _ = fmt.Fprint(f, e.msg)
	}
}

// IsCancelled is a convenience check used throughout the pipeline to
// decide whether an error should be logged at all (cancellation never is).
func IsCancelled(err error) bool {
	var be Error
	return errors.As(err, &be) && be.IsCode(Cancelled)
}
