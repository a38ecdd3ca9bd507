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

// Package belog provides the structured logger used by every subsystem of
// the request execution pipeline. It wraps logrus with a Fields-based
// Entry API and demotes errors carrying the IO code (ECONNRESET, EPIPE
// and other socket/file failures) to Debug so routine client disconnects
// don't drown out real failures.
package belog

import (
	"errors"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	bperr "github.com/cm4all/beprox/internal/bperrors"
)

// Fields carries structured key/value pairs attached to a log entry.
type Fields map[string]interface{}

// Logger is the interface every package in the pipeline accepts at
// construction time instead of calling the global stdlib logger.
type Logger interface {
	WithFields(f Fields) Logger
	WithError(err error) Logger

	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)

	// Event reports err at a level derived from its bperrors.Code: any
	// error carrying the IO code logs at Debug, Cancelled never logs,
	// everything else logs at Error.
	Event(msg string, err error)

	// StdWriter returns an io.Writer that feeds lines into this logger
	// at the given level, for bridging third-party code that only knows
	// about io.Writer or *log.Logger (e.g. net/http.Server.ErrorLog).
	StdWriter(level logrus.Level) io.Writer
}

type logger struct {
	e *logrus.Entry
}

// New creates a root Logger. When tty is true, level names are colorized
// for an interactive terminal; otherwise entries are emitted as JSON.
func New(out io.Writer, level logrus.Level, tty bool) Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)

	if tty {
		l.SetFormatter(&logrus.TextFormatter{ForceColors: true})
		color.NoColor = false
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	return &logger{e: logrus.NewEntry(l)}
}

// Discard returns a Logger that drops everything, used by tests and by
// components that were not handed an explicit logger.
func Discard() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &logger{e: logrus.NewEntry(l)}
}

func (l *logger) WithFields(f Fields) Logger {
	return &logger{e: l.e.WithFields(logrus.Fields(f))}
}

func (l *logger) WithError(err error) Logger {
	return &logger{e: l.e.WithError(err)}
}

func (l *logger) Debug(msg string) { l.e.Debug(msg) }
func (l *logger) Info(msg string)  { l.e.Info(msg) }
func (l *logger) Warn(msg string)  { l.e.Warn(msg) }
func (l *logger) Error(msg string) { l.e.Error(msg) }

func (l *logger) Event(msg string, err error) {
	if err == nil {
		return
	}
	if bperr.IsCancelled(err) {
		return
	}

	e := l.e.WithError(err)

	var be bperr.Error
	if errors.As(err, &be) && be.IsCode(bperr.IO) {
		e.Debug(msg)
		return
	}

	e.Error(msg)
}

func (l *logger) StdWriter(level logrus.Level) io.Writer {
	return l.e.Logger.WriterLevel(level)
}

// DefaultStderr is a convenience root logger writing colorized text to
// stderr at Info level; colors are forced whether or not stderr is a
// terminal.
func DefaultStderr() Logger {
	return New(os.Stderr, logrus.InfoLevel, true)
}
