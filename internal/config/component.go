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

package config

import (
	"context"
	"fmt"
	"sync"

	bperr "github.com/cm4all/beprox/internal/bperrors"
)

// Component is one startable subsystem (session manager, caches, probe
// client, control server, metrics endpoint). Components declare their
// dependencies by key; List starts them in dependency order and stops
// them in reverse start order.
type Component interface {
	// Key is the unique registry name, also the config section name.
	Key() string

	// Dependencies lists the keys that must be started first.
	Dependencies() []string

	// Start brings the component up. It must be idempotent-safe to call
	// once only; List guarantees ordering and single invocation.
	Start(ctx context.Context) error

	// Stop brings the component down. Called in reverse start order.
	Stop()
}

// List is an ordered component registry.
type List struct {
	mu      sync.Mutex
	byKey   map[string]Component
	keys    []string // registration order, used as tie-break
	started []string // actual start order, for reverse stop
}

func NewList() *List {
	return &List{byKey: make(map[string]Component)}
}

// Register adds cpt, replacing any previous component under the same
// key.
func (l *List) Register(cpt Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byKey[cpt.Key()]; !ok {
		l.keys = append(l.keys, cpt.Key())
	}
	l.byKey[cpt.Key()] = cpt
}

// Get returns the component under key, or nil.
func (l *List) Get(key string) Component {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.byKey[key]
}

// Start walks every registered component in dependency order. The first
// failure aborts the sequence; already-started components stay up so
// Stop can wind them down.
func (l *List) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	startedSet := make(map[string]bool, len(l.keys))
	for _, key := range l.keys {
		if err := l.startOne(ctx, key, startedSet, nil); err != nil {
			return err
		}
	}
	return nil
}

func (l *List) startOne(ctx context.Context, key string, started map[string]bool, chain []string) error {
	if started[key] {
		return nil
	}
	for _, seen := range chain {
		if seen == key {
			return bperr.New(bperr.InvalidConfig, fmt.Sprintf("component dependency cycle through %q", key), nil)
		}
	}

	cpt, ok := l.byKey[key]
	if !ok {
		return bperr.New(bperr.InvalidConfig, fmt.Sprintf("component %q is required but not registered", key), nil)
	}

	for _, dep := range cpt.Dependencies() {
		if err := l.startOne(ctx, dep, started, append(chain, key)); err != nil {
			return err
		}
	}

	if err := cpt.Start(ctx); err != nil {
		return bperr.New(bperr.InvalidConfig, fmt.Sprintf("starting component %q", key), err)
	}
	started[key] = true
	l.started = append(l.started, key)
	return nil
}

// Stop winds down every started component, most recently started first.
func (l *List) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.started) - 1; i >= 0; i-- {
		l.byKey[l.started[i]].Stop()
	}
	l.started = nil
}

// StartOrder returns the keys in the order they were actually started,
// for the startup log line and tests.
func (l *List) StartOrder() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.started...)
}
