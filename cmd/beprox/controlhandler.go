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

package main

import (
	"encoding/json"

	"github.com/cm4all/beprox/internal/belog"
	"github.com/cm4all/beprox/internal/control"
	"github.com/cm4all/beprox/internal/session"
)

// daemon implements control.Handler, routing each command to the owning
// subsystem.

func (d *daemon) OnNop() {}

// OnTcacheInvalidate drops cached translation-derived state. The
// translation cache itself lives with the external translation client;
// what this process holds derived from translations is the filter
// cache, so that is what gets dropped.
func (d *daemon) OnTcacheInvalidate(payload []byte) {
	d.log.WithFields(belog.Fields{"payload_bytes": len(payload)}).Info("translation invalidate")
	d.filter.Flush()
}

func (d *daemon) OnZeroconf(enabled bool) {
	d.log.WithFields(belog.Fields{"enabled": enabled}).Info("zeroconf toggled")
}

func (d *daemon) OnFlushHTTPCache() {
	// the buffered/direct chain holds no response cache of its own;
	// flushing the filter cache keeps the command meaningful
	d.filter.Flush()
}

func (d *daemon) OnFlushFilterCache() {
	d.filter.Flush()
}

// OnFadeChildren marks this process as fading. The flag is reported in
// the stats dump; request handling does not consult it.
func (d *daemon) OnFadeChildren() {
	d.fading = true
	d.log.Info("fading: flag set, reported in stats")
}

type statsDump struct {
	Version  string              `json:"version"`
	Fading   bool                `json:"fading"`
	Sessions int                 `json:"sessions"`
	Caches   []control.CacheInfo `json:"caches"`
}

func (d *daemon) OnStats() []byte {
	out, err := json.Marshal(statsDump{
		Version:  version,
		Fading:   d.fading,
		Sessions: d.sessions.Len(),
		Caches:   d.cacheInfos(),
	})
	if err != nil {
		return nil
	}
	return out
}

func (d *daemon) cacheInfos() []control.CacheInfo {
	items, size := d.filter.CacheStats()
	return []control.CacheInfo{
		{Name: "filter", Items: items, Size: size},
	}
}

func (d *daemon) sessionInfos() []control.SessionInfo {
	var infos []control.SessionInfo
	d.sessions.Visit(func(s *session.Session) bool {
		infos = append(infos, control.SessionInfo{
			ID:      s.ID,
			Realm:   s.Realm,
			Expires: s.Expires,
			Counter: s.Counter,
		})
		return true
	})
	return infos
}
