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

package control

import (
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cm4all/beprox/internal/belog"
)

// CacheInfo is one cache's snapshot for the debug endpoint.
type CacheInfo struct {
	Name  string `json:"name"`
	Items int    `json:"items"`
	Size  int64  `json:"size"`
}

// SessionInfo is one session's snapshot for the debug endpoint. The id
// is truncated server-side so the full routable id never leaves the
// process through a diagnostics port.
type SessionInfo struct {
	ID      string    `json:"id"`
	Realm   string    `json:"realm"`
	Expires time.Time `json:"expires"`
	Counter uint32    `json:"counter"`
}

// DebugServer mounts the diagnostics HTTP endpoints: cache and session
// snapshots plus the Prometheus scrape handler.
type DebugServer struct {
	srv *http.Server
	ln  net.Listener
}

// NewDebugServer builds the gin engine and starts serving on addr.
// caches and sessions are polled per request; metrics may be nil.
func NewDebugServer(addr string, caches func() []CacheInfo, sessions func() []SessionInfo, metrics http.Handler, log belog.Logger) (*DebugServer, error) {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/debug/cache", func(c *gin.Context) {
		c.JSON(http.StatusOK, caches())
	})

	engine.GET("/debug/sessions", func(c *gin.Context) {
		infos := sessions()
		for i := range infos {
			if len(infos[i].ID) > 8 {
				infos[i].ID = infos[i].ID[:8] + "..."
			}
		}
		c.JSON(http.StatusOK, infos)
	})

	if metrics != nil {
		engine.GET("/metrics", gin.WrapH(metrics))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	d := &DebugServer{
		srv: &http.Server{Handler: engine},
		ln:  ln,
	}

	go func() {
		if err := d.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("debug endpoint failed")
		}
	}()

	return d, nil
}

// Addr returns the bound listen address.
func (d *DebugServer) Addr() net.Addr { return d.ln.Addr() }

// Stop shuts the listener down without waiting for stragglers.
func (d *DebugServer) Stop() {
	_ = d.srv.Close()
}
