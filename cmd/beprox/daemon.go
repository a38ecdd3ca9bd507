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
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/semaphore"

	"github.com/cm4all/beprox/internal/anyclient"
	"github.com/cm4all/beprox/internal/belog"
	"github.com/cm4all/beprox/internal/config"
	"github.com/cm4all/beprox/internal/control"
	"github.com/cm4all/beprox/internal/metrics"
	"github.com/cm4all/beprox/internal/resourceloader"
	"github.com/cm4all/beprox/internal/session"
	"github.com/cm4all/beprox/internal/shm"
	"github.com/cm4all/beprox/internal/tlspolicy"
)

// daemon holds everything `beprox run` wires together, so the
// components and the control handler can reach each other.
type daemon struct {
	cfg *config.Root
	log belog.Logger

	mtr      *metrics.Metrics
	region   *shm.Region
	sessions *session.Manager

	policy *tlspolicy.Policy
	client *anyclient.Client
	loader resourceloader.ResourceLoader
	filter *resourceloader.FilterResourceLoader

	controlUDP  *control.Server
	controlNats *control.NatsCarrier
	debug       *control.DebugServer
	metricsSrv  *http.Server

	fading bool
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagWorkers > 0 {
		cfg.Workers = flagWorkers
	}

	d := &daemon{
		cfg: cfg,
		log: newLogger(cfg.Log),
		mtr: metrics.New(cfg.Metrics.Namespace),
	}

	if flagPidFile != "" {
		if err := os.WriteFile(flagPidFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
			return err
		}
		defer os.Remove(flagPidFile)
	}

	list := config.NewList()
	list.Register(&sessionComponent{d: d})
	list.Register(&clientComponent{d: d})
	list.Register(&loaderComponent{d: d})
	list.Register(&controlComponent{d: d})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := list.Start(ctx); err != nil {
		list.Stop()
		return err
	}
	d.log.WithFields(belog.Fields{"components": list.StartOrder(), "version": version}).
		Info("beprox up")

	<-ctx.Done()
	d.log.Info("shutting down")
	list.Stop()
	return nil
}

// sessionComponent owns the shm region and the session manager,
// restoring a persisted snapshot on start and writing one on stop.
type sessionComponent struct {
	d *daemon
}

func (c *sessionComponent) Key() string            { return "session" }
func (c *sessionComponent) Dependencies() []string { return nil }

func (c *sessionComponent) Start(ctx context.Context) error {
	cfg := c.d.cfg.Session
	c.d.region = shm.New(cfg.Pages, cfg.PageSize)
	c.d.sessions = session.New(session.Config{
		Region:      c.d.region,
		IdleTimeout: cfg.IdleTimeout,
		ClusterSize: cfg.ClusterSize,
		ClusterNode: cfg.ClusterNode,
		IDWords:     cfg.IDWords,
	})

	if cfg.PersistFile != "" {
		f, err := os.Open(cfg.PersistFile)
		if err == nil {
			err = c.d.sessions.Load(f)
			f.Close()
			if err != nil {
				c.d.log.WithError(err).Warn("discarding unreadable session snapshot")
			}
		}
	}

	c.d.sessions.StartExpiry()
	return nil
}

func (c *sessionComponent) Stop() {
	c.d.sessions.StopExpiry()

	cfg := c.d.cfg.Session
	if cfg.PersistFile == "" {
		return
	}
	f, err := os.Create(cfg.PersistFile)
	if err != nil {
		c.d.log.WithError(err).Error("writing session snapshot")
		return
	}
	if err := c.d.sessions.Save(f); err != nil {
		c.d.log.WithError(err).Error("writing session snapshot")
	}
	f.Close()
}

// clientComponent builds the TLS policy and the probe-driven AnyClient
// with its HTTP/1 and HTTP/2 pools.
type clientComponent struct {
	d *daemon
}

func (c *clientComponent) Key() string            { return "client" }
func (c *clientComponent) Dependencies() []string { return nil }

func (c *clientComponent) Start(ctx context.Context) error {
	policy, err := c.d.cfg.TLS.New()
	if err != nil {
		return err
	}
	c.d.policy = policy

	client := anyclient.New(
		anyclient.NewTLSProber(policy),
		anyclient.NewHTTP1Pool(policy),
		anyclient.NewHTTP2Pool(policy),
	)
	client.ProbeLimit = semaphore.NewWeighted(c.d.cfg.Probe.MaxConcurrent)
	client.Schedule = func(fn func()) { go fn() }
	c.d.client = client
	return nil
}

func (c *clientComponent) Stop() {}

// loaderComponent assembles the resource-loader chain:
// Direct → Buffered, with a Filter loader alongside for
// POST-as-filter requests.
type loaderComponent struct {
	d *daemon
}

func (c *loaderComponent) Key() string            { return "loader" }
func (c *loaderComponent) Dependencies() []string { return []string{"client", "session"} }

func (c *loaderComponent) Start(ctx context.Context) error {
	direct := resourceloader.NewDirectResourceLoader(
		resourceloader.NewAnyClientTransport(c.d.client),
		nil,
	)
	c.d.loader = resourceloader.NewBufferedResourceLoader(direct)
	c.d.filter = resourceloader.NewFilterResourceLoader(
		c.d.loader, "default",
		c.d.cfg.FilterCache.MaxSize, c.d.cfg.FilterCache.ExpiryInterval,
	)
	return nil
}

func (c *loaderComponent) Stop() {}

// controlComponent brings up the control-protocol listener (UDP or
// NATS) and the diagnostics endpoint.
type controlComponent struct {
	d *daemon
}

func (c *controlComponent) Key() string            { return "control" }
func (c *controlComponent) Dependencies() []string { return []string{"session", "loader"} }

func (c *controlComponent) Start(ctx context.Context) error {
	cfg := c.d.cfg.Control

	switch cfg.Bus {
	case "nats":
		carrier, err := control.ConnectNats(cfg.NatsURL, cfg.NatsSubject, c.d, c.d.log)
		if err != nil {
			return err
		}
		c.d.controlNats = carrier
	default:
		srv, err := control.ListenAndServe(cfg.Listen, c.d, c.d.log)
		if err != nil {
			return err
		}
		c.d.controlUDP = srv
	}

	if cfg.DebugListen != "" {
		dbg, err := control.NewDebugServer(cfg.DebugListen, c.d.cacheInfos, c.d.sessionInfos, c.d.mtr.Handler(), c.d.log)
		if err != nil {
			return err
		}
		c.d.debug = dbg
	}

	if addr := c.d.cfg.Metrics.Listen; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", c.d.mtr.Handler())
		c.d.metricsSrv = &http.Server{Addr: addr, Handler: mux}
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				c.d.log.WithError(err).Error("metrics endpoint failed")
			}
		}(c.d.metricsSrv)
	}
	return nil
}

func (c *controlComponent) Stop() {
	if c.d.metricsSrv != nil {
		_ = c.d.metricsSrv.Close()
	}
	if c.d.debug != nil {
		c.d.debug.Stop()
	}
	if c.d.controlUDP != nil {
		c.d.controlUDP.Stop()
	}
	if c.d.controlNats != nil {
		c.d.controlNats.Stop()
	}
}
