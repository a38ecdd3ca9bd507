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

// beprox is the HTTP application proxy daemon: it wires the session
// manager, caches, probe client, resource-loader chain, and control
// endpoints together from one YAML configuration and runs until
// signalled.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cm4all/beprox/internal/belog"
	"github.com/cm4all/beprox/internal/config"
)

// set via -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "unknown"
)

var (
	flagConfig  string
	flagPidFile string
	flagWorkers int
)

func main() {
	root := &cobra.Command{
		Use:           "beprox",
		Short:         "HTTP application proxy",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to the YAML configuration file")

	run := &cobra.Command{
		Use:   "run",
		Short: "start the proxy and serve until signalled",
		RunE:  runDaemon,
	}
	run.Flags().StringVar(&flagPidFile, "pid-file", "", "write the daemon pid to this file")
	run.Flags().IntVar(&flagWorkers, "workers", 0, "worker count override (0 uses the config value)")

	check := &cobra.Command{
		Use:   "config-check",
		Short: "load and validate the configuration, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(flagConfig); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration ok")
			return nil
		},
	}

	ver := &cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "beprox %s (%s)\n", version, commit)
		},
	}

	root.AddCommand(run, check, ver)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "beprox:", err)
		os.Exit(1)
	}
}

// parseLevel maps the config's level string to a logrus level.
func parseLevel(s string) logrus.Level {
	switch s {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func newLogger(cfg config.LogConfig) belog.Logger {
	return belog.New(os.Stderr, parseLevel(cfg.Level), cfg.TTY)
}
