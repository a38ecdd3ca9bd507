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

// Package config loads and validates the process configuration and
// starts the subsystems it describes in dependency order.
package config

import (
	"fmt"
	"strings"
	"time"

	libval "github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	bperr "github.com/cm4all/beprox/internal/bperrors"
	"github.com/cm4all/beprox/internal/tlspolicy"
)

// LogConfig configures the root logger.
type LogConfig struct {
	Level string `mapstructure:"level" json:"level" yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	TTY   bool   `mapstructure:"tty" json:"tty" yaml:"tty"`
}

// SessionConfig sizes the shared-memory session store.
type SessionConfig struct {
	Pages           int           `mapstructure:"pages" json:"pages" yaml:"pages" validate:"min=2"`
	PageSize        int           `mapstructure:"pageSize" json:"pageSize" yaml:"pageSize" validate:"min=256"`
	IdleTimeout     time.Duration `mapstructure:"idleTimeout" json:"idleTimeout" yaml:"idleTimeout"`
	ClusterSize     uint32        `mapstructure:"clusterSize" json:"clusterSize" yaml:"clusterSize"`
	ClusterNode     uint32        `mapstructure:"clusterNode" json:"clusterNode" yaml:"clusterNode"`
	IDWords         int           `mapstructure:"idWords" json:"idWords" yaml:"idWords" validate:"min=1,max=6"`
	DefragThreshold int           `mapstructure:"defragThreshold" json:"defragThreshold" yaml:"defragThreshold" validate:"min=1"`
	PersistFile     string        `mapstructure:"persistFile" json:"persistFile" yaml:"persistFile"`
}

// CacheConfig sizes one generic cache instance.
type CacheConfig struct {
	MaxSize        int64         `mapstructure:"maxSize" json:"maxSize" yaml:"maxSize" validate:"min=0"`
	ExpiryInterval time.Duration `mapstructure:"expiryInterval" json:"expiryInterval" yaml:"expiryInterval"`
}

// ProbeConfig bounds the ALPN probe client.
type ProbeConfig struct {
	MaxConcurrent int64 `mapstructure:"maxConcurrent" json:"maxConcurrent" yaml:"maxConcurrent" validate:"min=1"`
}

// LoaderConfig holds retry and blacklist settings for the direct
// resource loader. They are defaulted and validated here, but
// DirectResourceLoader uses its own constants (2 retries, 20s blacklist)
// and does not read these values.
type LoaderConfig struct {
	RetryMax     int           `mapstructure:"retryMax" json:"retryMax" yaml:"retryMax" validate:"min=0,max=10"`
	BlacklistTTL time.Duration `mapstructure:"blacklistTTL" json:"blacklistTTL" yaml:"blacklistTTL"`
}

// ControlConfig configures the control-protocol listener. Bus selects
// the carrier: "udp" (default) or "nats".
type ControlConfig struct {
	Listen      string `mapstructure:"listen" json:"listen" yaml:"listen"`
	Bus         string `mapstructure:"bus" json:"bus" yaml:"bus" validate:"omitempty,oneof=udp nats"`
	NatsURL     string `mapstructure:"natsUrl" json:"natsUrl" yaml:"natsUrl"`
	NatsSubject string `mapstructure:"natsSubject" json:"natsSubject" yaml:"natsSubject"`
	DebugListen string `mapstructure:"debugListen" json:"debugListen" yaml:"debugListen"`
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	Listen    string `mapstructure:"listen" json:"listen" yaml:"listen"`
	Namespace string `mapstructure:"namespace" json:"namespace" yaml:"namespace"`
}

// Root is the whole process configuration.
type Root struct {
	Log         LogConfig        `mapstructure:"log" json:"log" yaml:"log"`
	TLS         tlspolicy.Config `mapstructure:"tls" json:"tls" yaml:"tls"`
	Session     SessionConfig    `mapstructure:"session" json:"session" yaml:"session"`
	HTTPCache   CacheConfig      `mapstructure:"httpCache" json:"httpCache" yaml:"httpCache"`
	FilterCache CacheConfig      `mapstructure:"filterCache" json:"filterCache" yaml:"filterCache"`
	Probe       ProbeConfig      `mapstructure:"probe" json:"probe" yaml:"probe"`
	Loader      LoaderConfig     `mapstructure:"loader" json:"loader" yaml:"loader"`
	Control     ControlConfig    `mapstructure:"control" json:"control" yaml:"control"`
	Metrics     MetricsConfig    `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
	Workers     int              `mapstructure:"workers" json:"workers" yaml:"workers" validate:"min=0"`
}

// setDefaults seeds viper with every default value, so an empty file is
// a valid configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("session.pages", 65536)
	v.SetDefault("session.pageSize", 4096)
	v.SetDefault("session.idleTimeout", "30m")
	v.SetDefault("session.idWords", 1)
	v.SetDefault("session.defragThreshold", 256)

	v.SetDefault("httpCache.maxSize", int64(512<<20))
	v.SetDefault("httpCache.expiryInterval", "60s")
	v.SetDefault("filterCache.maxSize", int64(256<<20))
	v.SetDefault("filterCache.expiryInterval", "60s")

	v.SetDefault("probe.maxConcurrent", 64)

	v.SetDefault("loader.retryMax", 2)
	v.SetDefault("loader.blacklistTTL", "20s")

	v.SetDefault("control.listen", "127.0.0.1:5478")
	v.SetDefault("control.bus", "udp")
	v.SetDefault("control.natsSubject", "beprox.control")

	v.SetDefault("metrics.namespace", "beprox")
}

// Load reads path (YAML; empty path loads defaults only), applies
// BEPROX_-prefixed environment overrides, and validates the result.
func Load(path string) (*Root, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("BEPROX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, bperr.New(bperr.InvalidConfig, fmt.Sprintf("reading %s", path), err)
		}
	}

	root := &Root{}
	if err := v.Unmarshal(root); err != nil {
		return nil, bperr.New(bperr.InvalidConfig, "decoding configuration", err)
	}

	if err := root.Validate(); err != nil {
		return nil, err
	}
	return root, nil
}

// Validate checks struct constraints plus the TLS section's name
// fields.
func (r *Root) Validate() error {
	err := bperr.New(bperr.InvalidConfig, "invalid configuration", nil)

	if er := libval.New().Struct(r); er != nil {
		if e, ok := er.(*libval.InvalidValidationError); ok {
			err.Add(e)
		} else {
			for _, e := range er.(libval.ValidationErrors) {
				err.Add(fmt.Errorf("config field '%s' is not validated by constraint '%s'", e.StructNamespace(), e.ActualTag()))
			}
		}
	}

	if er := r.TLS.Validate(); er != nil {
		err.Add(er)
	}

	if len(err.Parents()) > 0 {
		return err
	}
	return nil
}
