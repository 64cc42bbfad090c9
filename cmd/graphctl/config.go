package main

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	goGraph "github.com/MrEthical07/goGraph"
)

// Environment variables overriding the file configuration.
const (
	envAppID     = "GOGRAPH_APP_ID"
	envAppSecret = "GOGRAPH_APP_SECRET"
	envRedisAddr = "GOGRAPH_REDIS_ADDR"
)

// redisMini selects an in-process miniredis instead of a real server.
const redisMini = "mini"

type fileConfig struct {
	AppID      string        `yaml:"app_id"`
	AppSecret  string        `yaml:"app_secret"`
	SiteURL    string        `yaml:"site_url"`
	CanvasPage string        `yaml:"canvas_page"`
	Locale     string        `yaml:"locale"`
	Timeout    time.Duration `yaml:"timeout"`

	Endpoints struct {
		GraphURL     string `yaml:"graph_url"`
		RESTURL      string `yaml:"rest_url"`
		WebURL       string `yaml:"web_url"`
		AuthorizeURL string `yaml:"authorize_url"`
		TokenURL     string `yaml:"token_url"`
	} `yaml:"endpoints"`

	Cookie struct {
		Domain string `yaml:"domain"`
		Secure bool   `yaml:"secure"`
	} `yaml:"cookie"`

	Redis struct {
		Addr   string `yaml:"addr"`
		Prefix string `yaml:"prefix"`
	} `yaml:"redis"`

	Audit struct {
		Enabled    bool `yaml:"enabled"`
		BufferSize int  `yaml:"buffer_size"`
	} `yaml:"audit"`

	Metrics struct {
		Latency bool `yaml:"latency"`
	} `yaml:"metrics"`

	Listen string `yaml:"listen"`
}

// loadConfig reads path, when set, and applies the environment overrides.
func loadConfig(path string, lookup func(string) (string, bool)) (*fileConfig, error) {
	fc := &fileConfig{Listen: ":8080"}
	fc.Redis.Prefix = "gs"

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, fc); err != nil {
			return nil, fmt.Errorf("%w: parse config %s: %v", goGraph.ErrInvalidArgument, path, err)
		}
	}

	if v, ok := lookup(envAppID); ok && v != "" {
		fc.AppID = v
	}
	if v, ok := lookup(envAppSecret); ok && v != "" {
		fc.AppSecret = v
	}
	if v, ok := lookup(envRedisAddr); ok && v != "" {
		fc.Redis.Addr = v
	}
	return fc, nil
}

// appConfig lays the file values over goGraph.DefaultConfig. Empty values keep the
// defaults.
func (fc *fileConfig) appConfig() (goGraph.Config, error) {
	cfg := goGraph.DefaultConfig()
	cfg.AppID = fc.AppID
	cfg.AppSecret = fc.AppSecret
	cfg.SiteURL = fc.SiteURL
	cfg.CanvasPage = fc.CanvasPage

	if fc.Locale != "" {
		tag, err := language.Parse(fc.Locale)
		if err != nil {
			return goGraph.Config{}, fmt.Errorf("%w: locale %q: %v", goGraph.ErrInvalidArgument, fc.Locale, err)
		}
		cfg.Locale = tag
	}
	if fc.Timeout != 0 {
		cfg.Timeout = fc.Timeout
	}

	setIf(&cfg.Endpoints.GraphURL, fc.Endpoints.GraphURL)
	setIf(&cfg.Endpoints.RESTURL, fc.Endpoints.RESTURL)
	setIf(&cfg.Endpoints.WebURL, fc.Endpoints.WebURL)
	setIf(&cfg.Endpoints.OAuth.AuthURL, fc.Endpoints.AuthorizeURL)
	setIf(&cfg.Endpoints.OAuth.TokenURL, fc.Endpoints.TokenURL)

	cfg.Cookie.Domain = fc.Cookie.Domain
	cfg.Cookie.Secure = fc.Cookie.Secure

	cfg.Audit.Enabled = fc.Audit.Enabled
	if fc.Audit.BufferSize > 0 {
		cfg.Audit.BufferSize = fc.Audit.BufferSize
	}
	cfg.Metrics.EnableLatencyHistograms = fc.Metrics.Latency

	return cfg, cfg.Validate()
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
