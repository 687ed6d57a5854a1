// Package http provides pre-tuned net/http client configurations for the
// engine's outbound HTTP calls. The HTTP embedding client builds its client
// from LLMClientConfig; the LLM arbiter goes through the Anthropic SDK
// instead.
package http

import (
	"crypto/tls"
	"net/http"
	"time"
)

// ClientConfig controls the transport and timeout behavior of a shared
// http.Client.
type ClientConfig struct {
	Timeout                time.Duration
	MaxRetries              int
	DisableSSLVerification  bool
	MaxIdleConns            int
	IdleConnTimeout         time.Duration
	TLSHandshakeTimeout     time.Duration
	ResponseHeaderTimeout   time.Duration
}

// DefaultClientConfig returns sane general-purpose defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:               30 * time.Second,
		MaxRetries:            3,
		DisableSSLVerification: false,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}
}

// SlackClientConfig mirrors the short-fuse timeout used for chat-ops style
// webhooks — kept for symmetry with the teacher's shared client factory even
// though this engine does not itself call Slack.
func SlackClientConfig() ClientConfig {
	cfg := DefaultClientConfig()
	cfg.Timeout = 10 * time.Second
	cfg.MaxRetries = 2
	return cfg
}

// PrometheusClientConfig tunes a client for metrics-scrape style calls: a
// caller-supplied overall timeout with a response-header timeout at half of
// it, so a server that accepts the connection but never answers fails fast.
func PrometheusClientConfig(timeout time.Duration) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.Timeout = timeout
	cfg.ResponseHeaderTimeout = timeout / 2
	return cfg
}

// LLMClientConfig tunes a client for slower, token-generating calls (the LLM
// arbiter, or an HTTP-backed embedding service): a generous overall timeout
// with a response-header timeout at a third of it.
func LLMClientConfig(timeout time.Duration) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.Timeout = timeout
	cfg.ResponseHeaderTimeout = timeout / 3
	return cfg
}

// NewClient builds an *http.Client from the given configuration.
func NewClient(config ClientConfig) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          config.MaxIdleConns,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
	}
	if config.DisableSSLVerification {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit opt-in for dev/test environments
	}
	return &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}
}

// NewDefaultClient builds a client from DefaultClientConfig.
func NewDefaultClient() *http.Client {
	return NewClient(DefaultClientConfig())
}

// NewClientWithTimeout builds a client using DefaultClientConfig with the
// timeout overridden — a convenience for callers that only care about one
// knob.
func NewClientWithTimeout(timeout time.Duration) *http.Client {
	cfg := DefaultClientConfig()
	cfg.Timeout = timeout
	return NewClient(cfg)
}
