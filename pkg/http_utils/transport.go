package http_utils

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pyneda/apifuzz/pkg/api/core"
	"github.com/quic-go/quic-go/http3"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
)

const (
	ProtocolHTTP1 = "http1"
	ProtocolHTTP2 = "http2"
	ProtocolHTTP3 = "http3"
)

// TransportOptions configures how requests reach the target.
type TransportOptions struct {
	// Protocol is one of http1, http2 or http3. Empty negotiates HTTP/1.1 or
	// HTTP/2 over TLS.
	Protocol        string
	Insecure        bool
	Proxy           string
	RateLimit       float64
	AdaptiveRate    bool
	MaxResponseBody int64
}

func getProxyFunc(proxy string) func(*http.Request) (*url.URL, error) {
	if proxy == "" {
		return http.ProxyFromEnvironment
	}
	proxyURL, err := url.Parse(proxy)
	if err != nil {
		log.Error().Err(err).Str("proxy", proxy).Msg("Error parsing proxy url, using environment proxy")
		return http.ProxyFromEnvironment
	}
	return http.ProxyURL(proxyURL)
}

// CreateHttpTransport creates an HTTP transport with no pre-defined http version.
func CreateHttpTransport(opts TransportOptions) *http.Transport {
	transport := &http.Transport{
		Proxy: getProxyFunc(opts.Proxy),
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			Renegotiation:      tls.RenegotiateOnceAsClient,
			InsecureSkipVerify: opts.Insecure,
		},
	}
	if opts.Protocol != ProtocolHTTP1 {
		if err := http2.ConfigureTransport(transport); err != nil {
			log.Warn().Err(err).Msg("Could not enable HTTP/2, continuing with HTTP/1.1")
		}
	}
	return transport
}

// CreateHttp2Transport creates an HTTP/2 only transport.
func CreateHttp2Transport(opts TransportOptions) *http2.Transport {
	return &http2.Transport{
		AllowHTTP: false,
		DialTLSContext: func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
			if cfg == nil {
				cfg = &tls.Config{}
			}
			cfg.NextProtos = []string{"h2"} // Enforce HTTP/2.0
			dialer := &tls.Dialer{
				NetDialer: &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second},
				Config:    cfg,
			}
			return dialer.DialContext(ctx, network, addr)
		},
		TLSClientConfig: &tls.Config{
			Renegotiation:      tls.RenegotiateOnceAsClient,
			InsecureSkipVerify: opts.Insecure,
		},
	}
}

// CreateHttp3Transport creates an HTTP/3 transport.
func CreateHttp3Transport(opts TransportOptions) *http3.RoundTripper {
	return &http3.RoundTripper{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.Insecure,
		},
		DisableCompression: false,
	}
}

// CreateHttpClient creates a client for the configured protocol. Redirects
// are not followed so the status the target answered with is what gets
// classified.
func CreateHttpClient(opts TransportOptions) *http.Client {
	var rt http.RoundTripper
	switch opts.Protocol {
	case ProtocolHTTP2:
		rt = CreateHttp2Transport(opts)
	case ProtocolHTTP3:
		rt = CreateHttp3Transport(opts)
	default:
		rt = CreateHttpTransport(opts)
	}
	return &http.Client{
		Transport: rt,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Response is what the target answered.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
	Duration   time.Duration
}

// Transport sends materialized requests to one target.
type Transport struct {
	baseURL         string
	client          *http.Client
	limiter         *RateLimiter
	maxResponseBody int64
}

func NewTransport(baseURL string, opts TransportOptions) (*Transport, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid target url %q: %w", baseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid target url %q: scheme must be http or https", baseURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid target url %q: missing host", baseURL)
	}
	switch opts.Protocol {
	case "", ProtocolHTTP1, ProtocolHTTP2, ProtocolHTTP3:
	default:
		return nil, fmt.Errorf("unsupported protocol %q", opts.Protocol)
	}

	t := &Transport{
		baseURL:         strings.TrimSuffix(baseURL, "/"),
		client:          CreateHttpClient(opts),
		maxResponseBody: opts.MaxResponseBody,
	}
	if opts.RateLimit > 0 {
		t.limiter = NewRateLimiter(opts.RateLimit, opts.AdaptiveRate)
	}
	return t, nil
}

func (t *Transport) BaseURL() string {
	return t.baseURL
}

// Send issues req and waits at most timeout for the full response. Failures
// to get any response are returned as *core.TransportError.
func (t *Transport) Send(ctx context.Context, req *core.Request, timeout time.Duration) (*Response, error) {
	target := strings.ToUpper(req.Method) + " " + req.Path
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, &core.TransportError{Operation: target, Attempts: 1, Category: CategorizeRequestError(err), Err: err}
		}
	}

	httpReq, err := req.HTTPRequest(ctx, t.baseURL)
	if err != nil {
		return nil, &core.TransportError{Operation: target, Attempts: 1, Category: FailureInvalidRequest, Err: err}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", DefaultUserAgent)
	}

	result := ExecuteRequest(httpReq, RequestExecutionOptions{
		Client:          t.client,
		Timeout:         timeout,
		MaxResponseBody: t.maxResponseBody,
	})
	if t.limiter != nil {
		t.limiter.RecordResponseTime(result.Duration)
	}
	if result.Err != nil {
		category := CategorizeRequestError(result.Err)
		if result.TimedOut {
			category = FailureTimeout
		}
		log.Debug().Err(result.Err).Str("request", target).Str("category", category).Msg("Request failed")
		return nil, &core.TransportError{Operation: target, Attempts: 1, TimedOut: result.TimedOut, Category: category, Err: result.Err}
	}

	return &Response{
		StatusCode: result.Response.StatusCode,
		Body:       result.Body,
		Header:     result.Response.Header,
		Duration:   result.Duration,
	}, nil
}

// Close releases idle connections.
func (t *Transport) Close() {
	t.client.CloseIdleConnections()
}
