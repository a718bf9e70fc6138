package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/rescale/rescale-foldernav/internal/config"
)

// CreateOptimizedClient returns the shared client used by the folder API
// client and the object store backends.
//
//   - proxy settings from ConfigureHTTPClient (nil cfg: environment only)
//   - HTTP/2 when talking directly, HTTP/1.1 through proxies
//   - no client-wide timeout; callers bound each request with a context
//
// DISABLE_HTTP2=true forces HTTP/1.1; FORCE_HTTP2=true keeps HTTP/2 even
// through a proxy.
func CreateOptimizedClient(cfg *config.Config) (*nethttp.Client, error) {
	var base *nethttp.Client
	if cfg != nil {
		c, err := ConfigureHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
		base = c
	} else {
		tr := newTransport()
		tr.Proxy = nethttp.ProxyFromEnvironment
		base = &nethttp.Client{Transport: tr}
	}
	base.Timeout = 0

	// The NTLM negotiator wraps the transport; leave it as configured.
	tr, ok := base.Transport.(*nethttp.Transport)
	if !ok {
		return base, nil
	}

	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	disable := os.Getenv("DISABLE_HTTP2") == "true"
	// Proxies often break HTTP/2 multiplexing mid-stream.
	if ProxyActive(cfg) && os.Getenv("FORCE_HTTP2") != "true" {
		disable = true
	}
	if disable {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	base.Transport = tr
	return base, nil
}

func envProxySet() bool {
	return os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
		os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
}
