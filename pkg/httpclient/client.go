// Package httpclient builds the *http.Client used for every outbound
// provider call, stamping a consistent User-Agent and optional diagnostic
// headers so provider-side logs can be correlated back to a request.
package httpclient

import (
	"fmt"
	"maps"
	"net/http"
	"runtime"

	"github.com/byerlikaya/smartrag/pkg/version"
)

type Options struct {
	Header http.Header
}

type Opt func(*Options)

func New(opts ...Opt) *http.Client {
	o := Options{Header: make(http.Header)}
	for _, opt := range opts {
		opt(&o)
	}

	o.Header.Set("User-Agent", fmt.Sprintf("smartrag/%s (%s; %s)", version.Version, runtime.GOOS, runtime.GOARCH))

	return &http.Client{
		Transport: &headerTransport{opts: o, rt: http.DefaultTransport},
	}
}

func WithHeader(key, value string) Opt {
	return func(o *Options) { o.Header.Set(key, value) }
}

func WithProvider(provider string) Opt {
	return func(o *Options) { o.Header.Set("X-SmartRAG-Provider", provider) }
}

func WithModel(model string) Opt {
	return func(o *Options) { o.Header.Set("X-SmartRAG-Model", model) }
}

type headerTransport struct {
	opts Options
	rt   http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r2 := req.Clone(req.Context())
	maps.Copy(r2.Header, t.opts.Header)
	return t.rt.RoundTrip(r2)
}
