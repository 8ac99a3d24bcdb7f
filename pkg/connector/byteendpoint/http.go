package byteendpoint

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/net/http2"

	"github.com/portage-data/portage/pkg/connector"
	"github.com/portage-data/portage/pkg/pgerrors"
)

var (
	httpClientOnce sync.Once
	httpClient     *http.Client
)

// sharedHTTPClient lazily builds an http2-capable client once per process.
// http2.ConfigureTransport upgrades a clone of the default transport, so
// plain http:// requests still work; it only adds h2 support over TLS.
func sharedHTTPClient() *http.Client {
	httpClientOnce.Do(func() {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		_ = http2.ConfigureTransport(transport)
		httpClient = &http.Client{Transport: transport}
	})
	return httpClient
}

// applyAuthOptions wires the §4.2 option keys auth.basic, auth.bearer, and
// header.<Name> onto an outgoing request.
func applyAuthOptions(req *http.Request, options map[string]string) {
	for key, value := range options {
		switch {
		case key == "auth.basic":
			user, pass, ok := strings.Cut(value, ":")
			if ok {
				req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+pass)))
			}
		case key == "auth.bearer":
			req.Header.Set("Authorization", "Bearer "+value)
		case strings.HasPrefix(key, "header."):
			req.Header.Set(strings.TrimPrefix(key, "header."), value)
		}
	}
}

// openHTTPSource downloads uri to a temporary file, then hands it to the
// format registry the same way a local file would be, per §4.2's
// "streamed to a temporary file then opened as the inferred format".
func openHTTPSource(ctx context.Context, uri string, options map[string]string) (connector.Source, error) {
	tmpPath, err := tempFileFor(uri)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConfiguration, "malformed HTTP endpoint URI")
	}
	applyAuthOptions(req, options)

	resp, err := sharedHTTPClient().Do(req)
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to fetch HTTP source").
			WithDetail("uri", uri)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, pgerrors.New(pgerrors.KindConnection, "HTTP source returned an error status").
			WithDetail("uri", uri).
			WithDetail("status", resp.Status)
	}

	if err := downloadTo(tmpPath, resp.Body); err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to stage HTTP source")
	}

	src, err := connector.OpenFormatSource(ctx, tmpPath, options)
	if err != nil {
		return nil, err
	}
	return &stagedSource{Source: src, tmpPath: tmpPath}, nil
}
