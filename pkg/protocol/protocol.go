// Package protocol maps an endpoint URI to a concrete Source or Target,
// by dispatching on URI scheme to whichever connector package has
// registered it. Connector packages register themselves from an init()
// function; cmd/portage imports every connector package it ships for
// that side effect.
package protocol

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/portage-data/portage/pkg/connector"
	"github.com/portage-data/portage/pkg/pgerrors"
)

// SourceFactory constructs a Source for one endpoint URI. options comes
// from the configuration document's per-endpoint options map, with
// string values; a connector is responsible for its own parsing.
type SourceFactory func(ctx context.Context, uri string, options map[string]string) (connector.Source, error)

// TargetFactory constructs a Target for one endpoint URI.
type TargetFactory func(ctx context.Context, uri string, options map[string]string) (connector.Target, error)

var (
	mu              sync.RWMutex
	sourceFactories = map[string]SourceFactory{}
	targetFactories = map[string]TargetFactory{}
)

// RegisterSource associates a URI scheme with a SourceFactory. Intended
// to be called from a connector package's init().
func RegisterSource(scheme string, f SourceFactory) {
	mu.Lock()
	defer mu.Unlock()
	sourceFactories[scheme] = f
}

// RegisterTarget associates a URI scheme with a TargetFactory.
func RegisterTarget(scheme string, f TargetFactory) {
	mu.Lock()
	defer mu.Unlock()
	targetFactories[scheme] = f
}

// ParsedURI is the decomposed form of an endpoint URI.
type ParsedURI struct {
	Scheme string
	Host   string
	Path   string
	Query  url.Values
	Raw    string
}

// ParseURI validates and decomposes uri, returning a Configuration error
// if it is not a well-formed absolute URI.
func ParseURI(uri string) (*ParsedURI, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConfiguration, "malformed endpoint URI").
			WithDetail("uri", uri)
	}
	if u.Scheme == "" {
		return nil, pgerrors.New(pgerrors.KindConfiguration, "endpoint URI has no scheme").
			WithDetail("uri", uri)
	}
	return &ParsedURI{
		Scheme: strings.ToLower(u.Scheme),
		Host:   u.Host,
		Path:   u.Path,
		Query:  u.Query(),
		Raw:    uri,
	}, nil
}

// ValidateURI checks that uri is well-formed and its scheme has a
// registered Source or Target, without constructing either.
func ValidateURI(uri string) error {
	p, err := ParseURI(uri)
	if err != nil {
		return err
	}
	mu.RLock()
	_, hasSource := sourceFactories[p.Scheme]
	_, hasTarget := targetFactories[p.Scheme]
	mu.RUnlock()
	if !hasSource && !hasTarget {
		return pgerrors.New(pgerrors.KindConfiguration, "unsupported endpoint scheme").
			WithDetail("scheme", p.Scheme).
			WithDetail("known_schemes", strings.Join(KnownSchemes(), ", "))
	}
	return nil
}

// CreateSource parses uri and dispatches to the registered SourceFactory
// for its scheme.
func CreateSource(ctx context.Context, uri string, options map[string]string) (connector.Source, error) {
	p, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	mu.RLock()
	f, ok := sourceFactories[p.Scheme]
	mu.RUnlock()
	if !ok {
		return nil, pgerrors.New(pgerrors.KindConfiguration, "no source connector registered for scheme").
			WithDetail("scheme", p.Scheme)
	}
	src, err := f(ctx, uri, options)
	if err != nil {
		if pgerrors.Is(err, pgerrors.KindConfiguration) {
			return nil, err
		}
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to open source").
			WithDetail("scheme", p.Scheme)
	}
	return src, nil
}

// CreateTarget parses uri and dispatches to the registered TargetFactory
// for its scheme.
func CreateTarget(ctx context.Context, uri string, options map[string]string) (connector.Target, error) {
	p, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	mu.RLock()
	f, ok := targetFactories[p.Scheme]
	mu.RUnlock()
	if !ok {
		return nil, pgerrors.New(pgerrors.KindConfiguration, "no target connector registered for scheme").
			WithDetail("scheme", p.Scheme)
	}
	tgt, err := f(ctx, uri, options)
	if err != nil {
		if pgerrors.Is(err, pgerrors.KindConfiguration) {
			return nil, err
		}
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to open target").
			WithDetail("scheme", p.Scheme)
	}
	return tgt, nil
}

// KnownSchemes lists every scheme with a registered Source or Target,
// sorted, for error messages and the CLI's list-connectors command.
func KnownSchemes() []string {
	mu.RLock()
	defer mu.RUnlock()
	seen := make(map[string]bool)
	for s := range sourceFactories {
		seen[s] = true
	}
	for s := range targetFactories {
		seen[s] = true
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Describe reports, for a scheme, whether a Source and/or Target is
// registered.
func Describe(scheme string) (hasSource, hasTarget bool) {
	mu.RLock()
	defer mu.RUnlock()
	_, hasSource = sourceFactories[strings.ToLower(scheme)]
	_, hasTarget = targetFactories[strings.ToLower(scheme)]
	return
}
