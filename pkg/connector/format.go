package connector

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/portage-data/portage/pkg/pgerrors"
)

// FormatSourceFactory constructs a Source that reads a specific format
// from a local file path already resolved by the protocol layer.
type FormatSourceFactory func(ctx context.Context, path string, options map[string]string) (Source, error)

// FormatTargetFactory constructs a Target that writes a specific format
// to a local file path.
type FormatTargetFactory func(ctx context.Context, path string, options map[string]string) (Target, error)

var (
	formatMu      sync.RWMutex
	formatSources = map[string]FormatSourceFactory{}
	formatTargets = map[string]FormatTargetFactory{}
)

// RegisterFormatSource associates a format name (e.g. "csv", "arrow")
// with a factory. Called from a format connector package's init().
func RegisterFormatSource(format string, f FormatSourceFactory) {
	formatMu.Lock()
	defer formatMu.Unlock()
	formatSources[format] = f
}

// RegisterFormatTarget associates a format name with a target factory.
func RegisterFormatTarget(format string, f FormatTargetFactory) {
	formatMu.Lock()
	defer formatMu.Unlock()
	formatTargets[format] = f
}

// extensionFormats maps a recognized file extension to its format name,
// per §4.2's "file extension" dispatch rule.
var extensionFormats = map[string]string{
	".csv":   "csv",
	".tsv":   "tsv",
	".json":  "json",
	".arrow": "arrow",
	".avro":  "avro",
	".xlsx":  "xlsx",
}

// ResolveFormat determines which format connector should handle path,
// honoring an explicit typeKey override (either "source_type" or
// "target_type", per the side calling it) before falling back to the file
// extension, per §4.2: "source_type overrides format inference when URI
// has no extension". "connector_type" is a side-independent override
// checked for either side.
func ResolveFormat(path string, options map[string]string, typeKey string) (string, error) {
	if t := options[typeKey]; t != "" {
		return t, nil
	}
	if t := options["connector_type"]; t != "" {
		return t, nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	if format, ok := extensionFormats[ext]; ok {
		return format, nil
	}
	return "", pgerrors.New(pgerrors.KindConfiguration, "cannot infer format from URI; set "+typeKey+" or connector_type").
		WithDetail("path", path)
}

// OpenFormatSource resolves path's format, honoring a source_type
// override, and dispatches to the registered FormatSourceFactory.
func OpenFormatSource(ctx context.Context, path string, options map[string]string) (Source, error) {
	format, err := ResolveFormat(path, options, "source_type")
	if err != nil {
		return nil, err
	}
	formatMu.RLock()
	f, ok := formatSources[format]
	formatMu.RUnlock()
	if !ok {
		return nil, pgerrors.New(pgerrors.KindConfiguration, "no source connector registered for format").
			WithDetail("format", format)
	}
	return f(ctx, path, options)
}

// OpenFormatTarget resolves path's format, honoring a target_type
// override, and dispatches to the registered FormatTargetFactory.
func OpenFormatTarget(ctx context.Context, path string, options map[string]string) (Target, error) {
	format, err := ResolveFormat(path, options, "target_type")
	if err != nil {
		return nil, err
	}
	formatMu.RLock()
	f, ok := formatTargets[format]
	formatMu.RUnlock()
	if !ok {
		return nil, pgerrors.New(pgerrors.KindConfiguration, "no target connector registered for format").
			WithDetail("format", format)
	}
	return f(ctx, path, options)
}

// KnownFormats lists every registered format name, for diagnostics.
func KnownFormats() []string {
	formatMu.RLock()
	defer formatMu.RUnlock()
	seen := make(map[string]bool)
	for f := range formatSources {
		seen[f] = true
	}
	for f := range formatTargets {
		seen[f] = true
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	return out
}
