// Package config loads the transfer engine's configuration document and
// merges it with command-line flags, performing ${ENV_VAR} interpolation
// along the way.
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/portage-data/portage/pkg/pgerrors"
)

// EndpointConfig is one side (source or target) of a transfer.
type EndpointConfig struct {
	URI     string            `yaml:"uri"`
	Options map[string]string `yaml:"options"`
}

// TransformConfig selects the Transformer mode.
type TransformConfig struct {
	Type  string `yaml:"type"` // inline | file | script | none
	Value string `yaml:"value"`
}

// Options holds the engine-level run options.
type Options struct {
	BatchSize  int             `yaml:"batch_size"`
	Truncate   bool            `yaml:"truncate"`
	DryRun     bool            `yaml:"dry_run"`
	Preview    int             `yaml:"preview"`
	SchemaFile string          `yaml:"schema_file"`
	Transform  TransformConfig `yaml:"transform"`
}

// Document is the top-level shape of the YAML configuration file.
type Document struct {
	Version int            `yaml:"version"`
	Source  EndpointConfig `yaml:"source"`
	Target  EndpointConfig `yaml:"target"`
	Options Options        `yaml:"options"`
}

// DefaultBatchSize is the transfer engine's default batch size.
const DefaultBatchSize = 10000

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses a configuration document from path, interpolating
// ${ENV_VAR} references before YAML parsing. An unresolved variable is a
// Configuration error, raised before any I/O.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConfiguration, "failed to read config document").
			WithDetail("path", path)
	}

	interpolated, err := Interpolate(string(raw))
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := yaml.Unmarshal([]byte(interpolated), &doc); err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConfiguration, "failed to parse config document")
	}

	if doc.Options.Transform.Type == "" {
		doc.Options.Transform.Type = "none"
	}
	if doc.Options.BatchSize <= 0 {
		doc.Options.BatchSize = DefaultBatchSize
	}

	return &doc, nil
}

// Interpolate substitutes every ${VAR} in s from the process environment.
// A variable with no value set is an unresolved-variable configuration
// error rather than being silently replaced with an empty string.
func Interpolate(s string) (string, error) {
	var firstErr error
	result := envPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		val, ok := os.LookupEnv(name)
		if !ok {
			if firstErr == nil {
				firstErr = pgerrors.New(pgerrors.KindConfiguration, "unresolved environment variable").
					WithDetail("variable", name)
			}
			return match
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// RunOptions is the CLI-flag-friendly view of Options, used to merge
// flags over a loaded Document with flags taking precedence.
type RunOptions struct {
	SourceURI     string
	TargetURI     string
	SchemaFile    string
	Transform     string
	TransformFile string
	BatchSize     int
	Truncate      bool
	DryRun        bool
	Preview       int
	SourceType    string
	TargetType    string
	LogLevel      string
}

// MergeFlags overlays any explicitly-set CLI flags onto a Document loaded
// from a config file, flags winning over the document. Passing a nil doc
// synthesizes one entirely from flags, for the flags-only invocation path.
func MergeFlags(doc *Document, flags RunOptions) (*Document, error) {
	if doc == nil {
		doc = &Document{Options: Options{BatchSize: DefaultBatchSize}}
	}
	if flags.SourceURI != "" {
		doc.Source.URI = flags.SourceURI
	}
	if flags.TargetURI != "" {
		doc.Target.URI = flags.TargetURI
	}
	if doc.Source.Options == nil {
		doc.Source.Options = map[string]string{}
	}
	if doc.Target.Options == nil {
		doc.Target.Options = map[string]string{}
	}
	if flags.SourceType != "" {
		doc.Source.Options["connector_type"] = flags.SourceType
	}
	if flags.TargetType != "" {
		doc.Target.Options["connector_type"] = flags.TargetType
	}
	if flags.BatchSize > 0 {
		doc.Options.BatchSize = flags.BatchSize
	}
	if flags.Truncate {
		doc.Options.Truncate = true
	}
	if flags.DryRun {
		doc.Options.DryRun = true
	}
	if flags.Preview > 0 {
		doc.Options.Preview = flags.Preview
	}
	if flags.SchemaFile != "" {
		doc.Options.SchemaFile = flags.SchemaFile
	}
	if flags.Transform != "" {
		doc.Options.Transform = TransformConfig{Type: "inline", Value: flags.Transform}
	} else if flags.TransformFile != "" {
		doc.Options.Transform = TransformConfig{Type: "file", Value: flags.TransformFile}
	}
	if doc.Options.Transform.Type == "" {
		doc.Options.Transform.Type = "none"
	}
	if doc.Options.BatchSize <= 0 {
		doc.Options.BatchSize = DefaultBatchSize
	}

	if doc.Source.URI == "" || doc.Target.URI == "" {
		return nil, pgerrors.New(pgerrors.KindConfiguration, "both a source and target URI are required")
	}

	return doc, nil
}

// String implements fmt.Stringer with credentials masked, for safe debug
// logging of an endpoint.
func (e EndpointConfig) String() string {
	return fmt.Sprintf("uri=%s options=%v", MaskURI(e.URI), maskOptions(e.Options))
}

func maskOptions(opts map[string]string) map[string]string {
	masked := make(map[string]string, len(opts))
	for k, v := range opts {
		switch k {
		case "auth.basic", "auth.bearer", "password", "secret_key", "access_key":
			masked[k] = "****"
		default:
			masked[k] = v
		}
	}
	return masked
}
