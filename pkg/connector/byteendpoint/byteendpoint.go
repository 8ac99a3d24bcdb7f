// Package byteendpoint implements the protocol-scheme side of endpoint
// resolution: turning a URI's scheme into a local file path the format
// connectors in pkg/connector can open directly. file:// is used as-is;
// http(s)://, ssh://, s3://, and gs:// are staged through a temporary
// file, downloaded before Read and uploaded after Close on write.
package byteendpoint

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/portage-data/portage/pkg/connector"
	"github.com/portage-data/portage/pkg/connector/compressed"
	"github.com/portage-data/portage/pkg/pgerrors"
	"github.com/portage-data/portage/pkg/protocol"
)

func init() {
	protocol.RegisterSource("file", openFileSource)
	protocol.RegisterTarget("file", openFileTarget)
	protocol.RegisterSource("http", openHTTPSource)
	protocol.RegisterSource("https", openHTTPSource)
	protocol.RegisterSource("ssh", openSSHSource)
	protocol.RegisterTarget("ssh", openSSHTarget)
	protocol.RegisterSource("s3", openS3Source)
	protocol.RegisterTarget("s3", openS3Target)
	protocol.RegisterSource("gs", openGCSSource)
	protocol.RegisterTarget("gs", openGCSTarget)
}

// localPathFromFileURI returns the filesystem path and, per §4.2, the
// trailing "#fragment" that selects an intra-file container (a
// spreadsheet sheet name, an embedded-DB table).
func localPathFromFileURI(uri string) (path, fragment string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", pgerrors.Wrap(err, pgerrors.KindConfiguration, "malformed file URI")
	}
	if u.Path == "" {
		return "", "", pgerrors.New(pgerrors.KindConfiguration, "file URI has no path").WithDetail("uri", uri)
	}
	return u.Path, u.Fragment, nil
}

// withFragmentOption copies options, adding key=fragment when fragment is
// non-empty and the caller didn't already set key explicitly. Copying
// avoids mutating the caller's options map.
func withFragmentOption(options map[string]string, key, fragment string) map[string]string {
	if fragment == "" {
		return options
	}
	merged := make(map[string]string, len(options)+1)
	for k, v := range options {
		merged[k] = v
	}
	if merged[key] == "" {
		merged[key] = fragment
	}
	return merged
}

// stagedSource wraps a format Source resolved against a temporary local
// copy of a remote object, cleaning the temp file up on Close.
type stagedSource struct {
	connector.Source
	tmpPath string
}

func (s *stagedSource) Close(ctx context.Context) error {
	err := s.Source.Close(ctx)
	if s.tmpPath != "" {
		os.Remove(s.tmpPath)
	}
	return err
}

// stagedTarget buffers writes to a temporary local file and uploads it
// to the remote endpoint on Close, per the append-first fallback policy:
// truncate support tracks whatever the underlying format target reports.
type stagedTarget struct {
	connector.Target
	tmpPath string
	upload  func(ctx context.Context, localPath string) error
}

func (t *stagedTarget) Close(ctx context.Context) error {
	if err := t.Target.Close(ctx); err != nil {
		return err
	}
	defer os.Remove(t.tmpPath)
	return t.upload(ctx, t.tmpPath)
}

func openFileSource(ctx context.Context, uri string, options map[string]string) (connector.Source, error) {
	path, fragment, err := localPathFromFileURI(uri)
	if err != nil {
		return nil, err
	}
	options = withFragmentOption(options, "sheet", fragment)

	algo := compressed.Detect(path, options)
	if algo == compressed.None {
		return connector.OpenFormatSource(ctx, path, options)
	}

	tmpPath, err := tempFileFor(compressed.StripSuffix(uri))
	if err != nil {
		return nil, err
	}
	if err := compressed.DecompressToFile(path, tmpPath, algo); err != nil {
		return nil, err
	}
	src, err := connector.OpenFormatSource(ctx, tmpPath, options)
	if err != nil {
		return nil, err
	}
	return &stagedSource{Source: src, tmpPath: tmpPath}, nil
}

func openFileTarget(ctx context.Context, uri string, options map[string]string) (connector.Target, error) {
	path, fragment, err := localPathFromFileURI(uri)
	if err != nil {
		return nil, err
	}
	options = withFragmentOption(options, "sheet", fragment)
	if dir := filepath.Dir(path); dir != "" {
		os.MkdirAll(dir, 0o755)
	}

	algo := compressed.Detect(path, options)
	if algo == compressed.None {
		return connector.OpenFormatTarget(ctx, path, options)
	}

	tmpPath, err := tempFileFor(compressed.StripSuffix(uri))
	if err != nil {
		return nil, err
	}
	tgt, err := connector.OpenFormatTarget(ctx, tmpPath, options)
	if err != nil {
		return nil, err
	}
	upload := func(ctx context.Context, localPath string) error {
		return compressed.CompressToFile(localPath, path, algo)
	}
	return &stagedTarget{Target: tgt, tmpPath: tmpPath, upload: upload}, nil
}

// tempFileFor allocates a temp file named so format inference by
// extension still works against the original URI's path.
func tempFileFor(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", pgerrors.Wrap(err, pgerrors.KindConfiguration, "malformed URI")
	}
	f, err := os.CreateTemp("", "portage-*-"+filepath.Base(u.Path))
	if err != nil {
		return "", pgerrors.Wrap(err, pgerrors.KindConnection, "failed to allocate staging file")
	}
	path := f.Name()
	f.Close()
	return path, nil
}

func downloadTo(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}
