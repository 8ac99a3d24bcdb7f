package byteendpoint

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/portage-data/portage/pkg/connector"
	"github.com/portage-data/portage/pkg/pgerrors"
)

func gcsLocation(uri string) (bucket, object string, err error) {
	u, perr := url.Parse(uri)
	if perr != nil {
		return "", "", pgerrors.Wrap(perr, pgerrors.KindConfiguration, "malformed GCS endpoint URI")
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

func openGCSSource(ctx context.Context, uri string, options map[string]string) (connector.Source, error) {
	bucket, object, err := gcsLocation(uri)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to create GCS client")
	}
	defer client.Close()

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to fetch GCS object").
			WithDetail("bucket", bucket).WithDetail("object", object)
	}
	defer r.Close()

	tmpPath, err := tempFileFor(uri)
	if err != nil {
		return nil, err
	}
	if err := downloadTo(tmpPath, r); err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to stage GCS source")
	}

	src, err := connector.OpenFormatSource(ctx, tmpPath, options)
	if err != nil {
		return nil, err
	}
	return &stagedSource{Source: src, tmpPath: tmpPath}, nil
}

func openGCSTarget(ctx context.Context, uri string, options map[string]string) (connector.Target, error) {
	tmpPath, err := tempFileFor(uri)
	if err != nil {
		return nil, err
	}
	tgt, err := connector.OpenFormatTarget(ctx, tmpPath, options)
	if err != nil {
		return nil, err
	}

	upload := func(ctx context.Context, localPath string) error {
		bucket, object, err := gcsLocation(uri)
		if err != nil {
			return err
		}
		client, err := storage.NewClient(ctx)
		if err != nil {
			return pgerrors.Wrap(err, pgerrors.KindConnection, "failed to create GCS client")
		}
		defer client.Close()

		f, err := os.Open(localPath)
		if err != nil {
			return pgerrors.Wrap(err, pgerrors.KindConnection, "failed to reopen staged GCS target")
		}
		defer f.Close()

		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		if _, err := io.Copy(w, f); err != nil {
			w.Close()
			return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to upload GCS target")
		}
		return w.Close()
	}

	return &stagedTarget{Target: tgt, tmpPath: tmpPath, upload: upload}, nil
}
