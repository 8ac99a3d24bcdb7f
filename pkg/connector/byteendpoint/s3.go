package byteendpoint

import (
	"context"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/portage-data/portage/pkg/connector"
	"github.com/portage-data/portage/pkg/pgerrors"
)

// s3Location splits an s3://bucket/key URI.
func s3Location(uri string) (bucket, key string, err error) {
	u, perr := url.Parse(uri)
	if perr != nil {
		return "", "", pgerrors.Wrap(perr, pgerrors.KindConfiguration, "malformed S3 endpoint URI")
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

func newS3Client(ctx context.Context, options map[string]string) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region, ok := options["region"]; ok && region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to load AWS configuration")
	}
	return s3.NewFromConfig(cfg), nil
}

func openS3Source(ctx context.Context, uri string, options map[string]string) (connector.Source, error) {
	bucket, key, err := s3Location(uri)
	if err != nil {
		return nil, err
	}
	client, err := newS3Client(ctx, options)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to fetch S3 object").
			WithDetail("bucket", bucket).WithDetail("key", key)
	}
	defer out.Body.Close()

	tmpPath, err := tempFileFor(uri)
	if err != nil {
		return nil, err
	}
	if err := downloadTo(tmpPath, out.Body); err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to stage S3 source")
	}

	src, err := connector.OpenFormatSource(ctx, tmpPath, options)
	if err != nil {
		return nil, err
	}
	return &stagedSource{Source: src, tmpPath: tmpPath}, nil
}

func openS3Target(ctx context.Context, uri string, options map[string]string) (connector.Target, error) {
	tmpPath, err := tempFileFor(uri)
	if err != nil {
		return nil, err
	}
	tgt, err := connector.OpenFormatTarget(ctx, tmpPath, options)
	if err != nil {
		return nil, err
	}

	upload := func(ctx context.Context, localPath string) error {
		bucket, key, err := s3Location(uri)
		if err != nil {
			return err
		}
		client, err := newS3Client(ctx, options)
		if err != nil {
			return err
		}
		f, err := os.Open(localPath)
		if err != nil {
			return pgerrors.Wrap(err, pgerrors.KindConnection, "failed to reopen staged S3 target")
		}
		defer f.Close()

		uploader := manager.NewUploader(client)
		_, err = uploader.Upload(ctx, &s3.PutObjectInput{Bucket: aws.String(bucket), Key: aws.String(key), Body: f})
		if err != nil {
			return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to upload S3 target").
				WithDetail("bucket", bucket).WithDetail("key", key)
		}
		return nil
	}

	return &stagedTarget{Target: tgt, tmpPath: tmpPath, upload: upload}, nil
}
