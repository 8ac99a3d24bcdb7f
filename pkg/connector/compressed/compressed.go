// Package compressed implements the compression decorator: any local
// file endpoint may be wrapped with gzip, zstd, or lz4, selected by a
// connector "compression" option or inferred from a .gz/.zst/.lz4
// suffix. It operates purely at the byte level, beneath the format
// connectors in pkg/connector, which never see compressed bytes.
package compressed

import (
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/portage-data/portage/pkg/pgerrors"
)

// Algorithm names recognized by the "compression" option and by suffix
// sniffing.
const (
	Gzip Algorithm = "gzip"
	Zstd Algorithm = "zstd"
	LZ4  Algorithm = "lz4"
	None Algorithm = ""
)

type Algorithm string

// suffixes maps a recognized file suffix to its algorithm.
var suffixes = map[string]Algorithm{
	".gz":  Gzip,
	".zst": Zstd,
	".lz4": LZ4,
}

// Detect determines the compression algorithm for path, from an explicit
// "compression" option first, then from the file suffix.
func Detect(path string, options map[string]string) Algorithm {
	if a, ok := options["compression"]; ok && a != "" {
		return Algorithm(a)
	}
	for suffix, algo := range suffixes {
		if strings.HasSuffix(path, suffix) {
			return algo
		}
	}
	return None
}

// StripSuffix removes a recognized compression suffix from path, so the
// format registry can still infer a format from what remains (e.g.
// "orders.csv.gz" resolves format "csv" after stripping ".gz").
func StripSuffix(path string) string {
	for suffix := range suffixes {
		if strings.HasSuffix(path, suffix) {
			return strings.TrimSuffix(path, suffix)
		}
	}
	return path
}

// DecompressToFile reads src (compressed with algo) fully and writes the
// decompressed bytes to dst.
func DecompressToFile(src, dst string, algo Algorithm) error {
	in, err := os.Open(src)
	if err != nil {
		return pgerrors.Wrap(err, pgerrors.KindConnection, "failed to open compressed source")
	}
	defer in.Close()

	r, closeFn, err := decompressReader(in, algo)
	if err != nil {
		return err
	}
	defer closeFn()

	out, err := os.Create(dst)
	if err != nil {
		return pgerrors.Wrap(err, pgerrors.KindConnection, "failed to create decompression staging file")
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return pgerrors.Wrap(err, pgerrors.KindConnection, "failed to decompress source").
			WithDetail("algorithm", string(algo))
	}
	return nil
}

// CompressToFile reads src fully and writes algo-compressed bytes to dst.
func CompressToFile(src, dst string, algo Algorithm) error {
	in, err := os.Open(src)
	if err != nil {
		return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to open staged target for compression")
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to create compressed target")
	}
	defer out.Close()

	w, closeFn, err := compressWriter(out, algo)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, in); err != nil {
		closeFn()
		return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to compress target").
			WithDetail("algorithm", string(algo))
	}
	return closeFn()
}

func decompressReader(r io.Reader, algo Algorithm) (io.Reader, func() error, error) {
	switch algo {
	case Gzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to open gzip stream")
		}
		return gz, gz.Close, nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to open zstd stream")
		}
		return zr, func() error { zr.Close(); return nil }, nil
	case LZ4:
		return lz4.NewReader(r), func() error { return nil }, nil
	default:
		return nil, nil, pgerrors.New(pgerrors.KindConfiguration, "unknown compression algorithm").
			WithDetail("algorithm", string(algo))
	}
}

func compressWriter(w io.Writer, algo Algorithm) (io.Writer, func() error, error) {
	switch algo {
	case Gzip:
		gw := gzip.NewWriter(w)
		return gw, gw.Close, nil
	case Zstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, nil, pgerrors.Wrap(err, pgerrors.KindTarget, "failed to open zstd writer")
		}
		return zw, zw.Close, nil
	case LZ4:
		lw := lz4.NewWriter(w)
		return lw, lw.Close, nil
	default:
		return nil, nil, pgerrors.New(pgerrors.KindConfiguration, "unknown compression algorithm").
			WithDetail("algorithm", string(algo))
	}
}
