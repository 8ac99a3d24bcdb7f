package transfer

import (
	"context"

	"github.com/portage-data/portage/pkg/connector"
	"github.com/portage-data/portage/pkg/pgerrors"
	"github.com/portage-data/portage/pkg/pgschema"
)

// batcher assembles a RowStream's per-row channel output into batches of
// up to size rows, since connector.Source exposes no native batch read.
type batcher struct {
	stream *connector.RowStream
	size   int
	closed bool
}

func newBatcher(stream *connector.RowStream, size int) *batcher {
	return &batcher{stream: stream, size: size}
}

// next returns the next batch (up to size rows), and whether the stream
// is now exhausted. A final short batch and done=true can be returned
// together; once exhausted, every subsequent call returns (nil, true, nil).
func (b *batcher) next(ctx context.Context) ([]pgschema.Row, bool, error) {
	if b.closed {
		return nil, true, nil
	}

	batch := make([]pgschema.Row, 0, b.size)
	for len(batch) < b.size {
		select {
		case <-ctx.Done():
			return batch, false, pgerrors.Wrap(ctx.Err(), pgerrors.KindConnection, "transfer cancelled while reading source")
		case row, ok := <-b.stream.Rows:
			if !ok {
				b.closed = true
				return batch, true, b.drainError()
			}
			batch = append(batch, row)
		case err, ok := <-b.stream.Errors:
			if ok && err != nil {
				b.closed = true
				return batch, true, err
			}
		}
	}
	return batch, false, nil
}

// drainError picks up a source error that arrived concurrently with the
// Rows channel closing, without blocking if there is none.
func (b *batcher) drainError() error {
	select {
	case err, ok := <-b.stream.Errors:
		if ok && err != nil {
			return err
		}
	default:
	}
	return nil
}
