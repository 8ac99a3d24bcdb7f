// Package transfer implements the orchestrator: the six-step Execute
// algorithm of spec §4.6 that composes a Source, an optional Transformer,
// and a Target into one batch transfer run.
package transfer

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/portage-data/portage/pkg/config"
	"github.com/portage-data/portage/pkg/connector"
	"github.com/portage-data/portage/pkg/observability"
	"github.com/portage-data/portage/pkg/pgerrors"
	"github.com/portage-data/portage/pkg/pgschema"
	"github.com/portage-data/portage/pkg/protocol"
	"github.com/portage-data/portage/pkg/transform"
)

var tracer = otel.Tracer("github.com/portage-data/portage/pkg/transfer")

// Stats summarizes a completed (or dry-run/preview-stopped) transfer.
type Stats struct {
	RowsRead    int64
	RowsWritten int64
	RowsSkipped int64
	Elapsed     time.Duration
}

// PreviewRow is one row emitted to the preview stream instead of being
// written to the target.
type PreviewRow struct {
	Row    pgschema.Row
	Schema *pgschema.Schema
}

// Execute runs one transfer according to doc.Options, reporting progress
// through logger. previewSink receives rows when Options.Preview > 0; it
// may be nil otherwise.
func Execute(ctx context.Context, doc *config.Document, logger *zap.Logger, previewSink func(PreviewRow)) (*Stats, error) {
	ctx, span := tracer.Start(ctx, "transfer.Execute")
	defer span.End()

	start := now()
	stats := &Stats{}

	rss, rssErr := observability.NewRSSSampler()
	if rssErr != nil {
		logger.Warn("failed to open process RSS sampler, skipping memory sampling", zap.Error(rssErr))
	}

	source, err := openSource(ctx, doc)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeSource(ctx, source) }()

	validationSchema, err := discoverSchema(ctx, doc, source)
	if err != nil {
		return nil, err
	}

	transformer, err := transform.Compile(transform.Config{
		Type:  transform.Type(doc.Options.Transform.Type),
		Value: doc.Options.Transform.Value,
	})
	if err != nil {
		return nil, err
	}

	stream, err := readStream(ctx, source)
	if err != nil {
		return nil, err
	}

	batchSize := doc.Options.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultBatchSize
	}
	batcher := newBatcher(stream, batchSize)

	var target connector.Target
	var targetSchema *pgschema.Schema
	var previewEmitted []pgschema.Row
	prepared := false
	done := false

	var previewDone bool

	for !done && !previewDone {
		select {
		case <-ctx.Done():
			return stats, pgerrors.Wrap(ctx.Err(), pgerrors.KindConnection, "transfer cancelled")
		default:
		}

		batchStart := now()

		batch, isDone, err := batcher.next(ctx)
		if err != nil {
			observability.RecordError(errorKind(err))
			return nil, err
		}
		done = isDone
		if len(batch) == 0 {
			continue
		}
		stats.RowsRead += int64(len(batch))
		observability.RecordRows("read", len(batch))

		validated, err := validateBatch(batch, validationSchema)
		if err != nil {
			observability.RecordError(string(pgerrors.KindDataValidation))
			return nil, err
		}

		transformed, skipped, err := applyTransform(validated, transformer)
		if err != nil {
			observability.RecordError(string(pgerrors.KindTransform))
			return nil, err
		}
		stats.RowsSkipped += int64(skipped)
		observability.RecordRows("skipped", skipped)

		if rss != nil {
			if sample, err := rss.SampleRSS(); err == nil {
				observability.RecordRSS(sample)
				logger.Debug("batch progress", zap.Int("rows_read", len(batch)), zap.Uint64("rss_bytes", sample))
			}
		}

		if targetSchema == nil {
			targetSchema = outputSchema(transformer, validationSchema)
		}

		if doc.Options.Preview > 0 {
			emitPreview(transformed, targetSchema, doc.Options.Preview-len(previewEmitted), previewSink)
			previewEmitted = append(previewEmitted, transformed...)
			observability.RecordBatchDuration(now().Sub(batchStart))
			if len(previewEmitted) >= doc.Options.Preview {
				previewDone = true
			}
			continue
		}

		if doc.Options.DryRun {
			logger.Info("dry run: validated batch, stopping before any write",
				zap.Int("rows_validated", len(transformed)),
				zap.String("target", config.MaskURI(doc.Target.URI)))
			observability.RecordBatchDuration(now().Sub(batchStart))
			continue
		}

		if !prepared {
			target, err = createTarget(ctx, doc)
			if err != nil {
				return nil, err
			}
			if err := prepareTargetSpan(ctx, target, targetSchema, doc.Options.Truncate, logger); err != nil {
				_ = closeTarget(ctx, target)
				return nil, err
			}
			prepared = true
		}

		if len(transformed) == 0 {
			observability.RecordBatchDuration(now().Sub(batchStart))
			continue
		}
		projected := make([]pgschema.Row, len(transformed))
		for i, row := range transformed {
			projected[i] = pgschema.Project(row, targetSchema, transformer != nil)
		}
		if err := writeBatchSpan(ctx, target, projected); err != nil {
			_ = closeTarget(ctx, target)
			return nil, err
		}
		stats.RowsWritten += int64(len(projected))
		observability.RecordRows("written", len(projected))
		observability.RecordBatchDuration(now().Sub(batchStart))
	}

	// Empty source (§8 boundary): no batch ever had rows, so the loop
	// above never reached the "open on first non-empty batch" branch.
	// The target must still be opened, prepared, and finalized with the
	// inferred-or-provided schema, writing zero rows — unless dry_run or
	// preview intentionally skip the target altogether.
	if !prepared && doc.Options.Preview <= 0 && !doc.Options.DryRun {
		if targetSchema == nil {
			targetSchema = outputSchema(transformer, validationSchema)
		}
		target, err = createTarget(ctx, doc)
		if err != nil {
			return nil, err
		}
		if err := prepareTargetSpan(ctx, target, targetSchema, doc.Options.Truncate, logger); err != nil {
			_ = closeTarget(ctx, target)
			return nil, err
		}
	}

	if target != nil {
		if err := closeTarget(ctx, target); err != nil {
			return nil, err
		}
	}

	stats.Elapsed = now().Sub(start)
	return stats, nil
}

// errorKind extracts the pgerrors.Kind label for a prometheus counter,
// falling back to "unknown" for errors that never went through pgerrors.
func errorKind(err error) string {
	var pgErr *pgerrors.Error
	if errors.As(err, &pgErr) {
		return string(pgErr.Kind)
	}
	return "unknown"
}

func openSource(ctx context.Context, doc *config.Document) (connector.Source, error) {
	ctx, span := tracer.Start(ctx, "protocol.CreateSource", trace.WithAttributes(
		attribute.String("uri", config.MaskURI(doc.Source.URI))))
	defer span.End()
	return protocol.CreateSource(ctx, doc.Source.URI, doc.Source.Options)
}

func createTarget(ctx context.Context, doc *config.Document) (connector.Target, error) {
	ctx, span := tracer.Start(ctx, "protocol.CreateTarget", trace.WithAttributes(
		attribute.String("uri", config.MaskURI(doc.Target.URI))))
	defer span.End()
	return protocol.CreateTarget(ctx, doc.Target.URI, doc.Target.Options)
}

func closeSource(ctx context.Context, source connector.Source) error {
	ctx, span := tracer.Start(ctx, "Source.Close")
	defer span.End()
	return source.Close(ctx)
}

func closeTarget(ctx context.Context, target connector.Target) error {
	ctx, span := tracer.Start(ctx, "Target.Close")
	defer span.End()
	return target.Close(ctx)
}

func writeBatchSpan(ctx context.Context, target connector.Target, rows []pgschema.Row) error {
	ctx, span := tracer.Start(ctx, "Target.WriteBatch", trace.WithAttributes(
		attribute.Int("batch.size", len(rows))))
	defer span.End()
	return target.WriteBatch(ctx, rows)
}

func prepareTargetSpan(ctx context.Context, target connector.Target, schema *pgschema.Schema, truncate bool, logger *zap.Logger) error {
	ctx, span := tracer.Start(ctx, "Target.Prepare", trace.WithAttributes(
		attribute.Bool("truncate_requested", truncate)))
	defer span.End()
	return prepareTarget(ctx, target, schema, truncate, logger)
}

func discoverSchema(ctx context.Context, doc *config.Document, source connector.Source) (*pgschema.Schema, error) {
	if doc.Options.SchemaFile != "" {
		return pgschema.LoadDocument(doc.Options.SchemaFile)
	}
	ctx, span := tracer.Start(ctx, "Source.Open")
	defer span.End()
	return source.Discover(ctx)
}

func readStream(ctx context.Context, source connector.Source) (*connector.RowStream, error) {
	ctx, span := tracer.Start(ctx, "Source.NextBatch")
	defer span.End()
	return source.Read(ctx)
}

func validateBatch(batch []pgschema.Row, schema *pgschema.Schema) ([]pgschema.Row, error) {
	validated := make([]pgschema.Row, 0, len(batch))
	for _, row := range batch {
		v, err := pgschema.Validate(row, schema)
		if err != nil {
			return nil, err
		}
		validated = append(validated, v)
	}
	return validated, nil
}

// applyTransform runs the Transformer over validated rows, if any, and
// reports how many rows it dropped.
func applyTransform(rows []pgschema.Row, transformer *transform.Transformer) ([]pgschema.Row, int, error) {
	if transformer == nil {
		return rows, 0, nil
	}
	out := make([]pgschema.Row, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		result, keep, err := transformer.Apply(row)
		if err != nil {
			return nil, 0, err
		}
		if !keep {
			skipped++
			continue
		}
		out = append(out, result)
	}
	return out, skipped, nil
}

func outputSchema(transformer *transform.Transformer, sourceSchema *pgschema.Schema) *pgschema.Schema {
	if transformer == nil {
		return sourceSchema
	}
	if s := transformer.OutputSchema(); s != nil {
		return s
	}
	return sourceSchema
}

// prepareTarget implements the append-first fallback policy: try
// ModeAppend first (the default, least destructive), and only fall back
// to ModeTruncate — logging a warning — when the target rejects append,
// or outright when Options.Truncate was requested.
func prepareTarget(ctx context.Context, target connector.Target, schema *pgschema.Schema, truncate bool, logger *zap.Logger) error {
	if truncate {
		if !target.SupportsTruncate() {
			return pgerrors.New(pgerrors.KindTarget, "truncate requested but target does not support it")
		}
		return target.Prepare(ctx, schema, connector.ModeTruncate)
	}

	err := target.Prepare(ctx, schema, connector.ModeAppend)
	if err == nil {
		return nil
	}
	if !target.SupportsTruncate() {
		return err
	}
	logger.Warn("target rejected append, falling back to truncate", zap.Error(err))
	return target.Prepare(ctx, schema, connector.ModeTruncate)
}

func emitPreview(rows []pgschema.Row, schema *pgschema.Schema, remaining int, sink func(PreviewRow)) {
	if sink == nil || remaining <= 0 {
		return
	}
	limit := remaining
	if limit > len(rows) {
		limit = len(rows)
	}
	for i := 0; i < limit; i++ {
		sink(PreviewRow{Row: rows[i], Schema: schema})
	}
}

// now is a seam over time.Now so tests stay deterministic if ever needed;
// Execute always uses the real clock.
var now = time.Now
