// Command portage runs one batch transfer between a source and a target
// URI, per the command surface described in the engine's §6.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/portage-data/portage/pkg/config"
	"github.com/portage-data/portage/pkg/observability"
	"github.com/portage-data/portage/pkg/pgerrors"
	"github.com/portage-data/portage/pkg/transfer"

	// Connector packages register themselves with the protocol layer
	// through their init() functions; importing them for side effect is
	// what makes their schemes and formats available to CreateSource and
	// CreateTarget.
	_ "github.com/portage-data/portage/pkg/connector/byteendpoint"
	_ "github.com/portage-data/portage/pkg/connector/columnar"
	_ "github.com/portage-data/portage/pkg/connector/delimited"
	_ "github.com/portage-data/portage/pkg/connector/jsonconn"
	_ "github.com/portage-data/portage/pkg/connector/mongoconn"
	_ "github.com/portage-data/portage/pkg/connector/spreadsheet"
	_ "github.com/portage-data/portage/pkg/connector/sqlconn"
)

var version = "0.1.0"

// runFlags holds every CLI flag of §6's command surface plus the
// process-level flags (log level, metrics) that sit alongside it.
type runFlags struct {
	configFile    string
	schemaFile    string
	transform     string
	transformFile string
	batchSize     int
	truncate      bool
	dryRun        bool
	preview       int
	sourceType    string
	targetType    string
	logLevel      string
	metricsAddr   string
}

func main() {
	var flags runFlags

	root := &cobra.Command{
		Use:   "portage <source-uri> <target-uri>",
		Short: "Transfer tabular data between heterogeneous sources and targets",
		Long: `portage copies rows between a source URI and a target URI, validating
and optionally transforming them against a schema along the way.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args, flags)
		},
	}

	root.Flags().StringVar(&flags.configFile, "config", "", "Path to a YAML configuration document (alternative to flags)")
	root.Flags().StringVar(&flags.schemaFile, "schema-file", "", "Path to a schema document enforced against every row")
	root.Flags().StringVar(&flags.transform, "transform", "", "Inline transform expression")
	root.Flags().StringVar(&flags.transformFile, "transform-file", "", "Path to a file containing a transform expression")
	root.Flags().IntVar(&flags.batchSize, "batch-size", 0, "Rows per batch (default 10000)")
	root.Flags().BoolVar(&flags.truncate, "truncate", false, "Truncate the target before writing")
	root.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Validate and transform without writing to the target")
	root.Flags().IntVar(&flags.preview, "preview", 0, "Stop after emitting this many rows to the preview stream instead of writing")
	root.Flags().StringVar(&flags.sourceType, "source-type", "", "Override format/connector inference for the source")
	root.Flags().StringVar(&flags.targetType, "target-type", "", "Override format/connector inference for the target")
	root.Flags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on (disabled if empty)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("portage v%s\n", version)
		},
	})

	if err := root.Execute(); err != nil {
		var pgErr *pgerrors.Error
		code := 1
		if asPgErr(err, &pgErr) {
			code = pgerrors.ExitCode(pgErr)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(code)
	}
}

func asPgErr(err error, target **pgerrors.Error) bool {
	for e := err; e != nil; e = unwrap(e) {
		if pe, ok := e.(*pgerrors.Error); ok {
			*target = pe
			return true
		}
	}
	return false
}

func unwrap(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return nil
}

func run(parentCtx context.Context, args []string, flags runFlags) error {
	if err := observability.Initialize(observability.Config{
		Log:     observability.LogConfig{Level: flags.logLevel, Encoding: "json"},
		Tracing: observability.TracingConfig{ServiceName: "portage", ServiceVersion: version, SamplingRate: 1.0},
	}); err != nil {
		return pgerrors.Wrap(err, pgerrors.KindConfiguration, "failed to initialize observability")
	}
	logger := observability.Logger()
	defer func() { _ = observability.Shutdown(context.Background()) }()

	ctx, cancel := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if flags.metricsAddr != "" {
		srv := &http.Server{Addr: flags.metricsAddr, Handler: observability.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	doc, err := loadDocument(args, flags)
	if err != nil {
		return err
	}

	logger.Info("starting transfer",
		zap.String("source", config.MaskURI(doc.Source.URI)),
		zap.String("target", config.MaskURI(doc.Target.URI)),
		zap.Int("batch_size", doc.Options.BatchSize))

	var previewSink func(transfer.PreviewRow)
	if doc.Options.Preview > 0 {
		previewSink = func(r transfer.PreviewRow) {
			printPreviewRow(r)
		}
	}

	stats, err := transfer.Execute(ctx, doc, logger, previewSink)
	if err != nil {
		logger.Error("transfer failed", zap.Error(err))
		return err
	}

	logger.Info("transfer complete",
		zap.Int64("rows_read", stats.RowsRead),
		zap.Int64("rows_written", stats.RowsWritten),
		zap.Int64("rows_skipped", stats.RowsSkipped),
		zap.Duration("elapsed", stats.Elapsed))
	return nil
}

// loadDocument builds the transfer configuration document, loading
// --config first (if given) and then merging any explicitly-set flags
// and positional URIs over it, flags winning.
func loadDocument(args []string, flags runFlags) (*config.Document, error) {
	var doc *config.Document
	if flags.configFile != "" {
		loaded, err := config.Load(flags.configFile)
		if err != nil {
			return nil, err
		}
		doc = loaded
	}

	runOpts := config.RunOptions{
		SchemaFile:    flags.schemaFile,
		Transform:     flags.transform,
		TransformFile: flags.transformFile,
		BatchSize:     flags.batchSize,
		Truncate:      flags.truncate,
		DryRun:        flags.dryRun,
		Preview:       flags.preview,
		SourceType:    flags.sourceType,
		TargetType:    flags.targetType,
		LogLevel:      flags.logLevel,
	}
	if len(args) > 0 {
		runOpts.SourceURI = args[0]
	}
	if len(args) > 1 {
		runOpts.TargetURI = args[1]
	}

	return config.MergeFlags(doc, runOpts)
}

func printPreviewRow(r transfer.PreviewRow) {
	names := r.Schema.ColumnNames()
	fields := make([]string, 0, len(names))
	for _, name := range names {
		val, ok := r.Row.Get(name)
		if !ok {
			continue
		}
		fields = append(fields, fmt.Sprintf("%s=%s", name, val.GoString()))
	}
	line := ""
	for i, f := range fields {
		if i > 0 {
			line += " "
		}
		line += f
	}
	fmt.Println(line)
}
