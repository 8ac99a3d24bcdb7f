// Package portage is a batch data transfer engine that moves tabular rows
// between heterogeneous endpoints — delimited text, JSON, spreadsheets,
// row/columnar binary formats, and relational databases — while inferring,
// validating, and optionally transforming rows in flight.
//
// # Architecture
//
// A run composes five collaborators:
//
//	pkg/protocol   - resolves a URI into a live byte endpoint
//	pkg/connector  - parses bytes into rows, or writes rows to bytes
//	pkg/pgschema   - infers, loads, validates, and projects schemas
//	pkg/transform  - compiles and runs inline or scripted row rewrites
//	pkg/transfer   - the orchestrator: batches, append/truncate policy, progress
//
// Data flows strictly one way: URI → Protocol → Source connector → schema
// validation → transformer → Target connector → URI → Protocol. The
// transfer engine owns the batching loop; connectors never talk to each
// other directly.
//
// # Quick start
//
//	import (
//	    "context"
//	    "go.uber.org/zap"
//	    "github.com/portage-data/portage/pkg/config"
//	    "github.com/portage-data/portage/pkg/transfer"
//	    _ "github.com/portage-data/portage/pkg/connector/byteendpoint"
//	    _ "github.com/portage-data/portage/pkg/connector/delimited"
//	    _ "github.com/portage-data/portage/pkg/connector/sqlconn"
//	)
//
//	doc := &config.Document{
//	    Source:  config.EndpointConfig{URI: "file:///data/employees.csv"},
//	    Target:  config.EndpointConfig{URI: "sqlite:///data/employees.db#employees"},
//	    Options: config.Options{Truncate: true},
//	}
//	stats, err := transfer.Execute(ctx, doc, zap.NewNop(), nil)
//
// # Key packages
//
//	pkg/value        - the typed Value/DataType model every connector agrees on
//	pkg/pgschema      - schema inference, document loading, validation, projection
//	pkg/protocol      - URI scheme dispatch (file, http, ssh, database DSNs)
//	pkg/connector/... - one package per format/database: delimited, jsonconn,
//	                    spreadsheet, columnar, sqlconn, mongoconn, byteendpoint
//	pkg/transform     - expr-lang powered inline assignments and row scripts
//	pkg/transfer      - the execute() orchestration and Stats reporting
//	pkg/config        - run configuration document and ${VAR} interpolation
//	pkg/pgerrors      - the Connection/SchemaInference/Configuration/DataValidation/
//	                    Transform/Target error taxonomy and exit codes
//	pkg/observability - structured logging, metrics, and tracing setup
//
// # Command surface
//
//	portage <source-uri> <target-uri> [flags]
//
// See cmd/portage for the full flag set and exit code contract.
package portage
