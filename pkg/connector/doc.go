// Package connector defines the Source and Target capability interfaces
// that every format and database connector implements, and the format
// registry that maps a local file path to a format connector.
//
// # Layout
//
// connector.go holds the Source, Target and RowStream types. format.go
// holds the format registry: format packages register source and target
// factories under a format name ("csv", "tsv", "json", "arrow", "avro",
// "xlsx") from their init() functions, and OpenFormatSource /
// OpenFormatTarget pick the format from a source_type, target_type or
// connector_type option, falling back to the file extension.
//
// Concrete connectors live in sub-packages:
//
//   - delimited: CSV and TSV files
//   - jsonconn: files holding a top-level JSON array of objects
//   - columnar: Arrow IPC and Avro OCF files
//   - spreadsheet: XLSX workbooks
//   - sqlconn: database/sql dialects and BigQuery, registered by URI scheme
//   - mongoconn: MongoDB collections, registered by URI scheme
//   - byteendpoint: the file, http(s), ssh, s3 and gs schemes, which stage
//     remote objects through a local file before handing them to a format
//     connector
//   - compressed: gzip, zstd and lz4 staging beneath the file scheme
//
// # Example
//
//	src, err := connector.OpenFormatSource(ctx, "/data/orders.csv", nil)
//	if err != nil {
//		return err
//	}
//	defer src.Close(ctx)
//	schema, err := src.Discover(ctx)
//	stream, err := src.Read(ctx)
package connector
