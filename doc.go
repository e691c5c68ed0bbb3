// Package tabquery turns uploaded tabular files into queryable SQL tables and
// runs untrusted, read-only queries against them.
//
// An uploaded file (delimited text, XLSX or Parquet, optionally compressed
// with gzip, bzip2, xz or zstandard) is decoded into rows, given a coarse
// per-column type, and materialized into a relational table. Queries refer
// to the dataset through the placeholder table name "data"; they are
// validated, rewritten to the real table name with a row cap appended, run
// under a timeout, and every attempt is written to an execution log.
//
// # Features
//
//   - Delimiter auto-detection for CSV, TSV, semicolon and pipe separated text
//   - Static rejection of anything that is not a single read-only SELECT
//   - Stable error classes for backend failures instead of raw engine text
//   - A persistent SQLite pipeline for long-lived datasets
//   - An ephemeral session backed by DuckDB, in-memory SQLite, or a small
//     built-in interpreter when neither engine can start
//
// # Pipeline
//
// The server shape keeps every dataset in one SQLite file:
//
//	pipeline, err := tabquery.NewBuilder().
//	    WithDatabasePath("tabquery.db").
//	    Open(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pipeline.Close()
//
//	ingested, err := pipeline.Ingest(ctx, tabquery.IngestRequest{
//	    Filename: "people.csv",
//	    Data:     data,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := pipeline.Query(ctx, tabquery.QueryRequest{
//	    DatasetID: ingested.Dataset.ID,
//	    SQL:       "SELECT name FROM data WHERE age > 26",
//	})
//
// # Session
//
// The session shape materializes the file for every call and keeps nothing
// but a decode cache and the execution records:
//
//	session, err := tabquery.NewBuilder().Session(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := session.Execute(ctx, tabquery.SessionRequest{
//	    Data: data,
//	    SQL:  "SELECT COUNT(*) FROM data",
//	})
//
// # Type Inference
//
// Column types are taken from the first data row only: a value that parses
// as a number makes the column numeric, anything else (including an empty
// cell) makes it text. Later numeric cells that cannot be parsed are stored
// as NULL and counted as coerced.
//
// # Errors
//
// Rejected queries return *RejectedError, undecodable files *DecodeError and
// failed loads *MaterializationError. Runtime failures are *BackendError with
// one of the classes table_missing, column_missing, syntax, timeout or other.
package tabquery
