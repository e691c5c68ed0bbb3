package model

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SourceKind is the declared kind of an uploaded file.
type SourceKind string

const (
	// SourceDelimited is delimited text such as CSV or TSV
	SourceDelimited SourceKind = "delimited-text"
	// SourceSpreadsheet is an XLSX workbook
	SourceSpreadsheet SourceKind = "spreadsheet"
	// SourceParquet is an Apache Parquet file
	SourceParquet SourceKind = "parquet"
)

// File extensions
const (
	ExtCSV     = ".csv"
	ExtTSV     = ".tsv"
	ExtTXT     = ".txt"
	ExtLTSV    = ".ltsv"
	ExtJSON    = ".json"
	ExtXLSX    = ".xlsx"
	ExtXLS     = ".xls"
	ExtParquet = ".parquet"
	ExtGZ      = ".gz"
	ExtBZ2     = ".bz2"
	ExtXZ      = ".xz"
	ExtZSTD    = ".zst"
)

// ParseSourceKind parses a declared source kind. Short aliases such as
// "csv" and "xlsx" are accepted.
func ParseSourceKind(s string) (SourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(SourceDelimited), "csv", "tsv", "txt", "delimited":
		return SourceDelimited, nil
	case string(SourceSpreadsheet), "xlsx", "xls", "excel":
		return SourceSpreadsheet, nil
	case string(SourceParquet):
		return SourceParquet, nil
	default:
		return "", fmt.Errorf("unknown source kind %q", s)
	}
}

// SourceKindFromPath detects the source kind from a file name, ignoring a
// trailing compression extension.
func SourceKindFromPath(path string) (SourceKind, error) {
	base := strings.ToLower(StripCompressionExt(filepath.Base(path)))
	switch filepath.Ext(base) {
	case ExtCSV, ExtTSV, ExtTXT:
		return SourceDelimited, nil
	case ExtXLSX, ExtXLS:
		return SourceSpreadsheet, nil
	case ExtParquet:
		return SourceParquet, nil
	default:
		return "", fmt.Errorf("unsupported file extension %q", filepath.Ext(base))
	}
}

// StripCompressionExt removes a compression extension from a file name if present.
func StripCompressionExt(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range []string{ExtGZ, ExtBZ2, ExtXZ, ExtZSTD} {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// CompressionType represents the compression type
type CompressionType int

const (
	// CompressionNone represents no compression
	CompressionNone CompressionType = iota
	// CompressionGZ represents gzip compression
	CompressionGZ
	// CompressionBZ2 represents bzip2 compression
	CompressionBZ2
	// CompressionXZ represents xz compression
	CompressionXZ
	// CompressionZSTD represents zstd compression
	CompressionZSTD
)

// String returns the string representation of CompressionType
func (c CompressionType) String() string {
	switch c {
	case CompressionGZ:
		return "gz"
	case CompressionBZ2:
		return "bz2"
	case CompressionXZ:
		return "xz"
	case CompressionZSTD:
		return "zstd"
	default:
		return "none"
	}
}

// Extension returns the file extension for the compression type
func (c CompressionType) Extension() string {
	switch c {
	case CompressionGZ:
		return ExtGZ
	case CompressionBZ2:
		return ExtBZ2
	case CompressionXZ:
		return ExtXZ
	case CompressionZSTD:
		return ExtZSTD
	default:
		return ""
	}
}

// ParseCompressionType parses the String form of a CompressionType.
func ParseCompressionType(s string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "gz", "gzip":
		return CompressionGZ, nil
	case "bz2", "bzip2":
		return CompressionBZ2, nil
	case "xz":
		return CompressionXZ, nil
	case "zst", "zstd":
		return CompressionZSTD, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression %q", s)
	}
}

// OutputFormat represents the export file format
type OutputFormat int

const (
	// OutputFormatCSV represents CSV output format
	OutputFormatCSV OutputFormat = iota
	// OutputFormatTSV represents TSV output format
	OutputFormatTSV
	// OutputFormatLTSV represents LTSV output format
	OutputFormatLTSV
	// OutputFormatJSON represents a JSON array of row objects
	OutputFormatJSON
	// OutputFormatXLSX represents Excel XLSX output format
	OutputFormatXLSX
)

// String returns the string representation of OutputFormat
func (f OutputFormat) String() string {
	switch f {
	case OutputFormatTSV:
		return "tsv"
	case OutputFormatLTSV:
		return "ltsv"
	case OutputFormatJSON:
		return "json"
	case OutputFormatXLSX:
		return "xlsx"
	default:
		return "csv"
	}
}

// Extension returns the file extension for the format
func (f OutputFormat) Extension() string {
	switch f {
	case OutputFormatTSV:
		return ExtTSV
	case OutputFormatLTSV:
		return ExtLTSV
	case OutputFormatJSON:
		return ExtJSON
	case OutputFormatXLSX:
		return ExtXLSX
	default:
		return ExtCSV
	}
}

// ParseOutputFormat parses the String form of an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return OutputFormatCSV, nil
	case "tsv":
		return OutputFormatTSV, nil
	case "ltsv":
		return OutputFormatLTSV, nil
	case "json":
		return OutputFormatJSON, nil
	case "xlsx":
		return OutputFormatXLSX, nil
	default:
		return OutputFormatCSV, fmt.Errorf("unknown output format %q", s)
	}
}
