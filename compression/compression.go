// Package compression wraps readers and writers with gzip, bzip2, xz and zstd
// codecs and detects compressed input by its magic bytes.
package compression

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/nao1215/tabquery/domain/model"
	"github.com/ulikunitz/xz"
)

// ErrTooLarge is returned when decompressed data exceeds the configured limit.
var ErrTooLarge = errors.New("compression: decompressed data exceeds limit")

// Handler defines the interface for handling file compression/decompression
type Handler interface {
	// CreateReader wraps an io.Reader with a decompression reader if needed
	CreateReader(reader io.Reader) (io.Reader, func() error, error)
	// CreateWriter wraps an io.Writer with a compression writer if needed
	CreateWriter(writer io.Writer) (io.Writer, func() error, error)
	// Extension returns the file extension for this compression type (e.g., ".gz")
	Extension() string
}

type handler struct {
	compressionType model.CompressionType
}

// NewHandler creates a new compression handler for the given compression type
func NewHandler(compressionType model.CompressionType) Handler {
	return &handler{compressionType: compressionType}
}

// CreateReader creates a decompression reader based on the compression type
func (h *handler) CreateReader(reader io.Reader) (io.Reader, func() error, error) {
	switch h.compressionType {
	case model.CompressionNone:
		return reader, func() error { return nil }, nil

	case model.CompressionGZ:
		gzReader, err := gzip.NewReader(reader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gzReader, gzReader.Close, nil

	case model.CompressionBZ2:
		return bzip2.NewReader(reader), func() error { return nil }, nil

	case model.CompressionXZ:
		xzReader, err := xz.NewReader(reader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		return xzReader, func() error { return nil }, nil

	case model.CompressionZSTD:
		decoder, err := zstd.NewReader(reader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return decoder, func() error {
			decoder.Close()
			return nil
		}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported compression type for reading: %v", h.compressionType)
	}
}

// CreateWriter creates a compression writer based on the compression type
func (h *handler) CreateWriter(writer io.Writer) (io.Writer, func() error, error) {
	switch h.compressionType {
	case model.CompressionNone:
		return writer, func() error { return nil }, nil

	case model.CompressionGZ:
		gzWriter := gzip.NewWriter(writer)
		return gzWriter, gzWriter.Close, nil

	case model.CompressionBZ2:
		// compress/bzip2 only decompresses
		return nil, nil, errors.New("bzip2 compression is not supported for writing")

	case model.CompressionXZ:
		xzWriter, err := xz.NewWriter(writer)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz writer: %w", err)
		}
		return xzWriter, xzWriter.Close, nil

	case model.CompressionZSTD:
		zstdWriter, err := zstd.NewWriter(writer)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return zstdWriter, zstdWriter.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported compression type for writing: %v", h.compressionType)
	}
}

// Extension returns the file extension for this compression type
func (h *handler) Extension() string {
	return h.compressionType.Extension()
}

var (
	magicGZ   = []byte{0x1f, 0x8b}
	magicBZ2  = []byte("BZh")
	magicXZ   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicZSTD = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Detect returns the compression type of data by looking at its magic bytes.
func Detect(data []byte) model.CompressionType {
	switch {
	case bytes.HasPrefix(data, magicGZ):
		return model.CompressionGZ
	case bytes.HasPrefix(data, magicBZ2):
		return model.CompressionBZ2
	case bytes.HasPrefix(data, magicXZ):
		return model.CompressionXZ
	case bytes.HasPrefix(data, magicZSTD):
		return model.CompressionZSTD
	default:
		return model.CompressionNone
	}
}

// DetectFromPath detects the compression type from a file path
func DetectFromPath(path string) model.CompressionType {
	path = strings.ToLower(path)

	switch {
	case strings.HasSuffix(path, model.ExtGZ):
		return model.CompressionGZ
	case strings.HasSuffix(path, model.ExtBZ2):
		return model.CompressionBZ2
	case strings.HasSuffix(path, model.ExtXZ):
		return model.CompressionXZ
	case strings.HasSuffix(path, model.ExtZSTD):
		return model.CompressionZSTD
	default:
		return model.CompressionNone
	}
}

// Decompress sniffs data and returns it decompressed. Plain data is returned
// unchanged. limit bounds the decompressed size; zero means unbounded.
func Decompress(data []byte, limit int64) ([]byte, error) {
	ct := Detect(data)
	if ct == model.CompressionNone {
		return data, nil
	}

	reader, cleanup, err := NewHandler(ct).CreateReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = cleanup() }()

	if limit > 0 {
		reader = io.LimitReader(reader, limit+1)
	}
	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s data: %w", ct, err)
	}
	if limit > 0 && int64(len(out)) > limit {
		return nil, ErrTooLarge
	}
	return out, nil
}

// CreateWriterForFile creates a file and returns a writer that handles compression
func CreateWriterForFile(path string, compressionType model.CompressionType) (io.Writer, func() error, error) {
	file, err := os.Create(path) //nolint:gosec // export path is chosen by the operator
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create file: %w", err)
	}

	writer, cleanup, err := NewHandler(compressionType).CreateWriter(file)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, nil, err
	}

	compositeCleanup := func() error {
		var cleanupErr error
		if cleanup != nil {
			cleanupErr = cleanup()
		}
		if syncErr := file.Sync(); syncErr != nil && cleanupErr == nil {
			cleanupErr = syncErr
		}
		if closeErr := file.Close(); closeErr != nil && cleanupErr == nil {
			cleanupErr = closeErr
		}
		return cleanupErr
	}

	return writer, compositeCleanup, nil
}
