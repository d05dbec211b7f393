package archive

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// Compression identifies the encoding wrapped around an archive file.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZlib
	CompressionZstd
	CompressionBrotli
	CompressionDeflate
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZlib:
		return "zlib"
	case CompressionZstd:
		return "zstd"
	case CompressionBrotli:
		return "brotli"
	case CompressionDeflate:
		return "deflate"
	default:
		return "none"
	}
}

// DetectCompression sniffs the leading magic bytes. Brotli and raw deflate
// have no reliable magic, so those fall back to the filename.
func DetectCompression(filename string, magic []byte) Compression {
	if len(magic) >= 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		return CompressionGzip
	}
	if len(magic) >= 2 && magic[0] == 0x78 &&
		(magic[1] == 0x01 || magic[1] == 0x5e || magic[1] == 0x9c || magic[1] == 0xda) {
		return CompressionZlib
	}
	if len(magic) >= 4 && bytes.Equal(magic[:4], []byte{0x28, 0xb5, 0x2f, 0xfd}) {
		return CompressionZstd
	}
	if strings.HasSuffix(filename, ".br") || strings.Contains(filename, ".br.") {
		return CompressionBrotli
	}
	if strings.HasSuffix(filename, ".deflate") {
		return CompressionDeflate
	}
	return CompressionNone
}

// decompressReader wraps r according to the detected format. The returned
// closer must be closed after reading; for formats without a closer it is a
// no-op.
func decompressReader(r io.Reader, format Compression) (io.Reader, func() error, error) {
	switch format {
	case CompressionGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("open gzip stream: %w", err)
		}
		return gz, gz.Close, nil
	case CompressionZlib:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("open zlib stream: %w", err)
		}
		return zr, zr.Close, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("open zstd stream: %w", err)
		}
		return zr, func() error { zr.Close(); return nil }, nil
	case CompressionBrotli:
		return brotli.NewReader(r), func() error { return nil }, nil
	case CompressionDeflate:
		fr := flate.NewReader(r)
		return fr, fr.Close, nil
	default:
		return r, func() error { return nil }, nil
	}
}

// openDecompressed sniffs the magic bytes of r without consuming them and
// returns a reader for the decoded stream.
func openDecompressed(filename string, r io.Reader) (io.Reader, func() error, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil && err != io.EOF {
		return nil, nil, err
	}
	return decompressReaderWith(filename, br, magic)
}

func decompressReaderWith(filename string, r io.Reader, magic []byte) (io.Reader, func() error, error) {
	return decompressReader(r, DetectCompression(filename, magic))
}
