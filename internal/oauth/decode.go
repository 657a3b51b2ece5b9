package oauth

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// maxTokenResponseBytes bounds how much of a token endpoint body is read.
const maxTokenResponseBytes = 1 << 20

// acceptEncoding is advertised on token requests; Go's transport only decodes gzip
// transparently when it sets the header itself.
const acceptEncoding = "gzip, deflate, br, zstd"

// decodeBody reads a response body, undoing the Content-Encoding if any.
func decodeBody(contentEncoding string, body io.Reader) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxTokenResponseBytes))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return raw, nil
	}

	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return raw, nil
	case "gzip":
		reader, errGzip := gzip.NewReader(bytes.NewReader(raw))
		if errGzip != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", errGzip)
		}
		defer func() {
			_ = reader.Close()
		}()
		return readDecoded(reader, "gzip")
	case "deflate":
		// HTTP deflate is zlib-wrapped; some servers send raw DEFLATE instead.
		if reader, errZlib := zlib.NewReader(bytes.NewReader(raw)); errZlib == nil {
			defer func() {
				_ = reader.Close()
			}()
			return readDecoded(reader, "deflate")
		}
		reader := flate.NewReader(bytes.NewReader(raw))
		defer func() {
			_ = reader.Close()
		}()
		return readDecoded(reader, "deflate")
	case "br":
		return readDecoded(brotli.NewReader(bytes.NewReader(raw)), "brotli")
	case "zstd":
		decoder, errZstd := zstd.NewReader(bytes.NewReader(raw))
		if errZstd != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", errZstd)
		}
		defer decoder.Close()
		return readDecoded(decoder, "zstd")
	default:
		return raw, nil
	}
}

func readDecoded(reader io.Reader, name string) ([]byte, error) {
	decoded, err := io.ReadAll(io.LimitReader(reader, maxTokenResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s data: %w", name, err)
	}
	return decoded, nil
}
